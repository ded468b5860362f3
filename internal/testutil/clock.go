package testutil

import (
	"sync"
	"time"

	"github.com/roach88/stratagem/internal/ir"
)

// GenesisTime is the block time NewBlockClock starts from by default.
var GenesisTime = time.Unix(1_700_000_000, 0).UTC()

// BlockClock is a deterministic block height and time for tests that call
// contracts directly, without a host chain. It can be reset so the same
// scenario replays with identical envs.
//
// All methods are safe for concurrent use.
type BlockClock struct {
	mu      sync.Mutex
	height  uint64
	now     time.Time
	genesis uint64
	start   time.Time
}

// NewBlockClock returns a clock at height, timestamped GenesisTime.
func NewBlockClock(height uint64) *BlockClock {
	return &BlockClock{height: height, now: GenesisTime, genesis: height, start: GenesisTime}
}

// Advance moves the clock forward and returns the new block.
func (c *BlockClock) Advance(blocks uint64, seconds int64) (uint64, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += blocks
	c.now = c.now.Add(time.Duration(seconds) * time.Second)
	return c.height, c.now
}

// Height returns the current block height.
func (c *BlockClock) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Env returns the block context contract observes at the current block.
func (c *BlockClock) Env(contract string) ir.Env {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ir.Env{Contract: contract, Height: c.height, Time: c.now}
}

// Reset returns the clock to its starting block.
func (c *BlockClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = c.genesis
	c.now = c.start
}
