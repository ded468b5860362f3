package host

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratagem/internal/logging"
)

const worldYAML = `
height: 100
time: 2024-01-02T03:04:05Z
balances:
  alice: 500uusk,20ukuji
  bob: 7uusk
pairs:
  - address: pair
    base: ukuji
    quote: uusk
orders:
  - pair: pair
    owner: maker
    side: base
    price: 1.01
    amount: 1000
prices:
  BTC.BTC: "65000"
  THOR.RUNE: 5
`

func TestLoadWorldAndSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	require.NoError(t, os.WriteFile(path, []byte(worldYAML), 0o644))

	w, err := LoadWorld(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), w.Height)
	require.Len(t, w.Orders, 1)
	assert.Equal(t, "1.01", w.Orders[0].Price.String())
	assert.Equal(t, "65000", w.Prices["BTC.BTC"].String())

	c := New(createTestStore(t), WithLogger(logging.NewNop()))
	ctx := context.Background()
	require.NoError(t, c.Seed(ctx, w))

	height, at, err := c.Height(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), height)
	assert.Equal(t, int64(1704164645), at.Unix())

	assert.Equal(t, "20ukuji,500uusk", balance(t, c, "alice"))
	assert.Equal(t, "7uusk", balance(t, c, "bob"))
	assert.Equal(t, "1000ukuji", balance(t, c, pairAddr))

	b, err := c.Book(ctx, pairAddr)
	require.NoError(t, err)
	require.Len(t, b.Base, 1)
	assert.Equal(t, "1000", b.Base[0].Total.String())

	// Seeding again adds to balances.
	require.NoError(t, c.Seed(ctx, World{Balances: map[string]string{"bob": "3uusk"}}))
	assert.Equal(t, "10uusk", balance(t, c, "bob"))
}

func TestLoadWorldErrors(t *testing.T) {
	_, err := LoadWorld(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read world")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("balances: [1, 2"), 0o644))
	_, err = LoadWorld(path)
	assert.ErrorContains(t, err, "parse world")
}

func TestSeedRejectsBadCoins(t *testing.T) {
	c := New(createTestStore(t), WithLogger(logging.NewNop()))
	err := c.Seed(context.Background(), World{Balances: map[string]string{"alice": "lots"}})
	assert.ErrorContains(t, err, "balances of alice")
	assert.Equal(t, "", balance(t, c, "alice"))
}
