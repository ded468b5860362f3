package engine

import (
	"context"

	"github.com/roach88/stratagem/internal/store"
)

type role uint8

const (
	roleSelf role = 1 << iota
	roleOwner
	roleManager
)

// authorize loads the strategy's identity and checks that the sender holds
// one of allowed.
func (cl *call) authorize(ctx context.Context, entry string, allowed role) (store.Strategy, error) {
	st, err := cl.tx.Strategy(ctx, cl.address())
	if err != nil {
		return store.Strategy{}, err
	}

	var held role
	sender := cl.req.Sender
	if sender == st.Address {
		held |= roleSelf
	}
	if sender == st.Owner {
		held |= roleOwner
	}
	if sender == st.Manager {
		held |= roleManager
	}
	if held&allowed == 0 {
		return store.Strategy{}, NewAuthorizationError(st.Address, entry, sender)
	}
	return st, nil
}

// lock sets the reentrancy guard for a top-level entry. The Clear appended
// to the entry's response releases it.
func (cl *call) lock(ctx context.Context, st store.Strategy, entry string) error {
	if st.Guard {
		return NewReentrancyError(st.Address, entry)
	}
	return cl.tx.SetGuard(ctx, st.Address, true, cl.req.Env.Height)
}
