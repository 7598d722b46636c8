package pool

import (
	"testing"

	. "github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/topocare/iota-pay-on-production/lib/ledger/ledgertest"
	"github.com/topocare/iota-pay-on-production/wallet/address"
)

func newReceiving(t *testing.T, n int) (*ReceivingPool, *ledgertest.Ledger, []*address.Address) {
	l := ledgertest.New()
	addrs := make([]*address.Address, n)
	for i := range addrs {
		h := ledgertest.AddressAt(seed, uint64(i))
		addrs[i] = &address.Address{KeyIndex: uint64(i), Hash: h[:81], WithChecksum: h}
	}
	return NewReceivingPool("receiving", l, addrs, nil), l, addrs
}

func TestReceivingUpdateFromLedger(t *testing.T) {
	p, l, addrs := newReceiving(t, 4)

	changed, err := p.UpdateFromLedger()
	require.NoError(t, err)
	require.False(t, changed)
	assert.Equal(t, Meta{}, p.Available())

	l.SetBalance(addrs[1].WithChecksum, 30)
	l.SetBalance(addrs[3].WithChecksum, 12)
	changed, err = p.UpdateFromLedger()
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, Meta{Balance: 42, Count: 2}, p.Available())
	requireConsistent(t, p)

	changed, err = p.UpdateFromLedger()
	require.NoError(t, err)
	require.False(t, changed)
}

func TestReceivingUpdateFailure(t *testing.T) {
	p, l, addrs := newReceiving(t, 2)
	l.SetBalance(addrs[0].WithChecksum, 30)
	l.FailQueries(errors.New("node down"))
	changed, err := p.UpdateFromLedger()
	require.Error(t, err)
	require.False(t, changed)
	assert.Equal(t, Meta{}, p.Available())
}

func TestReceivingTakeAndCommit(t *testing.T) {
	p, l, addrs := newReceiving(t, 3)
	l.SetBalance(addrs[0].WithChecksum, 10)
	l.SetBalance(addrs[2].WithChecksum, 20)
	_, err := p.UpdateFromLedger()
	require.NoError(t, err)

	r, err := p.TakeBalance(15)
	require.NoError(t, err)
	assert.EqualValues(t, 30, r.Balance)
	require.Equal(t, 2, r.Count())
	assert.False(t, r.Managed)
	assert.True(t, r.Owned)
	assert.Nil(t, r.ConfirmationRef())
	assert.Equal(t, Meta{}, p.Available())
	assert.Equal(t, Meta{Balance: 30, Count: 2}, p.Stats().Outgoing)
	assert.Equal(t, 1, p.Stats().Watched)
	requireConsistent(t, p)

	// reserved addresses are not updated even if the ledger changes
	l.SetBalance(addrs[0].WithChecksum, 0)
	changed, err := p.UpdateFromLedger()
	require.NoError(t, err)
	require.False(t, changed)
	assert.EqualValues(t, 10, r.Addresses[0].Balance)

	l.SetBalance(addrs[2].WithChecksum, 0)
	require.NoError(t, r.Commit())
	st := p.Stats()
	assert.Equal(t, Meta{}, st.Outgoing)
	assert.Equal(t, Meta{}, st.Current)
	assert.Equal(t, 2, st.Spent)
	assert.Equal(t, 3, st.Watched)
	requireConsistent(t, p)

	changed, err = p.UpdateFromLedger()
	require.NoError(t, err)
	require.False(t, changed)

	// spent addresses are polled and offered again after a new deposit
	l.SetBalance(addrs[2].WithChecksum, 99)
	changed, err = p.UpdateFromLedger()
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, Meta{Balance: 99, Count: 1}, p.Available())
	r, err = p.TakeAll()
	require.NoError(t, err)
	require.Equal(t, 1, r.Count())
	assert.Equal(t, addrs[2].Hash, r.Addresses[0].Hash)
	require.NoError(t, r.Commit())
	assert.Equal(t, 2, p.Stats().Spent)
	requireConsistent(t, p)
}

// hookedLedger calls after once, between reading the balances and returning them
type hookedLedger struct {
	*ledgertest.Ledger
	after func()
}

func (h *hookedLedger) GetBalances(addrs Hashes) ([]uint64, error) {
	ret, err := h.Ledger.GetBalances(addrs)
	if h.after != nil {
		after := h.after
		h.after = nil
		after()
	}
	return ret, err
}

func TestReceivingStaleBalanceAfterCommit(t *testing.T) {
	l := ledgertest.New()
	h := ledgertest.AddressAt(seed, 0)
	a := &address.Address{Hash: h[:81], WithChecksum: h}
	hooked := &hookedLedger{Ledger: l}
	p := NewReceivingPool("receiving", hooked, []*address.Address{a}, nil)

	l.SetBalance(h, 10)
	_, err := p.UpdateFromLedger()
	require.NoError(t, err)

	// a balance read before the spend is committed must not bring the funds back
	hooked.after = func() {
		r, err := p.TakeAll()
		require.NoError(t, err)
		l.SetBalance(h, 0)
		require.NoError(t, r.Commit())
	}
	changed, err := p.UpdateFromLedger()
	require.NoError(t, err)
	require.False(t, changed)
	assert.Equal(t, Meta{}, p.Available())
	requireConsistent(t, p)

	l.SetBalance(h, 5)
	changed, err = p.UpdateFromLedger()
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, Meta{Balance: 5, Count: 1}, p.Available())
}

func TestReceivingEmptyTakes(t *testing.T) {
	p, _, _ := newReceiving(t, 2)
	_, err := p.TakeUpToBalance(10)
	require.True(t, errors.Is(err, ErrEmptyPool))
	_, err = p.TakeAll()
	require.True(t, errors.Is(err, ErrEmptyPool))
	_, err = p.TakeBalance(10)
	require.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.Equal(t, 2, p.Stats().Watched)
}

func TestReceivingRollback(t *testing.T) {
	p, l, addrs := newReceiving(t, 2)
	l.SetBalance(addrs[1].WithChecksum, 10)
	_, err := p.UpdateFromLedger()
	require.NoError(t, err)

	r, err := p.TakeUpToBalance(1000)
	require.NoError(t, err)
	assert.EqualValues(t, 10, r.Balance)
	_, err = p.TakeBalance(1)
	require.True(t, errors.Is(err, ErrInsufficientBalance))

	require.NoError(t, r.Rollback())
	assert.Equal(t, Meta{Balance: 10, Count: 1}, p.Available())
	assert.Equal(t, Meta{}, p.Stats().Outgoing)
	require.True(t, errors.Is(r.Rollback(), ErrUnknownReservation))
	requireConsistent(t, p)
}

func TestUnmanagedTarget(t *testing.T) {
	target := NewUnmanagedTarget("payment", ledgertest.AddressAt("EXT", 1), nil)

	r1, err := target.Give(10)
	require.NoError(t, err)
	r2, err := target.Give(5)
	require.NoError(t, err)
	assert.EqualValues(t, 15, target.Pending())
	assert.False(t, r1.Managed)
	assert.False(t, r1.Owned)
	assert.Equal(t, target.Address(), r1.Addresses[0].WithChecksum)

	require.NoError(t, r1.Commit())
	assert.EqualValues(t, 5, target.Pending())
	require.NoError(t, r2.Rollback())
	assert.EqualValues(t, 0, target.Pending())

	require.True(t, errors.Is(r1.Commit(), ErrUnknownReservation))
	assert.EqualValues(t, 0, target.Pending())

	_, err = target.Give(0)
	require.Equal(t, ErrZeroAmount, err)
}
