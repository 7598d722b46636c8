package pool

import (
	"strings"
	"testing"

	"github.com/iotaledger/iota.go/consts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/topocare/iota-pay-on-production/lib/ledger/ledgertest"
	"github.com/topocare/iota-pay-on-production/wallet/address"
)

var seed = strings.Repeat("P", 81)

func newTestPool(t *testing.T, balances ...uint64) (*Pool, *ledgertest.Ledger) {
	l := ledgertest.New()
	f, err := address.NewFactory(l, seed, consts.SecurityLevelMedium, 1000, nil)
	require.NoError(t, err)
	held := make([]*address.Address, 0, len(balances))
	for i, b := range balances {
		held = append(held, &address.Address{
			KeyIndex:     uint64(i),
			Hash:         ledgertest.AddressAt(seed, uint64(i))[:81],
			WithChecksum: ledgertest.AddressAt(seed, uint64(i)),
			Balance:      b,
		})
	}
	return New("usable", f, held, nil), l
}

func requireConsistent(t *testing.T, p interface{ Verify() error }) {
	t.Helper()
	require.NoError(t, p.Verify())
}

func TestNewPoolTotals(t *testing.T) {
	p, _ := newTestPool(t, 5, 7, 11)
	st := p.Stats()
	assert.Equal(t, Meta{Balance: 23, Count: 3}, st.Current)
	assert.Equal(t, Meta{}, st.Incoming)
	assert.Equal(t, Meta{}, st.Outgoing)
	requireConsistent(t, p)
}

func TestTakeBalancePrefix(t *testing.T) {
	p, _ := newTestPool(t, 5, 7, 11)

	r, err := p.TakeBalance(6)
	require.NoError(t, err)
	// 5 is not enough, 5+7 overshoots
	assert.EqualValues(t, 12, r.Balance)
	require.Equal(t, 2, r.Count())
	assert.EqualValues(t, 0, r.Addresses[0].KeyIndex)
	assert.EqualValues(t, 1, r.Addresses[1].KeyIndex)

	st := p.Stats()
	assert.Equal(t, Meta{Balance: 11, Count: 1}, st.Current)
	assert.Equal(t, Meta{Balance: 12, Count: 2}, st.Outgoing)
	requireConsistent(t, p)
}

func TestTakeBalanceExact(t *testing.T) {
	p, _ := newTestPool(t, 5, 7, 11)
	r, err := p.TakeBalance(5)
	require.NoError(t, err)
	assert.EqualValues(t, 5, r.Balance)
	assert.Equal(t, 1, r.Count())
}

func TestTakeBalanceInsufficient(t *testing.T) {
	p, _ := newTestPool(t, 5, 7)
	r, err := p.TakeBalance(13)
	require.Nil(t, r)
	require.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.Equal(t, Meta{Balance: 12, Count: 2}, p.Stats().Current)
	requireConsistent(t, p)

	_, err = p.TakeBalance(0)
	require.Equal(t, ErrZeroAmount, err)
}

func TestTakeUpToBalance(t *testing.T) {
	p, _ := newTestPool(t, 5, 7)
	r, err := p.TakeUpToBalance(100)
	require.NoError(t, err)
	assert.EqualValues(t, 12, r.Balance)
	assert.Equal(t, 2, r.Count())
	assert.Equal(t, Meta{}, p.Stats().Current)

	_, err = p.TakeUpToBalance(100)
	require.True(t, errors.Is(err, ErrEmptyPool))

	p2, _ := newTestPool(t, 5, 7, 11)
	r, err = p2.TakeUpToBalance(7)
	require.NoError(t, err)
	assert.EqualValues(t, 12, r.Balance)
	requireConsistent(t, p2)
}

func TestTakeAll(t *testing.T) {
	p, _ := newTestPool(t, 1, 2, 3)
	r, err := p.TakeAll()
	require.NoError(t, err)
	assert.EqualValues(t, 6, r.Balance)
	assert.Equal(t, 0, p.Count())

	_, err = p.TakeAll()
	require.True(t, errors.Is(err, ErrEmptyPool))
	requireConsistent(t, p)
}

func TestTakeElements(t *testing.T) {
	p, _ := newTestPool(t, 10, 10, 10)
	r, err := p.TakeElements(2)
	require.NoError(t, err)
	assert.EqualValues(t, 20, r.Balance)
	assert.Equal(t, 1, p.Count())

	_, err = p.TakeElements(2)
	require.True(t, errors.Is(err, ErrInsufficientBalance))
	_, err = p.TakeElements(0)
	require.Equal(t, ErrZeroAmount, err)
	requireConsistent(t, p)
}

func TestTakeCommitAndRollback(t *testing.T) {
	p, _ := newTestPool(t, 5, 7, 11)
	before := p.Held()

	r, err := p.TakeBalance(6)
	require.NoError(t, err)
	require.NoError(t, r.Rollback())
	st := p.Stats()
	assert.Equal(t, Meta{Balance: 23, Count: 3}, st.Current)
	assert.Equal(t, Meta{}, st.Outgoing)
	// restored in original order
	assert.Equal(t, before, p.Held())

	r, err = p.TakeBalance(6)
	require.NoError(t, err)
	require.NoError(t, r.Commit())
	st = p.Stats()
	assert.Equal(t, Meta{Balance: 11, Count: 1}, st.Current)
	assert.Equal(t, Meta{}, st.Outgoing)
	requireConsistent(t, p)
}

func TestResolveTwice(t *testing.T) {
	p, _ := newTestPool(t, 5, 7, 11)
	r, err := p.TakeBalance(5)
	require.NoError(t, err)
	require.NoError(t, r.Commit())
	before := p.Stats()

	require.True(t, errors.Is(r.Commit(), ErrUnknownReservation))
	require.True(t, errors.Is(r.Rollback(), ErrUnknownReservation))
	assert.Equal(t, before, p.Stats())
	requireConsistent(t, p)
}

func TestGiveCommit(t *testing.T) {
	p, l := newTestPool(t, 5)

	r, err := p.Give(3, 10)
	require.NoError(t, err)
	require.Equal(t, 3, r.Count())
	assert.EqualValues(t, 30, r.Balance)
	for i, a := range r.Addresses {
		assert.EqualValues(t, 1000+i, a.KeyIndex)
		assert.EqualValues(t, 10, a.Balance)
	}
	st := p.Stats()
	assert.Equal(t, Meta{Balance: 5, Count: 1}, st.Current)
	assert.Equal(t, Meta{Balance: 30, Count: 3}, st.Incoming)
	assert.Equal(t, Meta{Balance: 35, Count: 4}, st.Expected())
	requireConsistent(t, p)

	require.NoError(t, r.Commit())
	st = p.Stats()
	assert.Equal(t, Meta{Balance: 35, Count: 4}, st.Current)
	assert.Equal(t, Meta{}, st.Incoming)
	requireConsistent(t, p)
	_ = l
}

func TestGiveRollbackRestores(t *testing.T) {
	p, _ := newTestPool(t, 5, 6)
	before := p.Stats()

	r, err := p.GiveBalance(42)
	require.NoError(t, err)
	require.NoError(t, r.Rollback())
	assert.Equal(t, before, p.Stats())
	requireConsistent(t, p)
}

func TestGiveErrors(t *testing.T) {
	p, l := newTestPool(t)
	_, err := p.Give(0, 10)
	require.Equal(t, ErrZeroAmount, err)
	_, err = p.GiveBalance(0)
	require.Equal(t, ErrZeroAmount, err)

	l.FailQueries(errors.New("node down"))
	_, err = p.GiveBalance(10)
	require.Error(t, err)
	assert.Equal(t, Meta{}, p.Stats().Incoming)
}

func TestReservationProjections(t *testing.T) {
	p, _ := newTestPool(t, 5, 7)
	r, err := p.TakeAll()
	require.NoError(t, err)

	inputs := r.Inputs(consts.SecurityLevelMedium)
	require.Len(t, inputs, 2)
	assert.EqualValues(t, 7, inputs[1].Balance)
	assert.EqualValues(t, 1, inputs[1].KeyIndex)
	assert.Len(t, inputs[0].Address, 81)

	transfers, err := r.Transfers("hello", "WALLET")
	require.NoError(t, err)
	require.Len(t, transfers, 2)
	assert.Len(t, transfers[0].Address, 90)
	assert.EqualValues(t, 5, transfers[0].Value)
	assert.Equal(t, "WALLET"+strings.Repeat("9", 21), transfers[0].Tag)
	assert.NotEmpty(t, transfers[0].Message)
	assert.Equal(t, transfers[0].Message, transfers[1].Message)

	_, err = r.Transfers("", strings.Repeat("A", 28))
	require.Error(t, err)

	require.True(t, r.Managed)
	require.Equal(t, r.Addresses[0], r.ConfirmationRef())
	assert.Equal(t, "usable", r.Owner())
}
