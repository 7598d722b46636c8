package address

import (
	"strings"
	"testing"

	"github.com/iotaledger/iota.go/consts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/topocare/iota-pay-on-production/lib/ledger/ledgertest"
)

var seed = strings.Repeat("S", 81)

func newFactory(t *testing.T, l *ledgertest.Ledger, cursor uint64) *Factory {
	f, err := NewFactory(l, seed, consts.SecurityLevelMedium, cursor, nil)
	require.NoError(t, err)
	return f
}

func TestNextFreeAddressesFresh(t *testing.T) {
	l := ledgertest.New()
	f := newFactory(t, l, 10)

	addrs, err := f.NextFreeAddresses(3)
	require.NoError(t, err)
	require.Len(t, addrs, 3)
	for i, a := range addrs {
		require.EqualValues(t, 10+i, a.KeyIndex)
		require.Equal(t, ledgertest.AddressAt(seed, uint64(10+i)), a.WithChecksum)
		require.Len(t, a.Hash, 81)
		require.Zero(t, a.Balance)
	}
	require.EqualValues(t, 13, f.Cursor())
}

func TestNextFreeAddressesSkipsUsed(t *testing.T) {
	l := ledgertest.New()
	l.MarkSpent(ledgertest.AddressAt(seed, 0))
	l.SetBalance(ledgertest.AddressAt(seed, 2), 5)
	f := newFactory(t, l, 0)

	addrs, err := f.NextFreeAddresses(3)
	require.NoError(t, err)
	require.Len(t, addrs, 3)
	// 0 and 2 rejected in the first window, second window 3..4
	require.EqualValues(t, 1, addrs[0].KeyIndex)
	require.EqualValues(t, 3, addrs[1].KeyIndex)
	require.EqualValues(t, 4, addrs[2].KeyIndex)
	require.EqualValues(t, 5, f.Cursor())

	// rejected indices are never examined again
	next, err := f.NextFreeAddress()
	require.NoError(t, err)
	require.EqualValues(t, 5, next.KeyIndex)
}

func TestNextFreeAddressesLedgerFailure(t *testing.T) {
	l := ledgertest.New()
	f := newFactory(t, l, 7)
	l.FailQueries(errors.New("node down"))

	addrs, err := f.NextFreeAddresses(2)
	require.Error(t, err)
	require.Nil(t, addrs)
	require.EqualValues(t, 7, f.Cursor())

	l.FailQueries(nil)
	addrs, err = f.NextFreeAddresses(2)
	require.NoError(t, err)
	require.EqualValues(t, 7, addrs[0].KeyIndex)
}

func TestNextFreeAddressesWrongCount(t *testing.T) {
	f := newFactory(t, ledgertest.New(), 0)
	_, err := f.NextFreeAddresses(0)
	require.Error(t, err)
}

func TestRange(t *testing.T) {
	l := ledgertest.New()
	f := newFactory(t, l, 0)

	addrs, err := f.Range(3, 6, 1000)
	require.NoError(t, err)
	require.Len(t, addrs, 4)
	require.EqualValues(t, 3, addrs[0].KeyIndex)
	require.EqualValues(t, 6, addrs[3].KeyIndex)
	require.EqualValues(t, 4000, TotalBalance(addrs))
	require.Equal(t, ledgertest.AddressAt(seed, 5), addrs[2].WithChecksum)

	// partially cached
	addrs, err = f.Range(5, 8, 0)
	require.NoError(t, err)
	require.Len(t, addrs, 4)
	require.Equal(t, ledgertest.AddressAt(seed, 8), addrs[3].WithChecksum)

	_, err = f.Range(5, 4, 0)
	require.Error(t, err)
	require.EqualValues(t, 0, f.Cursor())
}

func TestAddressHelpers(t *testing.T) {
	ext := External(ledgertest.AddressAt("EXT", 1))
	require.Len(t, ext.Hash, 81)
	require.Len(t, ext.WithChecksum, 90)

	a := &Address{KeyIndex: 4, Hash: ext.Hash, Balance: 9}
	in := a.Input(consts.SecurityLevelMedium)
	require.EqualValues(t, 4, in.KeyIndex)
	require.EqualValues(t, 9, in.Balance)
	require.Equal(t, ext.Hash, in.Address)
	require.Equal(t, ext.Hash, HashesOf([]*Address{a})[0])
	require.Contains(t, a.String(), "#4")
}
