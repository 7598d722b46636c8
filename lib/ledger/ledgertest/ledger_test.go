package ledgertest

import (
	"strings"
	"testing"

	"github.com/iotaledger/iota.go/api"
	"github.com/iotaledger/iota.go/bundle"
	"github.com/iotaledger/iota.go/consts"
	"github.com/iotaledger/iota.go/trinary"
	"github.com/stretchr/testify/require"
	"github.com/topocare/iota-pay-on-production/lib/ledger"
)

var seed = strings.Repeat("S", 81)

func TestDeriveAddresses(t *testing.T) {
	l := New()
	addrs, err := l.DeriveAddresses(seed, consts.SecurityLevelMedium, 5, 3)
	require.NoError(t, err)
	require.Len(t, addrs, 3)
	for i, a := range addrs {
		require.Len(t, a, 90)
		require.Equal(t, AddressAt(seed, uint64(5+i)), a)
	}
	require.NotEqual(t, addrs[0], addrs[1])
}

func TestSendAndConfirm(t *testing.T) {
	l := New()
	from := AddressAt(seed, 1)
	to := AddressAt(seed, 2)
	l.SetBalance(from, 10)

	req := &ledger.TransferRequest{
		Inputs:    []api.Input{{Address: ledger.StripChecksum(from), Balance: 10}},
		Transfers: bundle.Transfers{{Address: to, Value: 10}},
	}
	res, err := l.SendTransfer(req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Tail)
	require.EqualValues(t, 10, l.Balance(from))

	require.Equal(t, 1, l.ConfirmAll())
	require.EqualValues(t, 0, l.Balance(from))
	require.EqualValues(t, 10, l.Balance(to))
	spent, err := l.WereAddressesSpentFrom(trinary.Hashes{from})
	require.NoError(t, err)
	require.True(t, spent[0])
}

func TestSendRejectsUnbalanced(t *testing.T) {
	l := New()
	from := AddressAt(seed, 1)
	l.SetBalance(from, 5)
	_, err := l.SendTransfer(&ledger.TransferRequest{
		Inputs:    []api.Input{{Address: from, Balance: 5}},
		Transfers: bundle.Transfers{{Address: AddressAt(seed, 2), Value: 4}},
	})
	require.Error(t, err)
	require.Empty(t, l.Sent())
}

func TestFailSends(t *testing.T) {
	l := New()
	l.FailSends(ErrDepth)
	_, err := l.SendTransfer(&ledger.TransferRequest{})
	require.True(t, ledger.IsTransient(err))
	_, err = l.SendTransfer(&ledger.TransferRequest{})
	require.NoError(t, err)
}
