package ledger

import (
	"fmt"
	"net"
	"testing"

	"github.com/iotaledger/iota.go/api"
	"github.com/iotaledger/iota.go/bundle"
	"github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	require.False(t, IsTransient(nil))
	require.False(t, IsTransient(errors.New("insufficient balance")))

	err := Transient(errors.New("depth"))
	require.True(t, IsTransient(err))
	require.True(t, IsTransient(errors.Wrap(err, "sendTrytes")))
	require.True(t, IsTransient(fmt.Errorf("attach: %w", err)))
	require.Nil(t, Transient(nil))
}

func TestClassify(t *testing.T) {
	require.Nil(t, classify(nil))
	require.True(t, IsTransient(classify(errors.New("Reference transaction is too old"))))
	require.True(t, IsTransient(classify(errors.New("Invalid depth input"))))
	require.True(t, IsTransient(classify(gobreaker.ErrOpenState)))
	require.True(t, IsTransient(classify(errors.Wrap(timeoutErr{}, "getBalances"))))
	require.False(t, IsTransient(classify(errors.New("invalid seed"))))
}

func TestStripChecksum(t *testing.T) {
	h81 := "A" + fmt.Sprintf("%080d", 0)
	require.Len(t, StripChecksum(h81+"CHECKSUM9"), 81)
	require.Equal(t, h81, StripChecksum(h81))
}

func TestTransferRequestBalance(t *testing.T) {
	req := &TransferRequest{
		Inputs:    []api.Input{{Balance: 3}, {Balance: 4}},
		Transfers: bundle.Transfers{{Value: 5}, {Value: 2}},
	}
	require.EqualValues(t, 7, req.InputBalance())
	require.EqualValues(t, 7, req.OutputBalance())
}

func TestChunks(t *testing.T) {
	addrs := make(trinary.Hashes, 0, 1201)
	for i := 0; i < 1201; i++ {
		addrs = append(addrs, "A")
	}
	ch := chunks(addrs)
	require.Len(t, ch, 3)
	require.Len(t, ch[0], maxAddressesPerCall)
	require.Len(t, ch[2], 201)
}
