// Package ledger is the narrow view of the IOTA tangle the wallet works against.
package ledger

import (
	"github.com/iotaledger/iota.go/api"
	"github.com/iotaledger/iota.go/bundle"
	"github.com/iotaledger/iota.go/consts"
	. "github.com/iotaledger/iota.go/trinary"
)

// Client is everything the wallet needs from the ledger.
// DeriveAddresses is local, all other calls may fail transiently
type Client interface {
	// DeriveAddresses returns count addresses with checksum starting at key index start
	DeriveAddresses(seed Trytes, security consts.SecurityLevel, start, count uint64) (Hashes, error)
	// GetBalances returns confirmed balances in the order of addresses
	GetBalances(addresses Hashes) ([]uint64, error)
	WereAddressesSpentFrom(addresses Hashes) ([]bool, error)
	// SendTransfer signs, attaches and broadcasts one bundle
	SendTransfer(req *TransferRequest) (*SendResult, error)
	CheckConsistency(tail Hash) (bool, error)
	PromoteTransaction(tail Hash, depth, mwm uint64) error
	ReplayBundle(tail Hash, depth, mwm uint64) (*SendResult, error)
}

// TransferRequest is a complete bundle description. Value of Inputs must be equal to value of Transfers,
// the wallet never relies on remainder addresses
type TransferRequest struct {
	Seed      Trytes
	Security  consts.SecurityLevel
	Depth     uint64
	MWM       uint64
	Transfers bundle.Transfers
	Inputs    []api.Input
}

func (req *TransferRequest) InputBalance() uint64 {
	var ret uint64
	for _, in := range req.Inputs {
		ret += in.Balance
	}
	return ret
}

func (req *TransferRequest) OutputBalance() uint64 {
	var ret uint64
	for _, tr := range req.Transfers {
		ret += tr.Value
	}
	return ret
}

type SendResult struct {
	BundleHash Hash
	Tail       Hash
	Bundle     bundle.Bundle
}

// StripChecksum returns the 81-tryte form of the address
func StripChecksum(addr Hash) Hash {
	if len(addr) > consts.HashTrytesSize {
		return addr[:consts.HashTrytesSize]
	}
	return addr
}
