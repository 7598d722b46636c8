// Package address derives wallet addresses and finds fresh ones.
package address

import (
	"fmt"

	"github.com/iotaledger/iota.go/api"
	"github.com/iotaledger/iota.go/consts"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/topocare/iota-pay-on-production/lib/ledger"
)

// Address is a ledger address with the wallet's view of its balance.
// KeyIndex is meaningful only for addresses derived from the wallet seed
type Address struct {
	KeyIndex     uint64
	Hash         Hash // 81 trytes
	WithChecksum Hash // 90 trytes
	Balance      uint64
}

// External wraps an address not derived from the wallet seed
func External(addr Hash) *Address {
	return &Address{
		Hash:         ledger.StripChecksum(addr),
		WithChecksum: addr,
	}
}

func (a *Address) String() string {
	h := a.Hash
	if len(h) > 12 {
		h = h[:12] + ".."
	}
	return fmt.Sprintf("%v(#%d, %d i)", h, a.KeyIndex, a.Balance)
}

// Input is the ledger input spending the whole balance of the address
func (a *Address) Input(security consts.SecurityLevel) api.Input {
	return api.Input{
		Address:  a.Hash,
		KeyIndex: a.KeyIndex,
		Security: security,
		Balance:  a.Balance,
	}
}

// HashesOf returns addresses without checksum
func HashesOf(addrs []*Address) Hashes {
	ret := make(Hashes, len(addrs))
	for i, a := range addrs {
		ret[i] = a.Hash
	}
	return ret
}

func TotalBalance(addrs []*Address) uint64 {
	var ret uint64
	for _, a := range addrs {
		ret += a.Balance
	}
	return ret
}
