// Package ledgertest provides an in-memory ledger.Client for tests.
// Attached bundles stay pending until confirmed explicitly.
package ledgertest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/iotaledger/iota.go/bundle"
	"github.com/iotaledger/iota.go/consts"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/lib/ledger"
)

const fakeChecksum = "CHECKSUM9"

// ErrDepth is returned by SendTransfer when failing with FailSends(ErrDepth)
var ErrDepth = ledger.Transient(errors.New("reference transaction is too old"))

type attached struct {
	req  *ledger.TransferRequest
	tail Hash
}

type Ledger struct {
	mu            sync.Mutex
	balances      map[Hash]uint64
	spent         map[Hash]bool
	pending       []*attached
	sent          []*ledger.TransferRequest
	sendErrs      []error
	queryErr      error
	inconsistent  bool
	numTails      int
	promotions    int
	replays       int
	consistencies int
}

func New() *Ledger {
	return &Ledger{
		balances: make(map[Hash]uint64),
		spent:    make(map[Hash]bool),
	}
}

// letters encodes n with tryte letters only
func letters(n uint64) string {
	var sb strings.Builder
	for {
		sb.WriteByte(byte('A' + n%26))
		n /= 26
		if n == 0 {
			break
		}
	}
	return sb.String()
}

func pad(s string) Hash {
	return Hash(s + strings.Repeat("9", consts.HashTrytesSize-len(s)))
}

// AddressAt returns the address DeriveAddresses would return for the key index, with checksum
func AddressAt(seed Trytes, index uint64) Hash {
	prefix := string(seed)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return pad(prefix+"ADDR"+letters(index)) + fakeChecksum
}

func (l *Ledger) DeriveAddresses(seed Trytes, security consts.SecurityLevel, start, count uint64) (Hashes, error) {
	ret := make(Hashes, count)
	for i := range ret {
		ret[i] = AddressAt(seed, start+uint64(i))
	}
	return ret, nil
}

func (l *Ledger) GetBalances(addresses Hashes) ([]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.queryErr != nil {
		return nil, l.queryErr
	}
	ret := make([]uint64, len(addresses))
	for i, a := range addresses {
		ret[i] = l.balances[ledger.StripChecksum(a)]
	}
	return ret, nil
}

func (l *Ledger) WereAddressesSpentFrom(addresses Hashes) ([]bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.queryErr != nil {
		return nil, l.queryErr
	}
	ret := make([]bool, len(addresses))
	for i, a := range addresses {
		ret[i] = l.spent[ledger.StripChecksum(a)]
	}
	return ret, nil
}

func (l *Ledger) newTail() Hash {
	l.numTails++
	return pad("TAIL" + letters(uint64(l.numTails)))
}

func (l *Ledger) SendTransfer(req *ledger.TransferRequest) (*ledger.SendResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sendErrs) > 0 {
		err := l.sendErrs[0]
		l.sendErrs = l.sendErrs[1:]
		return nil, err
	}
	if req.InputBalance() != req.OutputBalance() {
		return nil, fmt.Errorf("inputs %d != outputs %d", req.InputBalance(), req.OutputBalance())
	}
	for _, in := range req.Inputs {
		if l.balances[ledger.StripChecksum(in.Address)] < in.Balance {
			return nil, fmt.Errorf("input %v holds less than %d", in.Address, in.Balance)
		}
	}
	cp := *req
	l.sent = append(l.sent, &cp)
	tail := l.newTail()
	l.pending = append(l.pending, &attached{req: &cp, tail: tail})
	return &ledger.SendResult{
		BundleHash: pad("BUNDLE" + letters(uint64(l.numTails))),
		Tail:       tail,
		Bundle:     bundle.Bundle{},
	}, nil
}

func (l *Ledger) CheckConsistency(tail Hash) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.queryErr != nil {
		return false, l.queryErr
	}
	l.consistencies++
	return !l.inconsistent, nil
}

func (l *Ledger) PromoteTransaction(tail Hash, depth, mwm uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.promotions++
	return nil
}

func (l *Ledger) ReplayBundle(tail Hash, depth, mwm uint64) (*ledger.SendResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.pending {
		if a.tail == tail {
			l.replays++
			a.tail = l.newTail()
			return &ledger.SendResult{
				BundleHash: pad("BUNDLE" + letters(uint64(l.numTails))),
				Tail:       a.tail,
				Bundle:     bundle.Bundle{},
			}, nil
		}
	}
	return nil, fmt.Errorf("unknown tail %v", tail)
}

// SetBalance sets confirmed balance of the address
func (l *Ledger) SetBalance(addr Hash, balance uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[ledger.StripChecksum(addr)] = balance
}

func (l *Ledger) Balance(addr Hash) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[ledger.StripChecksum(addr)]
}

func (l *Ledger) MarkSpent(addr Hash) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.spent[ledger.StripChecksum(addr)] = true
}

// FailSends makes next len(errs) calls to SendTransfer fail with errs, in order
func (l *Ledger) FailSends(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErrs = append(l.sendErrs, errs...)
}

// FailQueries makes balance, spent and consistency queries fail with err until called with nil
func (l *Ledger) FailQueries(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queryErr = err
}

func (l *Ledger) SetConsistent(consistent bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inconsistent = !consistent
}

// ConfirmAll applies all pending bundles to balances. Returns number of bundles confirmed
func (l *Ledger) ConfirmAll() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	ret := len(l.pending)
	for _, a := range l.pending {
		for _, in := range a.req.Inputs {
			h := ledger.StripChecksum(in.Address)
			l.balances[h] -= in.Balance
			l.spent[h] = true
		}
		for _, tr := range a.req.Transfers {
			l.balances[ledger.StripChecksum(tr.Address)] += tr.Value
		}
	}
	l.pending = nil
	return ret
}

// Sent returns copies of all successfully attached transfer requests
func (l *Ledger) Sent() []*ledger.TransferRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	ret := make([]*ledger.TransferRequest, len(l.sent))
	copy(ret, l.sent)
	return ret
}

func (l *Ledger) NumPending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *Ledger) Promotions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.promotions
}

func (l *Ledger) Replays() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.replays
}

var _ ledger.Client = (*Ledger)(nil)
