package address

import (
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/iotaledger/iota.go/consts"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/lib/ledger"
)

const derivedCacheSize = 1024

// Factory hands out addresses never used before. The cursor only moves forward:
// each examined key index is consumed, whether it turned out to be usable or not
type Factory struct {
	mu       sync.Mutex
	client   ledger.Client
	seed     Trytes
	security consts.SecurityLevel
	cursor   uint64
	derived  *lru.Cache[uint64, Hash]
	log      *logging.Logger
}

func NewFactory(client ledger.Client, seed Trytes, security consts.SecurityLevel, cursor uint64, log *logging.Logger) (*Factory, error) {
	derived, err := lru.New[uint64, Hash](derivedCacheSize)
	if err != nil {
		return nil, err
	}
	return &Factory{
		client:   client,
		seed:     seed,
		security: security,
		cursor:   cursor,
		derived:  derived,
		log:      log,
	}, nil
}

func (f *Factory) debugf(format string, args ...interface{}) {
	if f.log != nil {
		f.log.Debugf(format, args...)
	}
}

// Cursor is the next key index to be examined
func (f *Factory) Cursor() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursor
}

// SetCursor moves the cursor. Used once after the scan of existing funds
func (f *Factory) SetCursor(cursor uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cursor = cursor
}

func (f *Factory) Security() consts.SecurityLevel {
	return f.security
}

// Range derives addresses for key indices first..last inclusive, without consulting the ledger.
// Every returned address has the given balance
func (f *Factory) Range(first, last uint64, balance uint64) ([]*Address, error) {
	if last < first {
		return nil, fmt.Errorf("wrong key index range %d..%d", first, last)
	}
	hashes, err := f.derive(first, last-first+1)
	if err != nil {
		return nil, err
	}
	ret := make([]*Address, len(hashes))
	for i, h := range hashes {
		ret[i] = &Address{
			KeyIndex:     first + uint64(i),
			Hash:         ledger.StripChecksum(h),
			WithChecksum: h,
			Balance:      balance,
		}
	}
	return ret, nil
}

// derive returns addresses with checksum for count indices from start. Cached indices are not derived again
func (f *Factory) derive(start, count uint64) (Hashes, error) {
	ret := make(Hashes, count)
	missingFrom := -1
	for i := uint64(0); i < count; i++ {
		if h, ok := f.derived.Get(start + i); ok {
			ret[i] = h
			continue
		}
		if missingFrom < 0 {
			missingFrom = int(i)
		}
	}
	if missingFrom < 0 {
		return ret, nil
	}
	// derive everything from the first miss, gaps are rare
	from := start + uint64(missingFrom)
	hashes, err := f.client.DeriveAddresses(f.seed, f.security, from, count-uint64(missingFrom))
	if err != nil {
		return nil, errors.Wrapf(err, "deriving addresses %d..%d", from, start+count-1)
	}
	if len(hashes) != int(count)-missingFrom {
		return nil, fmt.Errorf("expected %d addresses, derived %d", int(count)-missingFrom, len(hashes))
	}
	for i, h := range hashes {
		ret[missingFrom+i] = h
		f.derived.Add(from+uint64(i), h)
	}
	return ret, nil
}

func (f *Factory) NextFreeAddress() (*Address, error) {
	ret, err := f.NextFreeAddresses(1)
	if err != nil {
		return nil, err
	}
	return ret[0], nil
}

// NextFreeAddresses returns n addresses never spent from and holding zero balance.
// Candidates are examined in windows starting at the cursor. The cursor advances over every
// examined window, so rejected indices are never examined again.
// On ledger failure nothing is returned and the cursor stays where the failed window starts
func (f *Factory) NextFreeAddresses(n int) ([]*Address, error) {
	if n <= 0 {
		return nil, fmt.Errorf("wrong number of addresses requested: %d", n)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	ret := make([]*Address, 0, n)
	for len(ret) < n {
		want := n - len(ret)
		candidates, err := f.candidates(f.cursor, want)
		if err != nil {
			return nil, err
		}
		ret = append(ret, candidates...)
		if len(candidates) < want {
			f.debugf("address factory: %d of %d candidates at %d..%d are used", want-len(candidates), want,
				f.cursor, f.cursor+uint64(want)-1)
		}
		f.cursor += uint64(want)
	}
	return ret, nil
}

func (f *Factory) candidates(start uint64, count int) ([]*Address, error) {
	hashes, err := f.derive(start, uint64(count))
	if err != nil {
		return nil, err
	}
	plain := make(Hashes, len(hashes))
	for i := range hashes {
		plain[i] = ledger.StripChecksum(hashes[i])
	}
	spent, err := f.client.WereAddressesSpentFrom(plain)
	if err != nil {
		return nil, errors.Wrap(err, "address factory")
	}
	balances, err := f.client.GetBalances(plain)
	if err != nil {
		return nil, errors.Wrap(err, "address factory")
	}
	if len(spent) != count || len(balances) != count {
		return nil, fmt.Errorf("address factory: ledger returned %d/%d states for %d addresses",
			len(spent), len(balances), count)
	}
	ret := make([]*Address, 0, count)
	for i := range hashes {
		if spent[i] || balances[i] != 0 {
			continue
		}
		ret = append(ret, &Address{
			KeyIndex:     start + uint64(i),
			Hash:         plain[i],
			WithChecksum: hashes[i],
		})
	}
	return ret, nil
}
