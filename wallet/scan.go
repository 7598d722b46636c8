package wallet

import (
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/lib/utils"
	"github.com/topocare/iota-pay-on-production/wallet/address"
)

const scanChunk = 500

// scan searches funds in the search range outside receiving addresses.
// Addresses holding exactly one unit go to production, other funded ones to usable.
// Returns the key index after the last used address found
func (w *Wallet) scan(layout Layout) (usable, production []*address.Address, cursor uint64, err error) {
	if layout.SearchLast < layout.SearchFirst {
		return nil, nil, 0, errors.Errorf("wrong search range %d..%d", layout.SearchFirst, layout.SearchLast)
	}
	cursor = layout.SearchFirst
	for first := layout.SearchFirst; first <= layout.SearchLast; first += scanChunk {
		last := first + uint64(utils.Min(scanChunk, int(layout.SearchLast-first+1))) - 1
		addrs, err := w.factory.Range(first, last, 0)
		if err != nil {
			return nil, nil, 0, errors.Wrap(err, "scan")
		}
		hashes := address.HashesOf(addrs)
		balances, err := w.client.GetBalances(hashes)
		if err != nil {
			return nil, nil, 0, errors.Wrapf(err, "scan %d..%d", first, last)
		}
		spent, err := w.client.WereAddressesSpentFrom(hashes)
		if err != nil {
			return nil, nil, 0, errors.Wrapf(err, "scan %d..%d", first, last)
		}
		if len(balances) != len(addrs) || len(spent) != len(addrs) {
			return nil, nil, 0, errors.Errorf("scan %d..%d: wrong number of results", first, last)
		}
		for i, a := range addrs {
			if a.KeyIndex >= layout.ReceivingFirst && a.KeyIndex <= layout.ReceivingLast {
				continue
			}
			if balances[i] == 0 && !spent[i] {
				continue
			}
			cursor = a.KeyIndex + 1
			switch {
			case balances[i] == 0:
			case spent[i]:
				w.warningf("wallet: scan: %v was spent from but holds %d i. Not used", a, balances[i])
			default:
				a.Balance = balances[i]
				if a.Balance == w.params.UnitSize {
					production = append(production, a)
				} else {
					usable = append(usable, a)
				}
			}
		}
		if last == layout.SearchLast {
			// avoids overflow at the top of the key space
			break
		}
	}
	w.infof("wallet: scan %d..%d: %d usable, %d production addresses, next free index %d",
		layout.SearchFirst, layout.SearchLast, len(usable), len(production), cursor)
	return usable, production, cursor, nil
}
