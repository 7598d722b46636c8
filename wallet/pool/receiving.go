package pool

import (
	"sync"

	"github.com/google/uuid"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/lib/ledger"
	"github.com/topocare/iota-pay-on-production/wallet/address"
)

// ReceivingPool watches a fixed set of addresses where customers deposit funds.
// It has no give side, balances are pulled from the ledger. Addresses spent by a committed take
// go back to the watched set with zero balance, the customer may deposit there again
type ReceivingPool struct {
	mu        sync.Mutex
	name      string
	client    ledger.Client
	watched   []*address.Address
	available Meta
	outgoing  Meta
	takes     map[uuid.UUID]*Reservation
	// commit generation per spent address
	spent   map[Hash]uint64
	commits uint64
	log     *logging.Logger
}

func NewReceivingPool(name string, client ledger.Client, addrs []*address.Address, log *logging.Logger) *ReceivingPool {
	ret := &ReceivingPool{
		name:    name,
		client:  client,
		watched: append([]*address.Address{}, addrs...),
		takes:   make(map[uuid.UUID]*Reservation),
		spent:   make(map[Hash]uint64),
		log:     log,
	}
	ret.recalc()
	return ret
}

func (p *ReceivingPool) Name() string {
	return p.name
}

func (p *ReceivingPool) recalc() {
	p.available = Meta{}
	for _, a := range p.watched {
		if a.Balance > 0 {
			p.available.add(a.Balance, 1)
		}
	}
}

// UpdateFromLedger pulls balances of all watched addresses. Reserved addresses are not queried.
// Returns true if any balance changed
func (p *ReceivingPool) UpdateFromLedger() (bool, error) {
	p.mu.Lock()
	snapshot := append([]*address.Address{}, p.watched...)
	gen := p.commits
	p.mu.Unlock()

	if len(snapshot) == 0 {
		return false, nil
	}
	balances, err := p.client.GetBalances(address.HashesOf(snapshot))
	if err != nil {
		return false, errors.Wrapf(err, "pool '%v': update from ledger", p.name)
	}
	if len(balances) != len(snapshot) {
		return false, errors.Errorf("pool '%v': %d balances returned for %d addresses", p.name, len(balances), len(snapshot))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// addresses taken or spent while the ledger was queried are skipped
	stillWatched := make(map[*address.Address]struct{}, len(p.watched))
	for _, a := range p.watched {
		stillWatched[a] = struct{}{}
	}
	changed := false
	for i, a := range snapshot {
		if _, ok := stillWatched[a]; !ok {
			continue
		}
		spentGen, wasSpent := p.spent[a.Hash]
		if wasSpent && spentGen > gen {
			continue
		}
		if a.Balance != balances[i] {
			debugf(p.log, "pool '%v': balance of %v changed to %d", p.name, a, balances[i])
			if wasSpent && a.Balance == 0 {
				warningf(p.log, "pool '%v': new deposit of %d i on %v which was already spent from",
					p.name, balances[i], a)
			}
			a.Balance = balances[i]
			changed = true
		}
	}
	if changed {
		p.recalc()
	}
	return changed, nil
}

// funded returns indices of watched addresses holding balance, in watched order
func (p *ReceivingPool) funded() []int {
	ret := make([]int, 0, p.available.Count)
	for i, a := range p.watched {
		if a.Balance > 0 {
			ret = append(ret, i)
		}
	}
	return ret
}

func (p *ReceivingPool) TakeBalance(b uint64) (*Reservation, error) {
	if b == 0 {
		return nil, ErrZeroAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.available.Balance < b {
		return nil, errors.Wrapf(ErrInsufficientBalance, "pool '%v': requested %d, available %d",
			p.name, b, p.available.Balance)
	}
	return p.take(p.fundedPrefix(b)), nil
}

func (p *ReceivingPool) TakeUpToBalance(b uint64) (*Reservation, error) {
	if b == 0 {
		return nil, ErrZeroAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.available.Count == 0 {
		return nil, errors.Wrapf(ErrEmptyPool, "pool '%v'", p.name)
	}
	return p.take(p.fundedPrefix(b)), nil
}

func (p *ReceivingPool) TakeAll() (*Reservation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.available.Count == 0 {
		return nil, errors.Wrapf(ErrEmptyPool, "pool '%v'", p.name)
	}
	return p.take(p.funded()), nil
}

// fundedPrefix returns the shortest prefix of funded addresses with balance >= b, or all of them
func (p *ReceivingPool) fundedPrefix(b uint64) []int {
	idx := p.funded()
	var sum uint64
	for i, j := range idx {
		sum += p.watched[j].Balance
		if sum >= b {
			return idx[:i+1]
		}
	}
	return idx
}

func (p *ReceivingPool) take(idx []int) *Reservation {
	addrs := make([]*address.Address, 0, len(idx))
	taken := make(map[int]struct{}, len(idx))
	for _, i := range idx {
		addrs = append(addrs, p.watched[i])
		taken[i] = struct{}{}
	}
	remaining := make([]*address.Address, 0, len(p.watched)-len(idx))
	for i, a := range p.watched {
		if _, ok := taken[i]; !ok {
			remaining = append(remaining, a)
		}
	}
	p.watched = remaining

	// receiving addresses are watched by customers too, not a confirmation reference
	ret := newReservation(p, addrs, false, true)
	p.takes[ret.ID] = ret
	p.outgoing.add(ret.Balance, ret.Count())
	p.recalc()
	debugf(p.log, "pool '%v': take %v", p.name, ret)
	return ret
}

func (p *ReceivingPool) Commit(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.takes[id]
	if !ok {
		return errors.Wrapf(ErrUnknownReservation, "pool '%v': commit %v", p.name, id)
	}
	delete(p.takes, id)
	subChecked(p.log, p.name, "outgoing", &p.outgoing, r)
	p.commits++
	for _, a := range r.Addresses {
		a.Balance = 0
		p.spent[a.Hash] = p.commits
	}
	// balance is polled again from the next update on
	p.watched = append(p.watched, r.Addresses...)
	debugf(p.log, "pool '%v': committed take %v, addresses watched again", p.name, r)
	return nil
}

func (p *ReceivingPool) Rollback(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.takes[id]
	if !ok {
		return errors.Wrapf(ErrUnknownReservation, "pool '%v': rollback %v", p.name, id)
	}
	delete(p.takes, id)
	subChecked(p.log, p.name, "outgoing", &p.outgoing, r)
	p.watched = append(append(make([]*address.Address, 0, len(p.watched)+r.Count()), r.Addresses...), p.watched...)
	p.recalc()
	debugf(p.log, "pool '%v': rolled back take %v", p.name, r)
	return nil
}

// Available is balance of watched addresses not reserved by any take
func (p *ReceivingPool) Available() Meta {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

func (p *ReceivingPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:     p.name,
		Current:  p.available,
		Outgoing: p.outgoing,
		Watched:  len(p.watched),
		Spent:    len(p.spent),
	}
}

func (p *ReceivingPool) Verify() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	funded := make([]*address.Address, 0, len(p.watched))
	for _, a := range p.watched {
		if a.Balance > 0 {
			funded = append(funded, a)
		}
	}
	if err := verifyMeta("available", p.available, funded); err != nil {
		return errors.Wrapf(err, "pool '%v'", p.name)
	}
	if err := verifyMeta("outgoing", p.outgoing, reserved(p.takes)); err != nil {
		return errors.Wrapf(err, "pool '%v'", p.name)
	}
	return nil
}
