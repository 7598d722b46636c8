// Package pool keeps balance accounting of the wallet's address pools.
//
// Every give or take creates a Reservation which is resolved exactly once by commit or rollback.
// current, incoming and outgoing views of a pool are kept equal to the sums over held addresses,
// open gives and open takes respectively.
package pool

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/wallet/address"
)

type Stats struct {
	Name     string `json:"name"`
	Current  Meta   `json:"current"`
	Incoming Meta   `json:"incoming"`
	Outgoing Meta   `json:"outgoing"`
	// receiving pool only
	Watched int `json:"watched,omitempty"`
	// addresses spent from at least once
	Spent int `json:"spent,omitempty"`
}

// Expected is what the pool will hold when all open reservations are committed.
// Taken addresses have already left current
func (s Stats) Expected() Meta {
	return Meta{
		Balance: s.Current.Balance + s.Incoming.Balance,
		Count:   s.Current.Count + s.Incoming.Count,
	}
}

// Pool is an address pool managed solely by the wallet: funds arrive only through its own gives
type Pool struct {
	mu       sync.Mutex
	name     string
	factory  *address.Factory
	held     []*address.Address
	current  Meta
	incoming Meta
	outgoing Meta
	gives    map[uuid.UUID]*Reservation
	takes    map[uuid.UUID]*Reservation
	log      *logging.Logger
}

func New(name string, factory *address.Factory, held []*address.Address, log *logging.Logger) *Pool {
	ret := &Pool{
		name:    name,
		factory: factory,
		held:    make([]*address.Address, 0, len(held)),
		gives:   make(map[uuid.UUID]*Reservation),
		takes:   make(map[uuid.UUID]*Reservation),
		log:     log,
	}
	for _, a := range held {
		ret.held = append(ret.held, a)
		ret.current.add(a.Balance, 1)
	}
	return ret
}

func (p *Pool) Name() string {
	return p.name
}

// GiveBalance reserves one fresh address which will receive balance
func (p *Pool) GiveBalance(balance uint64) (*Reservation, error) {
	return p.Give(1, balance)
}

// Give reserves count fresh addresses each receiving perAddress
func (p *Pool) Give(count int, perAddress uint64) (*Reservation, error) {
	if count <= 0 || perAddress == 0 {
		return nil, ErrZeroAmount
	}
	// factory calls the ledger, the pool is not locked meanwhile
	addrs, err := p.factory.NextFreeAddresses(count)
	if err != nil {
		return nil, errors.Wrapf(err, "pool '%v': give", p.name)
	}
	for _, a := range addrs {
		a.Balance = perAddress
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ret := newReservation(p, addrs, true, true)
	p.gives[ret.ID] = ret
	p.incoming.add(ret.Balance, ret.Count())
	debugf(p.log, "pool '%v': give %v", p.name, ret)
	return ret, nil
}

// TakeBalance reserves the shortest prefix of held addresses with balance >= b.
// The result may exceed b, balance of an address is spent as a whole
func (p *Pool) TakeBalance(b uint64) (*Reservation, error) {
	if b == 0 {
		return nil, ErrZeroAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.Balance < b {
		return nil, errors.Wrapf(ErrInsufficientBalance, "pool '%v': requested %d, available %d",
			p.name, b, p.current.Balance)
	}
	return p.take(p.prefixFor(b)), nil
}

// TakeUpToBalance is TakeBalance which takes the whole pool if its balance is below b
func (p *Pool) TakeUpToBalance(b uint64) (*Reservation, error) {
	if b == 0 {
		return nil, ErrZeroAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.held) == 0 {
		return nil, errors.Wrapf(ErrEmptyPool, "pool '%v'", p.name)
	}
	if p.current.Balance < b {
		return p.take(len(p.held)), nil
	}
	return p.take(p.prefixFor(b)), nil
}

func (p *Pool) TakeAll() (*Reservation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.held) == 0 {
		return nil, errors.Wrapf(ErrEmptyPool, "pool '%v'", p.name)
	}
	return p.take(len(p.held)), nil
}

// TakeElements reserves first n held addresses, for pools where every address holds one unit
func (p *Pool) TakeElements(n int) (*Reservation, error) {
	if n <= 0 {
		return nil, ErrZeroAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.held) < n {
		return nil, errors.Wrapf(ErrInsufficientBalance, "pool '%v': requested %d addresses, available %d",
			p.name, n, len(p.held))
	}
	return p.take(n), nil
}

// prefixFor returns length of the shortest prefix of held with balance >= b. Current balance must be >= b
func (p *Pool) prefixFor(b uint64) int {
	var sum uint64
	for i, a := range p.held {
		sum += a.Balance
		if sum >= b {
			return i + 1
		}
	}
	return len(p.held)
}

func (p *Pool) take(n int) *Reservation {
	addrs := make([]*address.Address, n)
	copy(addrs, p.held[:n])
	p.held = append(p.held[:0:0], p.held[n:]...)

	ret := newReservation(p, addrs, true, true)
	p.current.sub(ret.Balance, n)
	p.outgoing.add(ret.Balance, n)
	p.takes[ret.ID] = ret
	debugf(p.log, "pool '%v': take %v", p.name, ret)
	return ret
}

func (p *Pool) Commit(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.gives[id]; ok {
		delete(p.gives, id)
		subChecked(p.log, p.name, "incoming", &p.incoming, r)
		p.held = append(p.held, r.Addresses...)
		p.current.add(r.Balance, r.Count())
		debugf(p.log, "pool '%v': committed give %v", p.name, r)
		return nil
	}
	if r, ok := p.takes[id]; ok {
		delete(p.takes, id)
		subChecked(p.log, p.name, "outgoing", &p.outgoing, r)
		debugf(p.log, "pool '%v': committed take %v", p.name, r)
		return nil
	}
	return errors.Wrapf(ErrUnknownReservation, "pool '%v': commit %v", p.name, id)
}

func (p *Pool) Rollback(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r, ok := p.gives[id]; ok {
		// nothing was posted to the ledger, fresh addresses are just dropped
		delete(p.gives, id)
		subChecked(p.log, p.name, "incoming", &p.incoming, r)
		debugf(p.log, "pool '%v': rolled back give %v", p.name, r)
		return nil
	}
	if r, ok := p.takes[id]; ok {
		delete(p.takes, id)
		subChecked(p.log, p.name, "outgoing", &p.outgoing, r)
		p.held = append(append(make([]*address.Address, 0, len(p.held)+r.Count()), r.Addresses...), p.held...)
		p.current.add(r.Balance, r.Count())
		debugf(p.log, "pool '%v': rolled back take %v", p.name, r)
		return nil
	}
	return errors.Wrapf(ErrUnknownReservation, "pool '%v': rollback %v", p.name, id)
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Name:     p.name,
		Current:  p.current,
		Incoming: p.incoming,
		Outgoing: p.outgoing,
	}
}

func (p *Pool) Balance() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Balance
}

func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current.Count
}

// Held returns a copy of held addresses in take order
func (p *Pool) Held() []*address.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	ret := make([]*address.Address, len(p.held))
	copy(ret, p.held)
	return ret
}

// Verify checks accounting invariants of the pool
func (p *Pool) Verify() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := verifyMeta("current", p.current, p.held); err != nil {
		return errors.Wrapf(err, "pool '%v'", p.name)
	}
	if err := verifyMeta("incoming", p.incoming, reserved(p.gives)); err != nil {
		return errors.Wrapf(err, "pool '%v'", p.name)
	}
	if err := verifyMeta("outgoing", p.outgoing, reserved(p.takes)); err != nil {
		return errors.Wrapf(err, "pool '%v'", p.name)
	}
	return nil
}

func reserved(m map[uuid.UUID]*Reservation) []*address.Address {
	ret := make([]*address.Address, 0)
	for _, r := range m {
		ret = append(ret, r.Addresses...)
	}
	return ret
}

func verifyMeta(view string, m Meta, addrs []*address.Address) error {
	if m.Count != len(addrs) || m.Balance != address.TotalBalance(addrs) {
		return fmt.Errorf("%v is %v, addresses sum up to %d i/%d addr",
			view, m, address.TotalBalance(addrs), len(addrs))
	}
	return nil
}
