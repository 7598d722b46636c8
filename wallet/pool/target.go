package pool

import (
	"sync"

	"github.com/google/uuid"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/wallet/address"
)

// UnmanagedTarget is an external address. Its real balance is not tracked,
// only the total of gives not yet resolved. Commit and rollback are the same
type UnmanagedTarget struct {
	mu      sync.Mutex
	name    string
	addr    Hash
	pending Meta
	gives   map[uuid.UUID]*Reservation
	log     *logging.Logger
}

func NewUnmanagedTarget(name string, addr Hash, log *logging.Logger) *UnmanagedTarget {
	return &UnmanagedTarget{
		name:  name,
		addr:  addr,
		gives: make(map[uuid.UUID]*Reservation),
		log:   log,
	}
}

func (t *UnmanagedTarget) Name() string {
	return t.name
}

func (t *UnmanagedTarget) Address() Hash {
	return t.addr
}

func (t *UnmanagedTarget) Give(balance uint64) (*Reservation, error) {
	if balance == 0 {
		return nil, ErrZeroAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	a := address.External(t.addr)
	a.Balance = balance
	ret := newReservation(t, []*address.Address{a}, false, false)
	t.gives[ret.ID] = ret
	t.pending.add(balance, 1)
	debugf(t.log, "target '%v': give %v", t.name, ret)
	return ret, nil
}

func (t *UnmanagedTarget) resolve(id uuid.UUID, op string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.gives[id]
	if !ok {
		return errors.Wrapf(ErrUnknownReservation, "target '%v': %v %v", t.name, op, id)
	}
	delete(t.gives, id)
	subChecked(t.log, t.name, "pending", &t.pending, r)
	debugf(t.log, "target '%v': %v %v", t.name, op, r)
	return nil
}

func (t *UnmanagedTarget) Commit(id uuid.UUID) error {
	return t.resolve(id, "commit")
}

func (t *UnmanagedTarget) Rollback(id uuid.UUID) error {
	return t.resolve(id, "rollback")
}

// Pending is the balance given to the target but not yet resolved
func (t *UnmanagedTarget) Pending() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending.Balance
}

func (t *UnmanagedTarget) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Name:     t.name,
		Incoming: t.pending,
	}
}
