package pool

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/iotaledger/iota.go/api"
	"github.com/iotaledger/iota.go/bundle"
	"github.com/iotaledger/iota.go/consts"
	"github.com/iotaledger/iota.go/converter"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/wallet/address"
)

const tagTrytesSize = consts.TagTrinarySize / 3

// Resolver is the pool or target which created a reservation
type Resolver interface {
	Name() string
	Commit(id uuid.UUID) error
	Rollback(id uuid.UUID) error
}

// Source is anything the refund can drain
type Source interface {
	Resolver
	TakeAll() (*Reservation, error)
}

// Reservation is a set of addresses moved out of (take) or into (give) a pool, not yet resolved.
// It is resolved exactly once, by Commit or by Rollback
type Reservation struct {
	ID        uuid.UUID
	Addresses []*address.Address
	Balance   uint64
	// Managed addresses are used only by the wallet, so their balance is a reliable confirmation reference
	Managed bool
	// Owned addresses are derived from the wallet seed
	Owned bool
	owner Resolver
}

func newReservation(owner Resolver, addrs []*address.Address, managed, owned bool) *Reservation {
	return &Reservation{
		ID:        uuid.New(),
		Addresses: addrs,
		Balance:   address.TotalBalance(addrs),
		Managed:   managed,
		Owned:     owned,
		owner:     owner,
	}
}

func (r *Reservation) Count() int {
	return len(r.Addresses)
}

func (r *Reservation) Owner() string {
	return r.owner.Name()
}

func (r *Reservation) Commit() error {
	return r.owner.Commit(r.ID)
}

func (r *Reservation) Rollback() error {
	return r.owner.Rollback(r.ID)
}

func (r *Reservation) String() string {
	return fmt.Sprintf("%v %v: %d i/%d addr", r.owner.Name(), r.ID.String()[:8], r.Balance, len(r.Addresses))
}

// Inputs projects the reservation to ledger inputs, one per address
func (r *Reservation) Inputs(security consts.SecurityLevel) []api.Input {
	ret := make([]api.Input, len(r.Addresses))
	for i, a := range r.Addresses {
		ret[i] = a.Input(security)
	}
	return ret
}

// Transfers projects the reservation to ledger outputs, one per address.
// Message is ASCII, tag is in trytes. All outputs share message and tag
func (r *Reservation) Transfers(message string, tag Trytes) (bundle.Transfers, error) {
	var msgTrytes Trytes
	if message != "" {
		var err error
		if msgTrytes, err = converter.ASCIIToTrytes(message); err != nil {
			return nil, errors.Wrap(err, "can't convert message to trytes")
		}
	}
	if len(tag) > tagTrytesSize {
		return nil, fmt.Errorf("tag '%v' is longer than %d trytes", tag, tagTrytesSize)
	}
	tag += strings.Repeat("9", tagTrytesSize-len(tag))
	ret := make(bundle.Transfers, len(r.Addresses))
	for i, a := range r.Addresses {
		ret[i] = bundle.Transfer{
			Address: a.WithChecksum,
			Value:   a.Balance,
			Message: msgTrytes,
			Tag:     tag,
		}
	}
	return ret, nil
}

// ConfirmationRef is the address whose balance shows the reservation settled, nil if not managed
func (r *Reservation) ConfirmationRef() *address.Address {
	if !r.Managed || len(r.Addresses) == 0 {
		return nil
	}
	return r.Addresses[0]
}
