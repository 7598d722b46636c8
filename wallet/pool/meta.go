package pool

import (
	"fmt"

	"github.com/op/go-logging"
)

// Meta is balance and number of addresses of one view of a pool
type Meta struct {
	Balance uint64 `json:"balance"`
	Count   int    `json:"count"`
}

func (m Meta) String() string {
	return fmt.Sprintf("%d i/%d addr", m.Balance, m.Count)
}

func (m *Meta) add(balance uint64, count int) {
	m.Balance += balance
	m.Count += count
}

// sub never goes below zero. Returns false if it had to clamp
func (m *Meta) sub(balance uint64, count int) bool {
	ok := true
	if balance > m.Balance {
		m.Balance = 0
		ok = false
	} else {
		m.Balance -= balance
	}
	if count > m.Count {
		m.Count = 0
		ok = false
	} else {
		m.Count -= count
	}
	return ok
}

// subChecked removes the reservation from the view, logging accounting errors
func subChecked(log *logging.Logger, name, view string, m *Meta, r *Reservation) {
	if !m.sub(r.Balance, r.Count()) {
		errorf(log, "'%v': %v would go negative removing %v", name, view, r)
	}
}
