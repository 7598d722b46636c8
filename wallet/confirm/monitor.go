// Package confirm detects settled bundles by polling balances of reference addresses.
// Balances survive pruning of the ledger history, inclusion states do not
package confirm

import (
	"sync"

	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/lib/ledger"
)

type expectation struct {
	expected  uint64
	confirmed bool
}

// Monitor maps watched address to the balance which means confirmation
type Monitor struct {
	mu      sync.Mutex
	client  ledger.Client
	watched map[Hash]*expectation
	log     *logging.Logger
}

func NewMonitor(client ledger.Client, log *logging.Logger) *Monitor {
	return &Monitor{
		client:  client,
		watched: make(map[Hash]*expectation),
		log:     log,
	}
}

// Register starts watching the address. Registering an already watched address keeps the first expectation
func (m *Monitor) Register(addr Hash, expected uint64) {
	addr = ledger.StripChecksum(addr)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watched[addr]; ok {
		return
	}
	m.watched[addr] = &expectation{expected: expected}
}

func (m *Monitor) Cancel(addr Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watched, ledger.StripChecksum(addr))
}

// UpdateFromLedger queries balances of all unconfirmed watched addresses in one batch
func (m *Monitor) UpdateFromLedger() error {
	m.mu.Lock()
	addrs := make(Hashes, 0, len(m.watched))
	for a, e := range m.watched {
		if !e.confirmed {
			addrs = append(addrs, a)
		}
	}
	m.mu.Unlock()

	if len(addrs) == 0 {
		return nil
	}
	balances, err := m.client.GetBalances(addrs)
	if err != nil {
		return errors.Wrap(err, "confirmation monitor")
	}
	if len(balances) != len(addrs) {
		return errors.Errorf("confirmation monitor: %d balances returned for %d addresses", len(balances), len(addrs))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range addrs {
		e, ok := m.watched[a]
		if !ok {
			continue
		}
		if balances[i] == e.expected && !e.confirmed {
			e.confirmed = true
			if m.log != nil {
				m.log.Debugf("confirmation monitor: %v reached expected balance %d", a, e.expected)
			}
		}
	}
	return nil
}

// IsConfirmed returns true once, on the first call after confirmation was observed, and stops watching the address
func (m *Monitor) IsConfirmed(addr Hash) bool {
	addr = ledger.StripChecksum(addr)
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.watched[addr]
	if !ok || !e.confirmed {
		return false
	}
	delete(m.watched, addr)
	return true
}

func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watched)
}
