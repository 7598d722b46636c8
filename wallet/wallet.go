// Package wallet is the accounting and settlement core of a machine wallet.
//
// Customers deposit funds to receiving addresses. The wallet spreads deposits into production units,
// pays one or more units per service and can return everything it holds to the customer.
// The wallet state tells at any time whether the machine can be used.
package wallet

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	. "github.com/iotaledger/iota.go/trinary"
	"github.com/jonboulle/clockwork"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/lib/ledger"
	"github.com/topocare/iota-pay-on-production/lib/utils"
	"github.com/topocare/iota-pay-on-production/wallet/address"
	"github.com/topocare/iota-pay-on-production/wallet/confirm"
	"github.com/topocare/iota-pay-on-production/wallet/pool"
)

var ErrRefundInProgress = errors.New("refund already in progress")

// Layout tells where the wallet's addresses are
type Layout struct {
	ReceivingFirst uint64
	ReceivingLast  uint64
	// first key index handed out by the address factory, if Scan is false
	InitialKeyIndex uint64
	// if Scan is true, funds are searched in SearchFirst..SearchLast
	// and the factory starts after the last used address found
	Scan        bool
	SearchFirst uint64
	SearchLast  uint64
	// empty means an own address (for tests)
	PaymentAddress Hash
	RefundAddress  Hash
}

type Option func(*Wallet)

func WithClock(clock clockwork.Clock) Option {
	return func(w *Wallet) {
		w.clock = clock
	}
}

func WithLogger(log *logging.Logger) Option {
	return func(w *Wallet) {
		w.log = log
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(w *Wallet) {
		w.metrics = metrics
	}
}

type Wallet struct {
	params  Params
	client  ledger.Client
	clock   clockwork.Clock
	log     *logging.Logger
	metrics *Metrics

	factory      *address.Factory
	Receiving    *pool.ReceivingPool
	Usable       *pool.Pool
	Production   *pool.Pool
	Payment      *pool.UnmanagedTarget
	RefundTarget *pool.UnmanagedTarget
	monitor      *confirm.Monitor
	mgr          *TransactionManager

	stateMutex sync.Mutex
	state      State
	updSeq     uint64
	subsMutex  sync.RWMutex
	subs       []func(*StateUpdate)

	spreadCollecting atomic.Bool
}

// New creates the wallet. Params are completed with defaults
func New(client ledger.Client, params Params, layout Layout, opts ...Option) (*Wallet, error) {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if layout.ReceivingLast < layout.ReceivingFirst {
		return nil, fmt.Errorf("wrong receiving address range %d..%d", layout.ReceivingFirst, layout.ReceivingLast)
	}
	w := &Wallet{
		params: params,
		client: client,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(w)
	}

	var err error
	if w.factory, err = address.NewFactory(client, params.Seed, params.Security, 0, w.log); err != nil {
		return nil, err
	}
	receiving, err := w.factory.Range(layout.ReceivingFirst, layout.ReceivingLast, 0)
	if err != nil {
		return nil, errors.Wrap(err, "receiving addresses")
	}

	var usable, production []*address.Address
	cursor := layout.InitialKeyIndex
	if layout.Scan {
		if usable, production, cursor, err = w.scan(layout); err != nil {
			return nil, err
		}
	}
	if cursor <= layout.ReceivingLast {
		// the factory walks upwards and must never hand out a receiving address
		w.infof("wallet: free addresses start at %d, moved above receiving range %d..%d",
			cursor, layout.ReceivingFirst, layout.ReceivingLast)
		cursor = layout.ReceivingLast + 1
	}
	w.factory.SetCursor(cursor)

	w.Receiving = pool.NewReceivingPool("receiving", client, receiving, w.log)
	w.Usable = pool.New("usable", w.factory, usable, w.log)
	w.Production = pool.New("production", w.factory, production, w.log)
	if w.Payment, err = w.newTarget("payment", layout.PaymentAddress); err != nil {
		return nil, err
	}
	if w.RefundTarget, err = w.newTarget("refund", layout.RefundAddress); err != nil {
		return nil, err
	}
	w.monitor = confirm.NewMonitor(client, w.log)
	w.mgr = newTransactionManager(params, client, w.monitor, w.clock, w.log, w.metrics, w.onStageEvent)

	w.infof("wallet: receiving %d..%d, usable %v, production %v, free addresses from %d",
		layout.ReceivingFirst, layout.ReceivingLast, w.Usable.Stats().Current, w.Production.Stats().Current, cursor)
	w.recomputeState()
	return w, nil
}

func (w *Wallet) newTarget(name string, addr Hash) (*pool.UnmanagedTarget, error) {
	if addr == "" {
		a, err := w.factory.NextFreeAddress()
		if err != nil {
			return nil, errors.Wrapf(err, "own %v address", name)
		}
		w.warningf("wallet: no %v address configured, using own address %v", name, a.WithChecksum)
		addr = a.WithChecksum
	}
	return pool.NewUnmanagedTarget(name, addr, w.log), nil
}

func (w *Wallet) debugf(format string, args ...interface{}) {
	if w.log != nil {
		w.log.Debugf(format, args...)
	}
}

func (w *Wallet) infof(format string, args ...interface{}) {
	if w.log != nil {
		w.log.Infof(format, args...)
	}
}

func (w *Wallet) warningf(format string, args ...interface{}) {
	if w.log != nil {
		w.log.Warningf(format, args...)
	}
}

func (w *Wallet) errorf(format string, args ...interface{}) {
	if w.log != nil {
		w.log.Errorf(format, args...)
	}
}

func (w *Wallet) Params() Params {
	return w.params
}

func (w *Wallet) Manager() *TransactionManager {
	return w.mgr
}

// FactoryCursor is the next key index the address factory examines
func (w *Wallet) FactoryCursor() uint64 {
	return w.factory.Cursor()
}

// SpendUnits pays n production units to the payment address
func (w *Wallet) SpendUnits(n int, message string) error {
	if n <= 0 {
		return pool.ErrZeroAmount
	}
	if have := w.Production.Count(); have < n {
		return errors.Wrapf(pool.ErrInsufficientBalance, "%d units requested, %d available", n, have)
	}
	b := w.mgr.newBundle(&payPlan{w: w, units: n, message: message})
	if err := w.mgr.Submit(b); err != nil {
		return err
	}
	w.infof("wallet: %v submitted: %d units, message '%v'", b, n, message)
	return nil
}

// SpreadToUnits converts n units worth of usable and receiving funds into production units
func (w *Wallet) SpreadToUnits(n int) error {
	if n <= 0 {
		return pool.ErrZeroAmount
	}
	if !w.spreadCollecting.CompareAndSwap(false, true) {
		return errors.New("another spread is being collected")
	}
	b := w.mgr.newBundle(&spreadPlan{w: w, units: n})
	if err := w.mgr.Submit(b); err != nil {
		w.spreadCollecting.Store(false)
		return err
	}
	w.infof("wallet: %v submitted: %d units", b, n)
	return nil
}

// ReturnToCustomer sends everything the wallet holds to the refund address.
// Waits in the background until nothing else is in flight
func (w *Wallet) ReturnToCustomer() error {
	b := w.mgr.newBundle(&refundPlan{w: w})
	if !w.mgr.submitRefund(b) {
		return ErrRefundInProgress
	}
	w.infof("wallet: %v submitted", b)
	return nil
}

// Maintain is one periodic maintenance cycle: pull receiving balances, settle confirmed bundles,
// resubmit bundles due for promotion and replenish the production pool
func (w *Wallet) Maintain() {
	if _, err := w.Receiving.UpdateFromLedger(); err != nil {
		w.errorf("wallet: %v", err)
	}
	if err := w.monitor.UpdateFromLedger(); err != nil {
		w.errorf("wallet: %v", err)
	}
	w.mgr.Poll(w.clock.Now())
	w.replenish()
	w.recomputeState()
	w.metrics.observePools(w.Receiving.Stats(), w.Usable.Stats(), w.Production.Stats(),
		w.Payment.Stats(), w.RefundTarget.Stats())
}

// replenish starts a spread when the production pool is expected to fall below the lower border
func (w *Wallet) replenish() {
	if requested, _ := w.mgr.refund.status(); requested {
		return
	}
	if w.spreadCollecting.Load() {
		return
	}
	expected := w.Production.Stats().Expected().Count
	if expected >= w.params.LowerBorder {
		return
	}
	funds := w.Usable.Balance() + w.Receiving.Available().Balance
	units := utils.Min(int(funds/w.params.UnitSize), w.params.UpperBorder-expected)
	if units <= 0 {
		return
	}
	w.infof("wallet: production pool expects %d units, lower border %d. Spreading %d units",
		expected, w.params.LowerBorder, units)
	if err := w.SpreadToUnits(units); err != nil {
		w.warningf("wallet: can't replenish production pool: %v", err)
	}
}

// Run does maintenance every MaintenanceInterval until ctx is done
func (w *Wallet) Run(ctx context.Context) {
	ticker := w.clock.NewTicker(w.params.MaintenanceInterval)
	defer ticker.Stop()

	w.Maintain()
	for {
		select {
		case <-ctx.Done():
			w.infof("wallet: stopping")
			w.mgr.Stop()
			return
		case <-ticker.Chan():
			w.Maintain()
		}
	}
}

// Wait blocks until no bundle occupies a worker
func (w *Wallet) Wait() {
	w.mgr.Wait()
}

func (w *Wallet) Stop() {
	w.mgr.Stop()
}
