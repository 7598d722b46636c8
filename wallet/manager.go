package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/lib/ledger"
	"github.com/topocare/iota-pay-on-production/wallet/confirm"
	"golang.org/x/sync/semaphore"
)

var (
	ErrSubmissionBlocked       = errors.New("submission blocked: refund in progress")
	ErrNoConfirmationReference = errors.New("bundle has no address usable as confirmation reference")
	ErrNothingToSend           = errors.New("bundle has no inputs or no outputs")
)

// refundBarrier gives the refund bundle exclusive right to drain the pools.
// Requested blocks new submissions, granted releases the waiting refund
type refundBarrier struct {
	mu        sync.Mutex
	requested bool
	granted   bool
	grantCh   chan struct{}
}

func (r *refundBarrier) request() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requested {
		return false
	}
	r.requested = true
	r.granted = false
	r.grantCh = make(chan struct{})
	return true
}

func (r *refundBarrier) grant() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.requested || r.granted {
		return false
	}
	r.granted = true
	close(r.grantCh)
	return true
}

func (r *refundBarrier) release() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.requested {
		return false
	}
	if !r.granted {
		close(r.grantCh)
	}
	r.requested = false
	r.granted = false
	r.grantCh = nil
	return true
}

func (r *refundBarrier) status() (requested, granted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requested, r.granted
}

func (r *refundBarrier) wait(ctx context.Context) error {
	r.mu.Lock()
	ch := r.grantCh
	r.mu.Unlock()
	if ch == nil {
		return errors.New("refund was not requested")
	}
	select {
	case <-ch:
	case <-ctx.Done():
		return ctx.Err()
	}
	if _, granted := r.status(); !granted {
		return errors.New("refund released before it was granted")
	}
	return nil
}

// TransactionManager runs bundles in a bounded pool of workers and tracks them until confirmation.
// Attach, promotion and reattachment are serialized wallet-wide by one mutex
type TransactionManager struct {
	params  Params
	client  ledger.Client
	monitor *confirm.Monitor
	clock   clockwork.Clock
	log     *logging.Logger
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sem    *semaphore.Weighted

	powMutex  sync.Mutex
	preAttach *stageCounter
	atAttach  *stageCounter
	pending   *stageCounter

	listMutex sync.Mutex
	awaiting  []*Bundle
	stalled   []*Bundle

	refund   refundBarrier
	listener func(StageEvent)

	seq           atomic.Uint64
	numStalled    atomic.Int64
	promotions    atomic.Uint64
	reattachments atomic.Uint64
}

func newTransactionManager(params Params, client ledger.Client, monitor *confirm.Monitor, clock clockwork.Clock,
	log *logging.Logger, metrics *Metrics, listener func(StageEvent)) *TransactionManager {
	ret := &TransactionManager{
		params:   params,
		client:   client,
		monitor:  monitor,
		clock:    clock,
		log:      log,
		metrics:  metrics,
		sem:      semaphore.NewWeighted(int64(params.Workers)),
		listener: listener,
	}
	ret.ctx, ret.cancel = context.WithCancel(context.Background())
	ret.preAttach = newStageCounter(StagePreAttach, ret.emit, ret.underflow)
	ret.atAttach = newStageCounter(StageAtAttach, ret.emit, ret.underflow)
	ret.pending = newStageCounter(StagePending, ret.emit, ret.underflow)
	return ret
}

func (m *TransactionManager) debugf(format string, args ...interface{}) {
	if m.log != nil {
		m.log.Debugf(format, args...)
	}
}

func (m *TransactionManager) infof(format string, args ...interface{}) {
	if m.log != nil {
		m.log.Infof(format, args...)
	}
}

func (m *TransactionManager) warningf(format string, args ...interface{}) {
	if m.log != nil {
		m.log.Warningf(format, args...)
	}
}

func (m *TransactionManager) errorf(format string, args ...interface{}) {
	if m.log != nil {
		m.log.Errorf(format, args...)
	}
}

func (m *TransactionManager) emit(ev StageEvent) {
	m.metrics.stageChanged(ev)
	if m.listener != nil {
		m.listener(ev)
	}
}

func (m *TransactionManager) underflow(stage Stage) {
	m.errorf("transaction manager: counter '%v' would go negative", stage)
}

func (m *TransactionManager) newBundle(p plan) *Bundle {
	return &Bundle{
		id:   m.seq.Add(1),
		plan: p,
		mgr:  m,
	}
}

// Submit schedules a new bundle. Rejected while a refund is requested
func (m *TransactionManager) Submit(b *Bundle) error {
	// counting first: a refund requested from now on waits for this bundle
	m.preAttach.inc()
	if requested, _ := m.refund.status(); requested {
		m.preAttach.dec()
		return ErrSubmissionBlocked
	}
	m.start(b)
	return nil
}

// submitBypass schedules regardless of the refund barrier.
// Used for the refund itself and for promote/reattach rounds of already attached bundles
func (m *TransactionManager) submitBypass(b *Bundle) {
	m.preAttach.inc()
	m.start(b)
}

// submitRefund requests the refund barrier and schedules the refund bundle.
// The refund is counted before the request, so the grant waits for every other bundle
func (m *TransactionManager) submitRefund(b *Bundle) bool {
	m.preAttach.inc()
	if !m.requestRefund() {
		m.preAttach.dec()
		return false
	}
	m.start(b)
	return true
}

// start runs the bundle in a worker. preAttach must already count it
func (m *TransactionManager) start(b *Bundle) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		if g, ok := b.plan.(gated); ok && b.State() == BundleConstructed {
			if err := g.await(m.ctx); err != nil {
				m.preAttach.dec()
				b.abandon(err)
				return
			}
		}
		if err := m.sem.Acquire(m.ctx, 1); err != nil {
			m.interrupted(b, err)
			return
		}
		defer m.sem.Release(1)
		b.run()
	}()
}

// interrupted handles a bundle which could not get a worker because the manager is stopping
func (m *TransactionManager) interrupted(b *Bundle, err error) {
	if b.State() == BundleConstructed {
		m.preAttach.dec()
		b.abandon(err)
		return
	}
	// already attached, keep it tracked
	m.enqueue(b)
	m.preAttach.dec()
}

func (m *TransactionManager) enqueue(b *Bundle) {
	b.setState(BundleAwaitingConfirmation)
	m.listMutex.Lock()
	defer m.listMutex.Unlock()
	m.pending.inc()
	m.awaiting = append(m.awaiting, b)
}

// Poll settles confirmed bundles and resubmits those due for promote/reattach.
// Confirmation monitor must be updated before
func (m *TransactionManager) Poll(now time.Time) {
	m.listMutex.Lock()
	defer m.listMutex.Unlock()

	keep := make([]*Bundle, 0, len(m.awaiting))
	for _, b := range m.awaiting {
		switch b.check(now) {
		case checkConfirmed:
			m.pending.dec()
		case checkDue:
			b.setState(BundlePromoteOrReattach)
			// counted in preAttach before it leaves pending
			m.submitBypass(b)
			m.pending.dec()
		case checkStalled:
			b.stall()
			m.stalled = append(m.stalled, b)
			m.numStalled.Add(1)
			m.pending.dec()
		default:
			keep = append(keep, b)
		}
	}
	m.awaiting = keep

	keepStalled := make([]*Bundle, 0, len(m.stalled))
	for _, b := range m.stalled {
		ref, _ := b.Reference()
		if m.monitor.IsConfirmed(ref) {
			m.infof("%v: stalled bundle confirmed", b)
			b.confirm()
			m.numStalled.Add(-1)
			continue
		}
		keepStalled = append(keepStalled, b)
	}
	m.stalled = keepStalled
}

// InFlight is the number of bundles before attach, at attach and waiting for confirmation
func (m *TransactionManager) InFlight() int {
	return m.preAttach.get() + m.atAttach.get() + m.pending.get()
}

func (m *TransactionManager) requestRefund() bool {
	if !m.refund.request() {
		return false
	}
	m.infof("transaction manager: refund requested, submissions are blocked")
	m.emit(StageEvent{Stage: StageRefund, Old: 0, New: 1})
	return true
}

// refundState grants the refund once nothing but the refund itself is in flight
func (m *TransactionManager) refundState() (requested, granted bool) {
	requested, granted = m.refund.status()
	if requested && !granted && m.InFlight() <= 1 {
		if m.refund.grant() {
			m.infof("transaction manager: refund granted")
		}
		requested, granted = m.refund.status()
	}
	return
}

func (m *TransactionManager) releaseRefund() {
	if !m.refund.release() {
		return
	}
	m.infof("transaction manager: refund finished, submissions are unblocked")
	m.emit(StageEvent{Stage: StageRefund, Old: 1, New: 0})
}

// Wait blocks until all workers are idle
func (m *TransactionManager) Wait() {
	m.wg.Wait()
}

// Stop interrupts workers waiting for a slot or for the refund grant and waits for all workers
func (m *TransactionManager) Stop() {
	m.cancel()
	m.wg.Wait()
}

type ManagerStats struct {
	PreAttach     int    `json:"preAttach"`
	AtAttach      int    `json:"atAttach"`
	Pending       int    `json:"pending"`
	Stalled       int    `json:"stalled"`
	Promotions    uint64 `json:"promotions"`
	Reattachments uint64 `json:"reattachments"`
	Refund        bool   `json:"refundRequested"`
	RefundGranted bool   `json:"refundGranted"`
}

func (m *TransactionManager) Stats() ManagerStats {
	requested, granted := m.refund.status()
	return ManagerStats{
		PreAttach:     m.preAttach.get(),
		AtAttach:      m.atAttach.get(),
		Pending:       m.pending.get(),
		Stalled:       int(m.numStalled.Load()),
		Promotions:    m.promotions.Load(),
		Reattachments: m.reattachments.Load(),
		Refund:        requested,
		RefundGranted: granted,
	}
}
