package wallet

import (
	"fmt"
	"sync"
	"time"

	. "github.com/iotaledger/iota.go/trinary"
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/lib/ledger"
	"github.com/topocare/iota-pay-on-production/wallet/pool"
)

type BundleState int

const (
	BundleConstructed BundleState = iota
	BundleCollecting
	BundleAttaching
	BundleAwaitingConfirmation
	BundlePromoteOrReattach
	BundleConfirmed
	BundleStalled
	BundleAbandoned
)

func (s BundleState) String() string {
	switch s {
	case BundleConstructed:
		return "constructed"
	case BundleCollecting:
		return "collecting"
	case BundleAttaching:
		return "attaching"
	case BundleAwaitingConfirmation:
		return "awaitingConfirmation"
	case BundlePromoteOrReattach:
		return "promoteOrReattach"
	case BundleConfirmed:
		return "confirmed"
	case BundleStalled:
		return "stalled"
	case BundleAbandoned:
		return "abandoned"
	}
	return "unknown"
}

type output struct {
	res     *pool.Reservation
	message string
}

type checkResult int

const (
	checkWaiting checkResult = iota
	checkConfirmed
	checkDue
	checkStalled
)

// Bundle is one ledger bundle with the reservations it settles
type Bundle struct {
	mu          sync.Mutex
	id          uint64
	plan        plan
	mgr         *TransactionManager
	state       BundleState
	inputs      []*pool.Reservation
	outputs     []output
	ref         Hash
	refValue    uint64
	weakRef     bool
	result      *ledger.SendResult
	firstAttach time.Time
	lastAttach  time.Time
	rounds      int
}

func (b *Bundle) String() string {
	return fmt.Sprintf("bundle #%d(%v)", b.id, b.plan.kind())
}

func (b *Bundle) ID() uint64 {
	return b.id
}

func (b *Bundle) Kind() Kind {
	return b.plan.kind()
}

func (b *Bundle) State() BundleState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bundle) setState(s BundleState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

// Tail of the last attachment, empty before attach
func (b *Bundle) Tail() Hash {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.result == nil {
		return ""
	}
	return b.result.Tail
}

// Reference returns confirmation reference address and balance expected on it
func (b *Bundle) Reference() (Hash, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ref, b.refValue
}

func (b *Bundle) addInput(r *pool.Reservation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputs = append(b.inputs, r)
}

func (b *Bundle) addOutput(r *pool.Reservation, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outputs = append(b.outputs, output{res: r, message: message})
}

func (b *Bundle) reservations() []*pool.Reservation {
	b.mu.Lock()
	defer b.mu.Unlock()
	ret := make([]*pool.Reservation, 0, len(b.inputs)+len(b.outputs))
	ret = append(ret, b.inputs...)
	for _, o := range b.outputs {
		ret = append(ret, o.res)
	}
	return ret
}

// run is one cycle of the bundle in a worker
func (b *Bundle) run() {
	switch s := b.State(); s {
	case BundleConstructed:
		b.createAndSend()
	case BundlePromoteOrReattach:
		b.promoteOrReattach()
	default:
		b.mgr.errorf("%v: can't run in state '%v'", b, s)
		b.mgr.preAttach.dec()
	}
}

func (b *Bundle) createAndSend() {
	m := b.mgr
	b.setState(BundleCollecting)

	req, err := b.prepare()
	if err != nil {
		m.preAttach.dec()
		b.abandon(err)
		return
	}

	m.powMutex.Lock()
	m.atAttach.inc()
	m.preAttach.dec()
	b.setState(BundleAttaching)

	res, err := b.attach(req)
	if err == nil {
		m.monitor.Register(b.ref, b.refValue)
		now := m.clock.Now()
		b.mu.Lock()
		b.result = res
		b.firstAttach = now
		b.lastAttach = now
		b.mu.Unlock()
	}
	m.powMutex.Unlock()

	if err != nil {
		m.atAttach.dec()
		b.abandon(err)
		return
	}
	m.infof("%v: attached, bundle hash %v, tail %v, confirmation reference %v (%d i)",
		b, res.BundleHash, res.Tail, b.ref, b.refValue)
	m.enqueue(b)
	m.atAttach.dec()
}

// prepare collects reservations, projects them to the transfer request and selects the confirmation reference
func (b *Bundle) prepare() (*ledger.TransferRequest, error) {
	if err := b.plan.collect(b); err != nil {
		return nil, errors.Wrap(err, "collect")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.inputs) == 0 || len(b.outputs) == 0 {
		return nil, ErrNothingToSend
	}
	p := b.mgr.params
	req := &ledger.TransferRequest{
		Seed:     p.Seed,
		Security: p.Security,
		Depth:    p.Depth,
		MWM:      p.MWM,
	}
	for _, in := range b.inputs {
		req.Inputs = append(req.Inputs, in.Inputs(p.Security)...)
	}
	for _, out := range b.outputs {
		transfers, err := out.res.Transfers(out.message, p.Tag)
		if err != nil {
			return nil, err
		}
		req.Transfers = append(req.Transfers, transfers...)
	}
	if req.InputBalance() != req.OutputBalance() {
		return nil, fmt.Errorf("inputs %d i don't match outputs %d i", req.InputBalance(), req.OutputBalance())
	}
	if err := b.selectReference(); err != nil {
		return nil, err
	}
	return req, nil
}

// selectReference prefers a managed input, then a managed output, then an own unmanaged input.
// Must be called with b.mu locked
func (b *Bundle) selectReference() error {
	for _, in := range b.inputs {
		if a := in.ConfirmationRef(); a != nil {
			b.ref, b.refValue = a.Hash, 0
			return nil
		}
	}
	for _, out := range b.outputs {
		if a := out.res.ConfirmationRef(); a != nil {
			b.ref, b.refValue = a.Hash, a.Balance
			return nil
		}
	}
	for _, in := range b.inputs {
		if in.Owned && in.Count() > 0 {
			b.ref, b.refValue, b.weakRef = in.Addresses[0].Hash, 0, true
			b.mgr.warningf("%v: only own unmanaged input %v can be confirmation reference", b, in.Addresses[0])
			return nil
		}
	}
	return ErrNoConfirmationReference
}

// attach sends the bundle with increasing depth while the ledger reports transient errors.
// Called with the PoW mutex locked
func (b *Bundle) attach(req *ledger.TransferRequest) (*ledger.SendResult, error) {
	m := b.mgr
	var err error
	for depth := m.params.Depth; depth <= m.params.MaxDepth; depth++ {
		req.Depth = depth
		var res *ledger.SendResult
		if res, err = m.client.SendTransfer(req); err == nil {
			return res, nil
		}
		if !ledger.IsTransient(err) {
			return nil, errors.Wrapf(err, "attach with depth %d", depth)
		}
		m.warningf("%v: attach failed with depth %d: %v", b, depth, err)
		if depth < m.params.MaxDepth {
			m.metrics.attachRetried()
		}
	}
	return nil, errors.Wrapf(err, "attach failed with depths %d..%d", m.params.Depth, m.params.MaxDepth)
}

func (b *Bundle) promoteOrReattach() {
	m := b.mgr
	m.powMutex.Lock()
	m.atAttach.inc()
	m.preAttach.dec()

	tail := b.Tail()
	consistent, err := m.client.CheckConsistency(tail)
	if err == nil {
		if consistent {
			if err = m.client.PromoteTransaction(tail, m.params.Depth, m.params.MWM); err == nil {
				m.promotions.Add(1)
				m.metrics.promoted()
				m.debugf("%v: promoted tail %v", b, tail)
			}
		} else {
			var res *ledger.SendResult
			if res, err = m.client.ReplayBundle(tail, m.params.Depth, m.params.MWM); err == nil {
				b.mu.Lock()
				b.result = res
				b.mu.Unlock()
				m.reattachments.Add(1)
				m.metrics.reattached()
				m.infof("%v: inconsistent tail %v, reattached with new tail %v", b, tail, res.Tail)
			}
		}
	}
	b.mu.Lock()
	b.rounds++
	if err == nil {
		b.lastAttach = m.clock.Now()
	}
	b.mu.Unlock()
	m.powMutex.Unlock()

	if err != nil {
		m.warningf("%v: promote or reattach failed, will retry: %v", b, err)
	}
	m.enqueue(b)
	m.atAttach.dec()
}

// check is called by the poller for every bundle awaiting confirmation
func (b *Bundle) check(now time.Time) checkResult {
	ref, _ := b.Reference()
	if b.mgr.monitor.IsConfirmed(ref) {
		b.confirm()
		return checkConfirmed
	}
	p := b.mgr.params
	b.mu.Lock()
	defer b.mu.Unlock()

	if p.MaxConfirmWait > 0 && now.Sub(b.firstAttach) >= p.MaxConfirmWait {
		return checkStalled
	}
	if now.Sub(b.lastAttach) < p.PromoteOrReattachAfter {
		return checkWaiting
	}
	if p.MaxPromoteRounds > 0 && b.rounds >= p.MaxPromoteRounds {
		return checkStalled
	}
	return checkDue
}

// confirm commits all reservations. Only the first call has effect
func (b *Bundle) confirm() {
	b.mu.Lock()
	if b.state == BundleConfirmed {
		b.mu.Unlock()
		return
	}
	b.state = BundleConfirmed
	b.mu.Unlock()

	m := b.mgr
	for _, r := range b.reservations() {
		if err := r.Commit(); err != nil {
			m.errorf("%v: commit of %v failed: %v", b, r, err)
			m.metrics.resolveFailed()
		}
	}
	m.infof("%v: confirmed", b)
	m.metrics.bundleDone(b.plan.kind(), "confirmed")
	b.plan.onConfirmed(b)
}

// abandon rolls back all reservations. Only for bundles never broadcast
func (b *Bundle) abandon(reason error) {
	b.setState(BundleAbandoned)
	m := b.mgr
	for _, r := range b.reservations() {
		if err := r.Rollback(); err != nil {
			m.errorf("%v: rollback of %v failed: %v", b, r, err)
			m.metrics.resolveFailed()
		}
	}
	m.errorf("%v: abandoned: %v", b, reason)
	m.metrics.bundleDone(b.plan.kind(), "abandoned")
	b.plan.onGivenUp(b)
}

// stall stops promotion. Reservations stay open, the bundle is still confirmed if the reference settles
func (b *Bundle) stall() {
	b.setState(BundleStalled)
	b.mgr.errorf("%v: not confirmed after %d promote/reattach rounds, giving up. Tail %v",
		b, b.rounds, b.Tail())
	b.mgr.metrics.bundleDone(b.plan.kind(), "stalled")
	b.plan.onGivenUp(b)
}
