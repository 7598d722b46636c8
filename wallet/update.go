package wallet

import (
	"github.com/topocare/iota-pay-on-production/lib/utils"
	"github.com/topocare/iota-pay-on-production/wallet/pool"
)

type Stats struct {
	Receiving     pool.Stats   `json:"receiving"`
	Usable        pool.Stats   `json:"usable"`
	Production    pool.Stats   `json:"production"`
	Payment       pool.Stats   `json:"payment"`
	Refund        pool.Stats   `json:"refund"`
	Manager       ManagerStats `json:"manager"`
	FactoryCursor uint64       `json:"factoryCursor"`
}

// StateUpdate is delivered to subscribers every time the wallet state changes
type StateUpdate struct {
	Seq   uint64 `json:"seq"`
	Ts    uint64 `json:"ts"` // unix milliseconds
	State State  `json:"state"`
	Stats Stats  `json:"stats"`
}

func (w *Wallet) Stats() Stats {
	return Stats{
		Receiving:     w.Receiving.Stats(),
		Usable:        w.Usable.Stats(),
		Production:    w.Production.Stats(),
		Payment:       w.Payment.Stats(),
		Refund:        w.RefundTarget.Stats(),
		Manager:       w.mgr.Stats(),
		FactoryCursor: w.factory.Cursor(),
	}
}

// Subscribe registers a callback called synchronously on every state change.
// Callbacks must not block and must not call back into the wallet's spending operations
func (w *Wallet) Subscribe(fun func(*StateUpdate)) {
	w.subsMutex.Lock()
	defer w.subsMutex.Unlock()
	w.subs = append(w.subs, fun)
}

func (w *Wallet) State() State {
	w.stateMutex.Lock()
	defer w.stateMutex.Unlock()
	return w.state
}

// onStageEvent is called synchronously by the manager on every counter change
func (w *Wallet) onStageEvent(ev StageEvent) {
	requested, _ := w.mgr.refund.status()
	if requested || ev.Stage == StageRefund || ev.Old == 0 || ev.New == 0 {
		w.recomputeState()
	}
}

func (w *Wallet) deriveState() State {
	inFlight := w.mgr.InFlight() > 0
	requested, granted := w.mgr.refundState()
	switch {
	case granted:
		return Refunding
	case requested:
		return PreparingRefunding
	}
	production := w.Production.Stats()
	if production.Current.Count == 0 {
		switch {
		case production.Incoming.Count > 0:
			return AllFundingInConfirmation
		case inFlight:
			return NoFundingAndTransactionOngoing
		}
		return NoFunding
	}
	if inFlight {
		return AvailableAndTransactionOngoing
	}
	return Available
}

// recomputeState derives the state and notifies subscribers if it changed
func (w *Wallet) recomputeState() {
	w.stateMutex.Lock()
	prev := w.state
	w.state = w.deriveState()
	changed := w.state != prev || w.updSeq == 0
	var upd *StateUpdate
	if changed {
		w.updSeq++
		upd = &StateUpdate{
			Seq:   w.updSeq,
			Ts:    utils.UnixMs(w.clock.Now()),
			State: w.state,
		}
	}
	w.stateMutex.Unlock()

	if !changed {
		return
	}
	w.metrics.setState(upd.State)
	upd.Stats = w.Stats()
	w.infof("wallet: state %v -> %v", prev, upd.State)

	w.subsMutex.RLock()
	defer w.subsMutex.RUnlock()
	for _, fun := range w.subs {
		fun(upd)
	}
}
