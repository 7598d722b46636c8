package wallet

import (
	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/wallet/pool"
)

// spreadPlan converts funds of the usable and receiving pools into production units
type spreadPlan struct {
	w     *Wallet
	units int
}

func (p *spreadPlan) kind() Kind {
	return KindSpreadUnits
}

func (p *spreadPlan) collect(b *Bundle) error {
	defer p.w.spreadCollecting.Store(false)

	target := uint64(p.units) * p.w.params.UnitSize
	var taken uint64

	fromUsable, err := p.w.Usable.TakeUpToBalance(target)
	switch {
	case err == nil:
		b.addInput(fromUsable)
		taken += fromUsable.Balance
	case !errors.Is(err, pool.ErrEmptyPool):
		return err
	}
	if taken < target {
		// usable reservation is rolled back with the bundle if this fails
		fromReceiving, err := p.w.Receiving.TakeBalance(target - taken)
		if err != nil {
			return err
		}
		b.addInput(fromReceiving)
		taken += fromReceiving.Balance
	}
	units, err := p.w.Production.Give(p.units, p.w.params.UnitSize)
	if err != nil {
		return err
	}
	b.addOutput(units, "")
	if excess := taken - target; excess > 0 {
		change, err := p.w.Usable.GiveBalance(excess)
		if err != nil {
			return err
		}
		b.addOutput(change, "")
	}
	return nil
}

func (p *spreadPlan) onConfirmed(b *Bundle) {}

func (p *spreadPlan) onGivenUp(b *Bundle) {
	p.w.spreadCollecting.Store(false)
}
