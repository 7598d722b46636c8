package wallet

import (
	"context"

	"github.com/pkg/errors"
	"github.com/topocare/iota-pay-on-production/wallet/pool"
)

// refundPlan drains every pool to the refund target. It waits for the refund grant before taking a worker
type refundPlan struct {
	w *Wallet
}

func (p *refundPlan) kind() Kind {
	return KindRefunding
}

func (p *refundPlan) await(ctx context.Context) error {
	return p.w.mgr.refund.wait(ctx)
}

func (p *refundPlan) collect(b *Bundle) error {
	var total uint64
	for _, src := range []pool.Source{p.w.Receiving, p.w.Usable, p.w.Production} {
		r, err := src.TakeAll()
		if errors.Is(err, pool.ErrEmptyPool) {
			continue
		}
		if err != nil {
			return err
		}
		b.addInput(r)
		total += r.Balance
	}
	if total == 0 {
		return ErrNothingToSend
	}
	out, err := p.w.RefundTarget.Give(total)
	if err != nil {
		return err
	}
	b.addOutput(out, "")
	return nil
}

func (p *refundPlan) onConfirmed(b *Bundle) {
	p.w.mgr.releaseRefund()
}

func (p *refundPlan) onGivenUp(b *Bundle) {
	p.w.mgr.releaseRefund()
}
