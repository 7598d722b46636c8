package wallet

// payPlan spends production units to the payment target
type payPlan struct {
	w       *Wallet
	units   int
	message string
}

func (p *payPlan) kind() Kind {
	return KindPay
}

func (p *payPlan) collect(b *Bundle) error {
	in, err := p.w.Production.TakeElements(p.units)
	if err != nil {
		return err
	}
	b.addInput(in)
	out, err := p.w.Payment.Give(in.Balance)
	if err != nil {
		return err
	}
	b.addOutput(out, p.message)
	return nil
}

func (p *payPlan) onConfirmed(b *Bundle) {}

func (p *payPlan) onGivenUp(b *Bundle) {}
