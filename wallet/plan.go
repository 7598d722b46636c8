package wallet

import (
	"context"
)

// Kind of a bundle
type Kind int

const (
	KindPay Kind = iota
	KindSpreadUnits
	KindRefunding
)

func (k Kind) String() string {
	switch k {
	case KindPay:
		return "pay"
	case KindSpreadUnits:
		return "spreadUnits"
	case KindRefunding:
		return "refunding"
	}
	return "unknown"
}

// plan says which reservations a bundle is made of and reacts on its outcome.
// Reservations added by collect are rolled back by the bundle if collect fails
type plan interface {
	kind() Kind
	collect(b *Bundle) error
	onConfirmed(b *Bundle)
	// the bundle was abandoned before or at attach, or stalled after it
	onGivenUp(b *Bundle)
}

// gated plans wait for permission before taking a worker
type gated interface {
	await(ctx context.Context) error
}
