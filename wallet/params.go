package wallet

import (
	"fmt"
	"time"

	"github.com/iotaledger/iota.go/consts"
	"github.com/iotaledger/iota.go/guards/validators"
	. "github.com/iotaledger/iota.go/trinary"
)

const (
	DefaultDepth                  = 3
	DefaultMaxDepth               = 6
	DefaultMWM                    = 14
	DefaultWorkers                = 10
	DefaultPromoteOrReattachAfter = 5 * time.Minute
	DefaultMaxPromoteRounds       = 30
	DefaultMaxConfirmWait         = 24 * time.Hour
	DefaultMaintenanceInterval    = 20 * time.Second
	DefaultTag                    = "IOTA9PAY9ON9PRODUCTION"
)

type Params struct {
	Seed     Trytes
	Security consts.SecurityLevel
	// attach starts with Depth and is retried with increasing depth up to MaxDepth
	Depth    uint64
	MaxDepth uint64
	MWM      uint64
	// iotas per production unit
	UnitSize uint64
	// production pool is refilled when it is expected to hold less than LowerBorder units, up to UpperBorder
	LowerBorder int
	UpperBorder int
	// unconfirmed bundles are promoted or reattached when last attach is that old
	PromoteOrReattachAfter time.Duration
	// after that many promote/reattach rounds or that long since the first attach the bundle is stalled.
	// Zero means no limit
	MaxPromoteRounds    int
	MaxConfirmWait      time.Duration
	Workers             int
	Tag                 Trytes
	MaintenanceInterval time.Duration
}

// WithDefaults returns a copy of params with zero values replaced by defaults
func (p Params) WithDefaults() Params {
	if p.Security == 0 {
		p.Security = consts.SecurityLevelMedium
	}
	if p.Depth == 0 {
		p.Depth = DefaultDepth
	}
	if p.MaxDepth == 0 {
		p.MaxDepth = DefaultMaxDepth
	}
	if p.MaxDepth < p.Depth {
		p.MaxDepth = p.Depth
	}
	if p.MWM == 0 {
		p.MWM = DefaultMWM
	}
	if p.Workers == 0 {
		p.Workers = DefaultWorkers
	}
	if p.PromoteOrReattachAfter == 0 {
		p.PromoteOrReattachAfter = DefaultPromoteOrReattachAfter
	}
	if p.Tag == "" {
		p.Tag = DefaultTag
	}
	// short tags are padded to the full tag size, longer ones fail Validate
	p.Tag = Pad(p.Tag, consts.TagTrinarySize/3)
	if p.MaintenanceInterval == 0 {
		p.MaintenanceInterval = DefaultMaintenanceInterval
	}
	return p
}

func (p *Params) Validate() error {
	if err := validators.Validate(validators.ValidateSeed(p.Seed), validators.ValidateTags(p.Tag)); err != nil {
		return fmt.Errorf("wrong seed or tag: %v", err)
	}
	if p.Security < consts.SecurityLevelLow || p.Security > consts.SecurityLevelHigh {
		return fmt.Errorf("wrong security level %d", p.Security)
	}
	if p.UnitSize == 0 {
		return fmt.Errorf("production unit size must be positive")
	}
	if p.LowerBorder < 0 || p.UpperBorder < p.LowerBorder {
		return fmt.Errorf("wrong production pool borders %d..%d", p.LowerBorder, p.UpperBorder)
	}
	if p.Workers <= 0 {
		return fmt.Errorf("number of workers must be positive")
	}
	return nil
}
