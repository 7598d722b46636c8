package wallet

import (
	"fmt"
)

// State tells whether the machine can be used
type State int

const (
	NoFunding State = iota
	NoFundingAndTransactionOngoing
	AllFundingInConfirmation
	PreparingRefunding
	Refunding
	Available
	AvailableAndTransactionOngoing
)

var stateNames = [...]string{
	"noFunding",
	"noFundingAndTransactionOngoing",
	"allFundingInConfirmation",
	"preparingRefunding",
	"refunding",
	"available",
	"availableAndTransactionOngoing",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CanSpend is true if at least one production unit is held
func (s State) CanSpend() bool {
	return s == Available || s == AvailableAndTransactionOngoing
}
