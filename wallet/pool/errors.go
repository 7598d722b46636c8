package pool

import (
	"github.com/pkg/errors"
)

var (
	ErrEmptyPool           = errors.New("pool is empty")
	ErrInsufficientBalance = errors.New("insufficient balance in pool")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrUnknownReservation  = errors.New("unknown or already resolved reservation")
)
