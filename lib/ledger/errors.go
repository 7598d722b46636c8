package ledger

import (
	"net"
	"strings"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

// transientError marks errors worth retrying, for example with a different depth
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient marks err as transient. Returns nil for nil
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err, or any error it wraps, was marked transient
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

var transientMarkers = []string{
	"reference transaction is too old",
	"invalid depth",
	"transactions to approve",
	"tip selection",
	"timeout",
	"connection refused",
	"connection reset",
	"429",
	"503",
}

// classify marks node errors which are known to be transient
func classify(err error) error {
	if err == nil || IsTransient(err) {
		return err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Transient(err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Transient(err)
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return Transient(err)
		}
	}
	return err
}
