package pool

import (
	"github.com/op/go-logging"
)

func debugf(log *logging.Logger, format string, args ...interface{}) {
	if log != nil {
		log.Debugf(format, args...)
	}
}

func errorf(log *logging.Logger, format string, args ...interface{}) {
	if log != nil {
		log.Errorf(format, args...)
	}
}

func warningf(log *logging.Logger, format string, args ...interface{}) {
	if log != nil {
		log.Warningf(format, args...)
	}
}
