package multiapi

import (
	"github.com/op/go-logging"
)

var (
	localLog         *logging.Logger
	disabledMultiAPI = false
)

func SetLog(log *logging.Logger) {
	localLog = log
}

// DisableMultiAPI makes every call to go to the first endpoint only
func DisableMultiAPI() {
	disabledMultiAPI = true
}

func MultiApiDisabled() bool {
	return disabledMultiAPI
}

func debugf(format string, args ...interface{}) {
	if localLog != nil {
		localLog.Debugf(format, args...)
	}
}
