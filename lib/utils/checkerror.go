package utils

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ErrorCounter accounts ledger errors per endpoint. CheckError returns true if err != nil
type ErrorCounter interface {
	CheckError(endpoint string, err error) bool
}

type DummyAEC struct{}

func (*DummyAEC) CheckError(endpoint string, err error) bool {
	return err != nil
}

// APIErrorCounter counts errors returned by the IOTA node API, labeled by endpoint
type APIErrorCounter struct {
	counter *prometheus.CounterVec
}

func NewAPIErrorCounter(reg prometheus.Registerer) *APIErrorCounter {
	ret := &APIErrorCounter{
		counter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iotawallet_api_error_counter",
			Help: "Increases every time IOTA API returns an error",
		}, []string{"endpoint"}),
	}
	if reg != nil {
		reg.MustRegister(ret.counter)
	}
	return ret
}

func (aec *APIErrorCounter) CheckError(endpoint string, err error) bool {
	if err == nil {
		return false
	}
	if endpoint == "" {
		endpoint = "general"
	}
	aec.counter.With(prometheus.Labels{"endpoint": endpoint}).Inc()
	return true
}
