package ledger

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/iotaledger/iota.go/address"
	. "github.com/iotaledger/iota.go/api"
	"github.com/iotaledger/iota.go/bundle"
	"github.com/iotaledger/iota.go/consts"
	"github.com/iotaledger/iota.go/pow"
	"github.com/iotaledger/iota.go/transaction"
	. "github.com/iotaledger/iota.go/trinary"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"github.com/topocare/iota-pay-on-production/lib/multiapi"
	"github.com/topocare/iota-pay-on-production/lib/utils"
	"go.uber.org/ratelimit"
)

const (
	// max number of addresses in one call to getBalances and wereAddressesSpentFrom
	maxAddressesPerCall = 500
	balanceThreshold    = 100
	// zero value transfers of promotion bundles go there
	DefaultPromoteAddress = "IOTA9PAY9ON9PRODUCTION9PROMOTE999999999999999999999999999999999999999999999999999"
)

type IotaClientParams struct {
	Nodes          []string
	NodePoW        string
	LocalPoW       bool
	TimeoutAPI     uint64 // seconds
	TimeoutPoW     uint64 // seconds
	MaxCallsPerSec int    // 0 means unlimited
	PromoteAddress Hash
	PromoteTag     Trytes
	// consecutive failures which open the circuit breaker. 0 means default
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Log             *logging.Logger
	AEC             utils.ErrorCounter
}

// IotaClient implements Client on top of IOTA node API. Read calls go to all Nodes in parallel,
// attachment (PoW) goes to NodePoW or is done locally
type IotaClient struct {
	params  IotaClientParams
	mapi    multiapi.MultiAPI
	powAPI  multiapi.MultiAPI
	breaker *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
}

func NewIotaClient(params IotaClientParams) (*IotaClient, error) {
	if params.TimeoutAPI == 0 {
		params.TimeoutAPI = 15
	}
	if params.TimeoutPoW == 0 {
		params.TimeoutPoW = 60
	}
	if params.NodePoW == "" && len(params.Nodes) > 0 {
		params.NodePoW = params.Nodes[0]
	}
	if params.PromoteAddress == "" {
		params.PromoteAddress = DefaultPromoteAddress
	}
	if params.BreakerFailures == 0 {
		params.BreakerFailures = 5
	}
	if params.BreakerTimeout == 0 {
		params.BreakerTimeout = 30 * time.Second
	}
	if params.AEC == nil {
		params.AEC = &utils.DummyAEC{}
	}
	mapi, err := multiapi.New(params.Nodes, params.TimeoutAPI)
	if err != nil {
		return nil, errors.Wrap(err, "can't create API for IOTA nodes")
	}
	settings := HTTPClientSettings{
		URI: params.NodePoW,
		Client: &http.Client{
			Timeout: time.Duration(params.TimeoutPoW) * time.Second,
		},
	}
	if params.LocalPoW {
		var powName string
		powName, settings.LocalProofOfWorkFunc = pow.GetFastestProofOfWorkImpl()
		if params.Log != nil {
			params.Log.Infof("IOTA client: local PoW with '%v'", powName)
		}
	}
	api, err := ComposeAPI(settings)
	if err != nil {
		return nil, errors.Wrap(err, "can't create API for PoW node")
	}
	powAPI, err := multiapi.NewFromAPI(api, params.NodePoW)
	if err != nil {
		return nil, err
	}
	ret := &IotaClient{
		params: params,
		mapi:   mapi,
		powAPI: powAPI,
	}
	if params.MaxCallsPerSec > 0 {
		ret.limiter = ratelimit.New(params.MaxCallsPerSec)
	} else {
		ret.limiter = ratelimit.NewUnlimited()
	}
	ret.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "iota-node",
		Timeout: params.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= params.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			ret.warningf("IOTA client: circuit breaker '%v' changed state %v -> %v", name, from, to)
		},
	})
	return ret, nil
}

func (c *IotaClient) debugf(format string, args ...interface{}) {
	if c.params.Log != nil {
		c.params.Log.Debugf(format, args...)
	}
}

func (c *IotaClient) warningf(format string, args ...interface{}) {
	if c.params.Log != nil {
		c.params.Log.Warningf(format, args...)
	}
}

// call passes fun through rate limiter and circuit breaker and classifies returned error
func (c *IotaClient) call(fun func() (interface{}, error)) (interface{}, error) {
	c.limiter.Take()
	ret, err := c.breaker.Execute(fun)
	return ret, classify(err)
}

func (c *IotaClient) DeriveAddresses(seed Trytes, security consts.SecurityLevel, start, count uint64) (Hashes, error) {
	if count == 0 {
		return Hashes{}, nil
	}
	return address.GenerateAddresses(seed, start, count, security, true)
}

func (c *IotaClient) GetBalances(addresses Hashes) ([]uint64, error) {
	ret := make([]uint64, 0, len(addresses))
	for _, chunk := range chunks(addresses) {
		var apiret multiapi.MultiCallRet
		r, err := c.call(func() (interface{}, error) {
			return c.mapi.GetBalances(chunk, balanceThreshold, &apiret)
		})
		if c.params.AEC.CheckError(apiret.Endpoint, err) {
			return nil, errors.Wrap(err, "getBalances")
		}
		balances := r.(*Balances).Balances
		if len(balances) != len(chunk) {
			return nil, fmt.Errorf("getBalances: expected %d balances, got %d", len(chunk), len(balances))
		}
		ret = append(ret, balances...)
	}
	return ret, nil
}

func (c *IotaClient) WereAddressesSpentFrom(addresses Hashes) ([]bool, error) {
	ret := make([]bool, 0, len(addresses))
	for _, chunk := range chunks(addresses) {
		var apiret multiapi.MultiCallRet
		r, err := c.call(func() (interface{}, error) {
			return c.mapi.WereAddressesSpentFrom(chunk, &apiret)
		})
		if c.params.AEC.CheckError(apiret.Endpoint, err) {
			return nil, errors.Wrap(err, "wereAddressesSpentFrom")
		}
		spent := r.([]bool)
		if len(spent) != len(chunk) {
			return nil, fmt.Errorf("wereAddressesSpentFrom: expected %d states, got %d", len(chunk), len(spent))
		}
		ret = append(ret, spent...)
	}
	return ret, nil
}

func (c *IotaClient) SendTransfer(req *TransferRequest) (*SendResult, error) {
	if req.InputBalance() != req.OutputBalance() {
		return nil, fmt.Errorf("sendTransfer: inputs %d i != outputs %d i", req.InputBalance(), req.OutputBalance())
	}
	api := c.powAPI.GetAPI()
	bundleTrytes, err := api.PrepareTransfers(req.Seed, req.Transfers, PrepareTransfersOptions{
		Inputs:   req.Inputs,
		Security: req.Security,
	})
	if c.params.AEC.CheckError(c.powAPI.GetAPIEndpoint(), err) {
		return nil, errors.Wrap(classify(err), "prepareTransfers")
	}
	st := time.Now()
	r, err := c.call(func() (interface{}, error) {
		return api.SendTrytes(bundleTrytes, req.Depth, req.MWM)
	})
	if c.params.AEC.CheckError(c.powAPI.GetAPIEndpoint(), err) {
		return nil, errors.Wrapf(err, "sendTrytes with depth %d", req.Depth)
	}
	ret, err := newSendResult(r.(bundle.Bundle))
	if err != nil {
		return nil, err
	}
	c.debugf("IOTA client: attached bundle %v with depth %d in %v", ret.BundleHash, req.Depth, time.Since(st))
	return ret, nil
}

func (c *IotaClient) CheckConsistency(tail Hash) (bool, error) {
	var apiret multiapi.MultiCallRet
	r, err := c.call(func() (interface{}, error) {
		return c.mapi.CheckConsistency(tail, &apiret)
	})
	if c.params.AEC.CheckError(apiret.Endpoint, err) {
		// tail not yet known to the node is not a reason to reattach
		if contains(err, "not solid") {
			return true, nil
		}
		return false, errors.Wrap(err, "checkConsistency")
	}
	consistent := r.(bool)
	if !consistent {
		c.debugf("IOTA client: tail %v is inconsistent: %v", tail, apiret.Info)
	}
	return consistent, nil
}

func (c *IotaClient) PromoteTransaction(tail Hash, depth, mwm uint64) error {
	api := c.powAPI.GetAPI()
	spam := bundle.Transfers{{
		Address: c.params.PromoteAddress,
		Value:   0,
		Tag:     c.params.PromoteTag,
	}}
	_, err := c.call(func() (interface{}, error) {
		return api.PromoteTransaction(tail, depth, mwm, spam, PromoteTransactionOptions{})
	})
	if c.params.AEC.CheckError(c.powAPI.GetAPIEndpoint(), err) {
		return errors.Wrap(err, "promoteTransaction")
	}
	return nil
}

func (c *IotaClient) ReplayBundle(tail Hash, depth, mwm uint64) (*SendResult, error) {
	api := c.powAPI.GetAPI()
	r, err := c.call(func() (interface{}, error) {
		return api.ReplayBundle(tail, depth, mwm)
	})
	if c.params.AEC.CheckError(c.powAPI.GetAPIEndpoint(), err) {
		return nil, errors.Wrap(err, "replayBundle")
	}
	return newSendResult(r.(bundle.Bundle))
}

func newSendResult(bndl bundle.Bundle) (*SendResult, error) {
	for i := range bndl {
		if transaction.IsTailTransaction(&bndl[i]) {
			return &SendResult{
				BundleHash: bndl[i].Bundle,
				Tail:       bndl[i].Hash,
				Bundle:     bndl,
			}, nil
		}
	}
	return nil, errors.New("can't find tail transaction in the attached bundle")
}

func chunks(addresses Hashes) []Hashes {
	ret := make([]Hashes, 0, len(addresses)/maxAddressesPerCall+1)
	for i := 0; i < len(addresses); i += maxAddressesPerCall {
		upper := i + maxAddressesPerCall
		if upper > len(addresses) {
			upper = len(addresses)
		}
		chunk := make(Hashes, upper-i)
		for j := range chunk {
			chunk[j] = StripChecksum(addresses[i+j])
		}
		ret = append(ret, chunk)
	}
	return ret
}

func contains(err error, s string) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), s)
}
