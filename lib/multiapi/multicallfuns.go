package multiapi

import (
	"fmt"

	. "github.com/iotaledger/iota.go/api"
	. "github.com/iotaledger/iota.go/trinary"
)

func (mapi MultiAPI) GetBalances(addresses Hashes, threshold uint64, retEndpoint ...*MultiCallRet) (*Balances, error) {
	r, err := mapi.multiCall("GetBalances", callRet(retEndpoint), func(api *API) (interface{}, error) {
		return api.GetBalances(addresses, threshold)
	})
	if err != nil {
		return nil, err
	}
	rr, ok := r.(*Balances)
	if !ok {
		return nil, fmt.Errorf("internal error: wrong type")
	}
	return rr, nil
}

func (mapi MultiAPI) WereAddressesSpentFrom(addresses Hashes, retEndpoint ...*MultiCallRet) ([]bool, error) {
	r, err := mapi.multiCall("WereAddressesSpentFrom", callRet(retEndpoint), func(api *API) (interface{}, error) {
		return api.WereAddressesSpentFrom(addresses...)
	})
	if err != nil {
		return nil, err
	}
	rr, ok := r.([]bool)
	if !ok {
		return nil, fmt.Errorf("internal error: wrong type")
	}
	return rr, nil
}

type consistencyResult struct {
	consistent bool
	info       string
}

// CheckConsistency returns info string in the MultiCallRet if provided
func (mapi MultiAPI) CheckConsistency(tail Hash, retEndpoint ...*MultiCallRet) (bool, error) {
	ret := callRet(retEndpoint)
	r, err := mapi.multiCall("CheckConsistency", ret, func(api *API) (interface{}, error) {
		consistent, info, err := api.CheckConsistency(tail)
		return consistencyResult{consistent: consistent, info: info}, err
	})
	if err != nil {
		return false, err
	}
	rr, ok := r.(consistencyResult)
	if !ok {
		return false, fmt.Errorf("internal error: wrong type")
	}
	if ret != nil {
		ret.Info = rr.info
	}
	return rr.consistent, nil
}

func callRet(retEndpoint []*MultiCallRet) *MultiCallRet {
	if len(retEndpoint) == 0 {
		return nil
	}
	return retEndpoint[0]
}
