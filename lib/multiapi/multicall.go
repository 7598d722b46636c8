package multiapi

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	. "github.com/iotaledger/iota.go/api"
)

type callFun func(api *API) (interface{}, error)

type multiCallInterimResult struct {
	ret      interface{}
	err      error
	endpoint string
}

func (mapi MultiAPI) callFirst(funName string, retEndpoint *MultiCallRet, fun callFun) (interface{}, error) {
	rnd := rand.Int() % 10000
	debugf("+++++++++++ multiCall %d: '%v' - calling first endpoint", rnd, funName)
	st := time.Now()

	ret, err := fun(mapi[0].api)

	if retEndpoint != nil {
		retEndpoint.Endpoint = mapi[0].endpoint
		retEndpoint.Duration = time.Since(st)
	}
	debugf("+++++++++++ multiCall %d: '%v' finished '%v', %v err = '%v'",
		rnd, funName, mapi[0].endpoint, time.Since(st), err)
	return ret, err
}

// multiCall runs fun against all endpoints in parallel. The first result without error is returned.
// If all calls fail, the last error is returned
func (mapi MultiAPI) multiCall(funName string, retEndpoint *MultiCallRet, fun callFun) (interface{}, error) {
	if len(mapi) == 0 {
		return nil, errors.New("empty MultiAPI")
	}
	if len(mapi) == 1 || MultiApiDisabled() {
		return mapi.callFirst(funName, retEndpoint, fun)
	}

	rnd := rand.Int() % 10000
	debugf("+++++++++++ multiCall %d: '%v'", rnd, funName)

	started := time.Now()
	chInterimResult := make(chan *multiCallInterimResult)
	var wg sync.WaitGroup
	for i := range mapi {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			res, err := fun(mapi[idx].api)
			chInterimResult <- &multiCallInterimResult{
				ret:      res,
				err:      err,
				endpoint: mapi[idx].endpoint}
		}(i)
	}
	// each api has timeout, all go routines will finish anyway
	go func() {
		wg.Wait()
		close(chInterimResult)
	}()

	chResult := make(chan *multiCallInterimResult, 1)
	go func() {
		var last *multiCallInterimResult
		var noerr bool
		// reading all results to make all go routines to finish
		for res := range chInterimResult {
			last = res
			if !noerr && res.err == nil {
				noerr = true
				chResult <- res
			}
		}
		if !noerr {
			chResult <- last
		}
	}()
	result := <-chResult
	if retEndpoint != nil {
		retEndpoint.Endpoint = result.endpoint
		retEndpoint.Duration = time.Since(started)
	}
	debugf("+++++++++++ multiCall %d: %v finished '%v', %v err = '%v'",
		rnd, funName, result.endpoint, time.Since(started), result.err)
	return result.ret, result.err
}
