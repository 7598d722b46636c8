package main

import (
	"github.com/topocare/iota-pay-on-production/lib/nanomsg"
	"github.com/topocare/iota-pay-on-production/wallet"
)

// startUpdatePublisher publishes every wallet state update as JSON to the nanomsg PUB socket.
// The publisher must be closed only after the wallet is stopped
func startUpdatePublisher(w *wallet.Wallet, port int) (*nanomsg.Publisher, error) {
	pub, err := nanomsg.NewPublisherOnPort(port, 10, log)
	if err != nil {
		return nil, err
	}
	w.Subscribe(func(upd *wallet.StateUpdate) {
		if err := pub.PublishAsJSON(upd); err != nil {
			log.Errorf("Failed to publish state update #%d: %v", upd.Seq, err)
		}
	})
	log.Infof("Publishing wallet state updates on port %d", port)
	return pub, nil
}
