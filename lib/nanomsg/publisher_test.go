package nanomsg

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nanomsg.org/go-mangos"
	"nanomsg.org/go-mangos/protocol/sub"
	"nanomsg.org/go-mangos/transport/inproc"
)

type testMsg struct {
	State string `json:"state"`
	Seq   int    `json:"seq"`
}

func TestPublishAsJSON(t *testing.T) {
	const url = "inproc://publisher-test"
	p, err := NewPublisher(url, 10, nil)
	require.NoError(t, err)
	defer p.Close()

	sock, err := sub.NewSocket()
	require.NoError(t, err)
	defer sock.Close()
	sock.AddTransport(inproc.NewTransport())
	require.NoError(t, sock.Dial(url))
	require.NoError(t, sock.SetOption(mangos.OptionSubscribe, []byte("")))
	require.NoError(t, sock.SetOption(mangos.OptionRecvDeadline, 100*time.Millisecond))

	var received testMsg
	require.Eventually(t, func() bool {
		require.NoError(t, p.PublishAsJSON(&testMsg{State: "available", Seq: 1}))
		data, err := sock.Recv()
		if err != nil {
			return false
		}
		return json.Unmarshal(data, &received) == nil
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "available", received.State)
	require.Equal(t, 1, received.Seq)
}

func TestNewPublisherBadURL(t *testing.T) {
	_, err := NewPublisher("bogus://nowhere", 1, nil)
	require.Error(t, err)
}
