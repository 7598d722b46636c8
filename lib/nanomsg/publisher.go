package nanomsg

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/op/go-logging"
	"nanomsg.org/go-mangos"
	"nanomsg.org/go-mangos/protocol/pub"
	"nanomsg.org/go-mangos/transport/inproc"
	"nanomsg.org/go-mangos/transport/tcp"
)

const publishTimeout = 5 * time.Second

// Publisher reads input stream of byte arrays and sends them to the PUB socket
type Publisher struct {
	chIn      chan []byte
	sock      mangos.Socket
	url       string
	log       *logging.Logger
	closeOnce sync.Once
	done      chan struct{}
}

func (p *Publisher) errorf(format string, args ...interface{}) {
	if p.log != nil {
		p.log.Errorf(format, args...)
	}
}

func (p *Publisher) infof(format string, args ...interface{}) {
	if p.log != nil {
		p.log.Infof(format, args...)
	}
}

// NewPublisherOnPort listens on all interfaces on the tcp port
func NewPublisherOnPort(port int, bufflen int, localLog *logging.Logger) (*Publisher, error) {
	return NewPublisher(fmt.Sprintf("tcp://:%v", port), bufflen, localLog)
}

// NewPublisher listens on url. Supported transports are tcp:// and inproc://
func NewPublisher(url string, bufflen int, localLog *logging.Logger) (*Publisher, error) {
	ret := &Publisher{
		url:  url,
		log:  localLog,
		chIn: make(chan []byte, bufflen),
		done: make(chan struct{}),
	}
	var err error
	if ret.sock, err = pub.NewSocket(); err != nil {
		return nil, fmt.Errorf("can't get new pub socket: %v", err)
	}
	ret.sock.AddTransport(tcp.NewTransport())
	ret.sock.AddTransport(inproc.NewTransport())
	if err = ret.sock.Listen(ret.url); err != nil {
		ret.sock.Close()
		return nil, fmt.Errorf("can't listen new pub socket: %v", err)
	}
	ret.infof("Publisher: PUB socket listening on %v", ret.url)
	go func() {
		ret.loop()
		ret.sock.Close()
		close(ret.done)
	}()
	return ret, nil
}

func (p *Publisher) URL() string {
	return p.url
}

func (p *Publisher) loop() {
	for data := range p.chIn {
		if err := p.sock.Send(data); err != nil {
			p.errorf("Nanomsg publisher of %v: %v", p.url, err)
		}
	}
}

func (p *Publisher) PublishData(data []byte) error {
	select {
	case p.chIn <- data:
	case <-time.After(publishTimeout):
		return fmt.Errorf("timeout %v on sending to publish channel at %v", publishTimeout, p.url)
	}
	return nil
}

func (p *Publisher) PublishAsJSON(obj interface{}) error {
	data, err := json.Marshal(obj)
	if err != nil {
		p.errorf("Publisher: marshal error %v", err)
		return err
	}
	return p.PublishData(data)
}

// Close stops the publishing loop and closes the socket. Must not be called concurrently with Publish
func (p *Publisher) Close() {
	p.closeOnce.Do(func() {
		close(p.chIn)
		<-p.done
	})
}
