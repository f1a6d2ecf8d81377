// Package msgcenter implements a broadcast message bus used to report
// backup/restore progress to any number of listeners: every message sent
// to a Center is delivered to every channel currently subscribed to it.
//
// Grounded on libernet/message.py (Center, Logger), from
// _examples/original_source.
package msgcenter

import (
	"sync"

	"k8s.io/klog/v2"
)

// channelBuffer bounds how far a slow subscriber can lag before Send
// blocks; the source's queue.Queue() is unbounded, but an unbounded Go
// channel isn't an option, so a generous buffer stands in for it.
const channelBuffer = 256

// Center broadcasts messages to every channel created via NewChannel.
type Center struct {
	input chan interface{}
	stop  chan struct{}
	done  chan struct{}

	mu       sync.Mutex
	channels []chan interface{}
	closed   bool
}

// New starts a Center's broadcast loop.
func New() *Center {
	c := &Center{
		input: make(chan interface{}, channelBuffer),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	go c.run()
	return c
}

func (c *Center) run() {
	defer close(c.done)

	for {
		select {
		case message := <-c.input:
			c.broadcast(message)
		case <-c.stop:
			c.drain()
			c.broadcast(nil)
			return
		}
	}
}

func (c *Center) drain() {
	for {
		select {
		case message := <-c.input:
			c.broadcast(message)
		default:
			return
		}
	}
}

func (c *Center) broadcast(message interface{}) {
	c.mu.Lock()
	channels := append([]chan interface{}{}, c.channels...)
	c.mu.Unlock()

	for _, ch := range channels {
		ch <- message
	}
}

// Send broadcasts message to every currently subscribed channel. Send
// panics if called after Shutdown, matching the source's assertion that a
// shut-down center can no longer accept messages.
func (c *Center) Send(message interface{}) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		panic("msgcenter: Send called after Shutdown")
	}

	c.input <- message
}

// NewChannel returns a channel that receives a copy of every message sent
// to the Center from now on, until CloseChannel is called or the Center is
// shut down (in which case it receives a final nil message).
func (c *Center) NewChannel() chan interface{} {
	ch := make(chan interface{}, channelBuffer)

	c.mu.Lock()
	c.channels = append(c.channels, ch)
	c.mu.Unlock()

	return ch
}

// CloseChannel unsubscribes a channel previously returned by NewChannel.
func (c *Center) CloseChannel(ch chan interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.channels {
		if existing == ch {
			c.channels = append(c.channels[:i], c.channels[i+1:]...)
			return
		}
	}
}

// Shutdown stops the Center after flushing any messages already sent;
// every subscribed channel receives a final nil message. Shutdown is
// idempotent.
func (c *Center) Shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
}

// Join blocks until the Center's broadcast loop has exited.
func (c *Center) Join() {
	<-c.done
}

// Logger subscribes to a Center and logs every message it broadcasts,
// until the Center shuts down.
type Logger struct {
	done chan struct{}
}

// NewLogger starts logging every message sent to center.
func NewLogger(center *Center) *Logger {
	l := &Logger{done: make(chan struct{})}
	ch := center.NewChannel()

	go func() {
		defer close(l.done)
		for message := range ch {
			if message == nil {
				center.CloseChannel(ch)
				return
			}
			klog.Infof("msgcenter: %v", message)
		}
	}()

	return l
}

// Join blocks until the Logger's subscribed Center has shut down.
func (l *Logger) Join() {
	<-l.done
}
