// Package proxystore implements blockstore.Store over HTTP against a
// remote block server: writes are queued and sent by a background
// goroutine, while reads wait for the queue to drain first, so a caller
// that Puts then Gets always observes its own write.
//
// Grounded on libernet/proxy.py (Storage.__setitem__, .get, .like,
// .__contains__, __fetch_messages, run, shutdown), from
// _examples/original_source.
package proxystore

import (
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
	"k8s.io/klog/v2"

	"github.com/marcpage/libernet/blockstore"
	"github.com/marcpage/libernet/blockurl"
	"github.com/marcpage/libernet/digest"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type putRequest struct {
	url  string
	data []byte
}

// Proxy is a Store that forwards reads and writes to a remote block
// server over HTTP.
type Proxy struct {
	client  *fasthttp.Client
	baseURL string

	mu      sync.Mutex
	closed  bool
	stop    chan struct{}
	done    chan struct{}
	queue   chan putRequest
	pending sync.WaitGroup
}

// NewProxy returns a Store that sends requests to http://server:port.
func NewProxy(server string, port int) *Proxy {
	p := &Proxy{
		client:  &fasthttp.Client{},
		baseURL: fmt.Sprintf("http://%s:%d", server, port),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		queue:   make(chan putRequest, 256),
	}

	go p.run()
	return p
}

// Put queues data to be sent to the remote server; it returns before the
// request has actually been made. Get/Contains/Like block until every
// previously queued Put has been sent.
func (p *Proxy) Put(url string, data []byte) error {
	parsed, err := blockurl.Parse(url)
	if err != nil {
		return err
	}
	if parsed.Kind == blockurl.Like {
		return fmt.Errorf("proxystore: cannot Put a like url")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("proxystore: shut down")
	}
	p.pending.Add(1)
	p.mu.Unlock()

	p.queue <- putRequest{url: url, data: data}
	return nil
}

func (p *Proxy) run() {
	defer close(p.done)

	for {
		select {
		case req := <-p.queue:
			p.send(req)
			p.pending.Done()
		case <-p.stop:
			p.drainQueue()
			return
		}
	}
}

func (p *Proxy) drainQueue() {
	for {
		select {
		case req := <-p.queue:
			p.send(req)
			p.pending.Done()
		default:
			return
		}
	}
}

func (p *Proxy) send(req putRequest) {
	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(p.baseURL + req.url)
	httpReq.Header.SetMethod(fasthttp.MethodPut)
	httpReq.SetBody(req.data)

	klog.V(4).Infof("proxystore: sending %d bytes to %s", len(req.data), p.baseURL+req.url)

	if err := p.client.Do(httpReq, httpResp); err != nil {
		klog.Warningf("proxystore: sending to %s: %v", p.baseURL+req.url, err)
		return
	}

	if httpResp.StatusCode() != fasthttp.StatusOK {
		klog.Warningf("proxystore: %s -> %d: %s", p.baseURL+req.url, httpResp.StatusCode(), httpResp.Body())
	}
}

// Get implements blockstore.Store.
func (p *Proxy) Get(url string) ([]byte, bool, error) {
	if _, err := blockurl.Parse(url); err != nil {
		return nil, false, err
	}

	p.pending.Wait()

	status, body, err := p.client.Get(nil, p.baseURL+url)
	if err != nil {
		return nil, false, fmt.Errorf("proxystore: GET %s: %w", p.baseURL+url, err)
	}

	if status != fasthttp.StatusOK {
		return nil, false, nil
	}

	return append([]byte{}, body...), true, nil
}

// Contains implements blockstore.Store.
func (p *Proxy) Contains(url string) (bool, error) {
	if _, err := blockurl.Parse(url); err != nil {
		return false, err
	}

	p.pending.Wait()

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.SetRequestURI(p.baseURL + url)
	httpReq.Header.SetMethod(fasthttp.MethodHead)

	if err := p.client.Do(httpReq, httpResp); err != nil {
		return false, fmt.Errorf("proxystore: HEAD %s: %w", p.baseURL+url, err)
	}

	return httpResp.StatusCode() == fasthttp.StatusOK, nil
}

// Like implements blockstore.Store. initial is not sent to the server:
// its entries are added to the server's response locally, for any url the
// response does not already contain.
func (p *Proxy) Like(target digest.Identifier, initial map[string]int64) (map[string]int64, error) {
	p.pending.Wait()

	likeURL := blockurl.ForData(target, true)

	status, body, err := p.client.Get(nil, p.baseURL+likeURL)
	if err != nil {
		return nil, fmt.Errorf("proxystore: GET %s: %w", p.baseURL+likeURL, err)
	}

	if status != fasthttp.StatusOK {
		return map[string]int64{}, nil
	}

	results := map[string]int64{}
	if err := jsonAPI.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("proxystore: decoding like response from %s: %w", p.baseURL+likeURL, err)
	}

	for url, size := range initial {
		if _, present := results[url]; !present {
			results[url] = size
		}
	}

	return results, nil
}

// Shutdown implements blockstore.Store: no further Puts are accepted, and
// already-queued writes are flushed before the background goroutine exits.
func (p *Proxy) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stop)
}

// Join implements blockstore.Store: it blocks until the background
// goroutine started by NewProxy has exited.
func (p *Proxy) Join() {
	<-p.done
}

var _ blockstore.Store = (*Proxy)(nil)
