// Package blockserver exposes a blockstore.Store over HTTP: GET reads a
// block, PUT writes one, and the /sha256/like/{target} shape runs a
// prefix-match query.
//
// Grounded on libernet/server.py for the route shapes (the Python source
// itself predates the GET/PUT/LIKE contract's details, so only the route
// names carry over) and http-handler.go/metrics.go for structure: a timed,
// klog-logged fasthttp handler with prometheus counters.
package blockserver

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"k8s.io/klog/v2"

	"github.com/marcpage/libernet/blockstore"
	"github.com/marcpage/libernet/blockurl"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	requestsByMethod = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libernet_block_requests_by_method",
			Help: "Block server requests by HTTP method",
		},
		[]string{"method"},
	)

	requestsByStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "libernet_block_requests_by_status",
			Help: "Block server requests by response status code",
		},
		[]string{"method", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "libernet_block_request_duration_seconds",
			Help:    "Block server request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(requestsByMethod)
	prometheus.MustRegister(requestsByStatus)
	prometheus.MustRegister(requestDuration)
}

// Server answers GET/PUT/LIKE block requests against a blockstore.Store.
type Server struct {
	store blockstore.Store
}

// New returns a Server backed by store.
func New(store blockstore.Store) *Server {
	return &Server{store: store}
}

// Handler returns the fasthttp request handler implementing the block
// protocol. Mount it directly as a fasthttp.Server's Handler, or route
// /metrics to MetricsHandler and every other path to this handler, as
// ListenAndServeContext does.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		started := time.Now()
		method := string(ctx.Method())

		defer func() {
			requestDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
			klog.V(4).Infof("blockserver: %s %s -> %d in %s", method, ctx.Path(), ctx.Response.StatusCode(), time.Since(started))
		}()

		requestsByMethod.WithLabelValues(method).Inc()

		switch {
		case ctx.IsGet():
			s.handleGet(ctx)
		case ctx.IsPut():
			s.handlePut(ctx)
		case ctx.IsHead():
			s.handleHead(ctx)
		default:
			s.reply(ctx, fasthttp.StatusMethodNotAllowed, nil)
		}

		requestsByStatus.WithLabelValues(method, fmt.Sprintf("%d", ctx.Response.StatusCode())).Inc()
	}
}

// MetricsHandler wraps promhttp's exporter for mounting under /metrics on
// the same fasthttp.Server.
func (s *Server) MetricsHandler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}

func (s *Server) handleGet(ctx *fasthttp.RequestCtx) {
	url := string(ctx.Path())

	parsed, err := blockurl.Parse(url)
	if err != nil {
		s.reply(ctx, fasthttp.StatusBadRequest, nil)
		return
	}

	if parsed.Kind == blockurl.Like {
		s.handleLike(ctx, url)
		return
	}

	data, found, err := s.store.Get(url)
	if err != nil {
		klog.Errorf("blockserver: GET %s: %v", url, err)
		s.reply(ctx, fasthttp.StatusInternalServerError, nil)
		return
	}

	if !found {
		s.reply(ctx, fasthttp.StatusGatewayTimeout, nil)
		return
	}

	s.reply(ctx, fasthttp.StatusOK, data)
}

func (s *Server) handleHead(ctx *fasthttp.RequestCtx) {
	url := string(ctx.Path())

	ok, err := s.store.Contains(url)
	if err != nil {
		klog.Errorf("blockserver: HEAD %s: %v", url, err)
		s.reply(ctx, fasthttp.StatusInternalServerError, nil)
		return
	}

	if !ok {
		s.reply(ctx, fasthttp.StatusNotFound, nil)
		return
	}

	s.reply(ctx, fasthttp.StatusOK, nil)
}

func (s *Server) handlePut(ctx *fasthttp.RequestCtx) {
	url := string(ctx.Path())

	if _, err := blockurl.Parse(url); err != nil {
		s.reply(ctx, fasthttp.StatusBadRequest, nil)
		return
	}

	body := append([]byte{}, ctx.PostBody()...)

	if len(body) > maxRequestBodySize {
		s.reply(ctx, fasthttp.StatusRequestEntityTooLarge, nil)
		return
	}

	if err := s.store.Put(url, body); err != nil {
		klog.Errorf("blockserver: PUT %s: %v", url, err)
		s.reply(ctx, fasthttp.StatusInternalServerError, nil)
		return
	}

	s.reply(ctx, fasthttp.StatusOK, nil)
}

func (s *Server) handleLike(ctx *fasthttp.RequestCtx, url string) {
	addr, err := blockurl.Parse(url)
	if err != nil {
		s.reply(ctx, fasthttp.StatusBadRequest, nil)
		return
	}

	results, err := s.store.Like(addr.Addr, nil)
	if err != nil {
		klog.Errorf("blockserver: LIKE %s: %v", url, err)
		s.reply(ctx, fasthttp.StatusInternalServerError, nil)
		return
	}

	if len(results) == 0 {
		s.reply(ctx, fasthttp.StatusNotFound, nil)
		return
	}

	encoded, err := jsonAPI.Marshal(results)
	if err != nil {
		klog.Errorf("blockserver: encoding like response for %s: %v", url, err)
		s.reply(ctx, fasthttp.StatusInternalServerError, nil)
		return
	}

	ctx.SetContentType("application/json")
	s.reply(ctx, fasthttp.StatusOK, encoded)
}

func (s *Server) reply(ctx *fasthttp.RequestCtx, status int, body []byte) {
	ctx.SetStatusCode(status)
	if body != nil {
		ctx.SetBody(body)
	}
}

// maxRequestBodySize matches codec.MaxBlockSize: the server never accepts
// a body larger than a block can legally be.
const maxRequestBodySize = 1024 * 1024

// ListenAndServe starts a fasthttp.Server on addr serving the block
// protocol at / and prometheus metrics at /metrics.
func ListenAndServe(addr string, store blockstore.Store) error {
	return ListenAndServeContext(context.Background(), addr, store)
}

// ListenAndServeContext is ListenAndServe, but shuts the server down
// gracefully (via fasthttp.Server.Shutdown) as soon as ctx is canceled.
func ListenAndServeContext(ctx context.Context, addr string, store blockstore.Store) error {
	server := New(store)
	blockHandler := server.Handler()
	metricsHandler := server.MetricsHandler()

	router := func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/metrics" {
			metricsHandler(ctx)
			return
		}

		blockHandler(ctx)
	}

	httpServer := &fasthttp.Server{Handler: router}

	go func() {
		<-ctx.Done()
		klog.Infof("blockserver: shutting down %s", addr)
		httpServer.Shutdown()
	}()

	klog.Infof("blockserver: listening on %s", addr)
	err := httpServer.ListenAndServe(addr)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
