// Package rpc serves the enabled JSON-RPC namespaces over HTTP.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/trace-processor/pkg/common"
)

// maxRequestBody bounds the body buffered for method labelling.
const maxRequestBody = 5 * 1024 * 1024

type Server struct {
	log     logrus.FieldLogger
	config  *Config
	addr    string
	apis    []string
	rpc     *gethrpc.Server
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
	done     chan struct{}
}

// New builds a server for the enabled namespaces. It returns nil when the
// server is disabled.
func New(log logrus.FieldLogger, conf *Config, deps Dependencies) (*Server, error) {
	if !conf.Enabled {
		return nil, nil
	}

	addr, err := conf.ListenAddr()
	if err != nil {
		return nil, err
	}

	srv := gethrpc.NewServer()
	apis := conf.APINames()

	for _, name := range apis {
		service, err := newService(name, deps)
		if err != nil {
			srv.Stop()

			return nil, err
		}

		if err := srv.RegisterName(name, service); err != nil {
			srv.Stop()

			return nil, fmt.Errorf("failed to register %s API: %w", name, err)
		}
	}

	return &Server{
		log:     log.WithField("component", "rpc"),
		config:  conf,
		addr:    addr,
		apis:    apis,
		rpc:     srv,
		handler: newMetricsHandler(newCorsHandler(srv, conf.CORSOrigins()), apis),
	}, nil
}

func newService(name string, deps Dependencies) (any, error) {
	missing := func(view string) error {
		return fmt.Errorf("%w: %s requires %s", ErrMissingDependency, name, view)
	}

	switch name {
	case APIWeb3:
		return &web3API{clientVersion: deps.ClientVersion}, nil
	case APINet:
		if deps.Chain == nil || deps.Sync == nil {
			return nil, missing("chain and sync")
		}

		return &netAPI{chain: deps.Chain, sync: deps.Sync}, nil
	case APIEth:
		if deps.Chain == nil || deps.Sync == nil || deps.Accounts == nil || deps.Miner == nil {
			return nil, missing("chain, sync, accounts and miner")
		}

		return &ethAPI{chain: deps.Chain, sync: deps.Sync, accounts: deps.Accounts, miner: deps.Miner}, nil
	case APIPersonal:
		if deps.Accounts == nil {
			return nil, missing("accounts")
		}

		return &personalAPI{accounts: deps.Accounts}, nil
	case APIEthcore:
		if deps.Miner == nil || deps.Logs == nil || deps.Settings == nil {
			return nil, missing("miner, logs and settings")
		}

		return &ethcoreAPI{miner: deps.Miner, logs: deps.Logs, settings: deps.Settings}, nil
	case APITrace:
		if deps.Traces == nil {
			return nil, missing("traces")
		}

		return &traceAPI{traces: deps.Traces}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAPI, name)
	}
}

// newCorsHandler leaves the handler untouched when no origins are configured.
func newCorsHandler(srv http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		return srv
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		AllowedHeaders: []string{"*"},
		MaxAge:         600,
	})

	return c.Handler(srv)
}

// Handler returns the HTTP handler serving JSON-RPC requests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listener and serves in the background.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("%w on %s: %w", ErrListen, s.addr, err)
	}

	s.listener = listener
	s.http = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 30 * time.Second,
	}
	s.done = make(chan struct{})

	s.log.WithFields(logrus.Fields{
		"addr": listener.Addr().String(),
		"apis": s.apis,
		"cors": s.config.CORSOrigins(),
	}).Info("JSON-RPC server started")

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)

		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("JSON-RPC server failed")
		}
	}(s.http, s.done)

	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return s.addr
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.http, s.done
	s.http, s.listener = nil, nil
	s.mu.Unlock()

	var err error

	if srv != nil {
		err = srv.Shutdown(ctx)
		<-done
	}

	s.rpc.Stop()

	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type methodEnvelope struct {
	Method string `json:"method"`
}

// requestMethods extracts the method names of a single or batch request.
func requestMethods(body []byte) []string {
	body = bytes.TrimSpace(body)

	if len(body) > 0 && body[0] == '[' {
		var batch []methodEnvelope
		if err := json.Unmarshal(body, &batch); err != nil {
			return []string{"invalid"}
		}

		methods := make([]string, len(batch))
		for i := range batch {
			methods[i] = batch[i].Method
		}

		return methods
	}

	var single methodEnvelope
	if err := json.Unmarshal(body, &single); err != nil || single.Method == "" {
		return []string{"invalid"}
	}

	return []string{single.Method}
}

// methodLabel keeps the label set bounded to the served namespaces.
func methodLabel(method string, served map[string]bool) string {
	namespace, _, ok := strings.Cut(method, "_")
	if !ok || !served[namespace] {
		return "unknown"
	}

	return method
}

// newMetricsHandler counts served requests per method and HTTP status.
func newMetricsHandler(next http.Handler, apis []string) http.Handler {
	served := make(map[string]bool, len(apis))
	for _, name := range apis {
		served[name] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)

			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)

			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		for _, method := range requestMethods(body) {
			common.RPCRequestsServed.WithLabelValues(methodLabel(method, served), status).Inc()
		}
	})
}
