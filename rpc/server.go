package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"otoledger/core/events"
	"otoledger/core/types"
	"otoledger/crypto"
)

const (
	defaultMaxBodyBytes = 1 << 20 // 1 MiB
	requestIDHeader     = "X-Request-ID"
	shutdownGrace       = 10 * time.Second
)

// Ledger is the node surface served over RPC.
type Ledger interface {
	SubmitTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	Config() (*types.Config, error)
	Mint() (*types.Mint, *types.TokenMetadata, error)
	User(userID string) (crypto.Address, *types.User, error)
	Asset(addr crypto.Address) (*types.Asset, error)
	PurchaseRequest(addr crypto.Address) (*types.PurchaseRequest, error)
	Offer(addr crypto.Address) (*types.AssetOffer, error)
	Proof(addr crypto.Address) (*types.TransferProof, error)
	Balance(owner crypto.Address) (uint64, error)
	Nonce(addr crypto.Address) (uint64, error)
	Subscribe(buffer int) (<-chan events.Event, func())
}

// ServerConfig carries the listener knobs resolved from the node config.
type ServerConfig struct {
	JWTSecret         string
	JWTIssuer         string
	RateLimitPerSec   float64
	RateBurst         int
	TrustedProxies    []string
	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

type Server struct {
	node    Ledger
	cfg     ServerConfig
	logger  *slog.Logger
	auth    *authenticator
	limiter *rateLimiter
	proxies *proxyResolver
	handler http.Handler
}

func NewServer(node Ledger, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, errors.New("rpc: node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	proxies, err := newProxyResolver(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	s := &Server{
		node:    node,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "rpc")),
		auth:    newAuthenticator(cfg.JWTSecret, cfg.JWTIssuer),
		limiter: newRateLimiter(cfg.RateLimitPerSec, cfg.RateBurst),
		proxies: proxies,
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleEventStream)
	r.Post("/rpc", s.handle)
	return otelhttp.NewHandler(r, "oto.rpc")
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve runs the server on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving JSON-RPC", slog.String("address", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc shutdown: %w", err)
	}
	return nil
}

// Start listens on addr and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

type ctxKey string

const requestIDKey ctxKey = "rpc.request_id"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
