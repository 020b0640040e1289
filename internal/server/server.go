package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jjudge-oj/accountserver/config"
	"github.com/jjudge-oj/accountserver/internal/db"
	"github.com/jjudge-oj/accountserver/internal/events"
	"github.com/jjudge-oj/accountserver/internal/handlers"
	"github.com/jjudge-oj/accountserver/internal/password"
	"github.com/jjudge-oj/accountserver/internal/services"
	"github.com/jjudge-oj/accountserver/internal/storage"
	"github.com/jjudge-oj/accountserver/internal/store"
	"github.com/jjudge-oj/accountserver/internal/token"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *zap.Logger
	db         *sql.DB
	closers    []func() error
}

// New constructs a Server from cfg. The signing secret is read once here
// and shared by the token issuer and the auth guard; a blank secret is
// rejected by the token package.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	jwtSecret := strings.TrimSpace(cfg.JWTSecret)
	issuer, err := token.NewIssuer([]byte(jwtSecret))
	if err != nil {
		return nil, err
	}
	verifier, err := token.NewVerifier([]byte(jwtSecret))
	if err != nil {
		return nil, err
	}

	s := &Server{logger: logger}

	repo, err := s.openUserRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	emitter, err := s.buildEmitter(ctx, cfg)
	if err != nil {
		_ = s.Shutdown(ctx)
		return nil, err
	}

	accountService := services.NewAccountService(repo, password.NewHasher(), issuer, emitter)
	authMiddleware := handlers.RequireAuth(verifier, logger)
	limiter := handlers.NewRateLimiter(cfg.AuthRatePerMinute)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(logger),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/users", func(r chi.Router) {
		handlers.AccountRouter(r, accountService, authMiddleware, limiter.Handler, logger)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) openUserRepository(ctx context.Context, cfg config.Config) (services.UserRepository, error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		s.logger.Warn("using in-memory user store; accounts are lost on restart")
		return store.NewMemoryUserRepository(), nil
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.db = dbConn
	return store.NewUserRepository(dbConn), nil
}

func (s *Server) buildEmitter(ctx context.Context, cfg config.Config) (*events.Emitter, error) {
	var sinks []events.Sink

	switch cfg.Events.Backend {
	case config.EventsBackendRabbitMQ:
		client, err := events.NewRabbitMQClient(cfg.Events.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		sinks = append(sinks, events.NewBrokerSink(client, cfg.Events.Channel))
	case config.EventsBackendPubSub:
		client, err := events.NewPubSubClient(ctx, cfg.Events.PubSub)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		sinks = append(sinks, events.NewBrokerSink(client, cfg.Events.Channel))
	}

	var objects storage.ObjectStorage
	switch cfg.Archive.Backend {
	case config.ArchiveBackendMinio:
		client, err := storage.NewMinioStore(cfg.Archive.Minio)
		if err != nil {
			return nil, fmt.Errorf("connect minio: %w", err)
		}
		objects = client
	case config.ArchiveBackendGCS:
		client, err := storage.NewGCSStore(ctx, cfg.Archive.GCS)
		if err != nil {
			return nil, fmt.Errorf("connect gcs: %w", err)
		}
		s.closers = append(s.closers, client.Close)
		objects = client
	}
	if objects != nil {
		if err := objects.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure archive bucket %q: %w", objects.Bucket(), err)
		}
		sinks = append(sinks, events.NewArchiveSink(objects, cfg.Archive.Prefix))
	}

	for _, sink := range sinks {
		s.logger.Info("account events enabled", zap.String("sink", sink.Name()))
	}
	return events.NewEmitter(s.logger, sinks...), nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests, then releases the database and broker
// connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	for _, closeFn := range s.closers {
		_ = closeFn()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
