package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/biid/pointterminal/internal/db"
	"github.com/biid/pointterminal/internal/handlers"
	"github.com/biid/pointterminal/internal/handlers/middleware"
	"github.com/biid/pointterminal/internal/logger"
	"github.com/biid/pointterminal/internal/models"
	"github.com/biid/pointterminal/internal/repository/sqlite"
	"github.com/biid/pointterminal/internal/service/identify"
	"github.com/biid/pointterminal/internal/service/ledgerapi"
	"github.com/biid/pointterminal/internal/service/processor"
	"github.com/biid/pointterminal/internal/service/settings"
	"github.com/biid/pointterminal/internal/service/syncer"
	"github.com/biid/pointterminal/internal/service/terminal"

	cacheagent "github.com/biid/pointterminal/internal/cache"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	syncer *syncer.Syncer
	db     *sql.DB
	logger logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Open terminal database and run migrations
	conn, err := db.ConnectAndMigrate(c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error while opening terminal db. Err: %w", err)
	}

	// Initialize repositories
	storage := sqlite.NewStorage(conn)

	// Initialize ledger client and cached reads
	client := ledgerapi.NewClient(c.LedgerAddr, ledgerapi.Credentials{
		TerminalID: c.TerminalID,
		Secret:     c.TerminalSecret,
	}, logger)
	agent := cacheagent.NewAgent(storage.Cache(), logger)
	reads := ledgerapi.NewCachedReads(client, agent)

	// Initialize services
	identifier := identify.New(reads, logger)
	proc := processor.New(processor.Config{Deadline: c.SubmitDeadline}, client, storage.Pending(), logger)

	sync := syncer.New(syncer.Config{
		DrainInterval: c.DrainInterval,
		OnRejected: func(record models.PendingSyncRecord, reason string) {
			logger.Warn("Queued transaction rejected by ledger",
				"id", record.ID,
				"idempotency_key", record.Session.IdempotencyKey,
				"reason", reason,
			)
		},
	}, proc, storage.Pending(), logger)

	pinService := settings.New(storage.Settings())

	// Stored countdown configuration wins over env/flags once provisioned
	idleTimeout, err := pinService.IdleTimeout(ctx, c.IdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("error while reading countdown settings. Err: %w", err)
	}
	identifyTimeout, err := pinService.IdentifyTimeout(ctx, terminal.DefaultIdentifyTimeout)
	if err != nil {
		return nil, fmt.Errorf("error while reading countdown settings. Err: %w", err)
	}

	machine := terminal.NewMachine(terminal.Config{
		TerminalID:      c.TerminalID,
		IdleTimeout:     idleTimeout,
		IdentifyTimeout: identifyTimeout,
		OnSettled:       sync.WakeUp,
	}, proc, identifier, logger)

	hasPIN, err := pinService.HasPIN(ctx)
	if err != nil {
		return nil, fmt.Errorf("error while reading terminal settings. Err: %w", err)
	}
	if !hasPIN && c.OperatorPIN != "" {
		if err := pinService.SetPIN(ctx, c.OperatorPIN); err != nil {
			return nil, fmt.Errorf("error while provisioning operator pin. Err: %w", err)
		}
		hasPIN = true
	}

	// A terminal without an operator pin boots unlocked
	lock := middleware.NewLock(!hasPIN)

	mux := handlers.NewRouter(handlers.Services{
		Machine: machine,
		PIN:     pinService,
		History: reads,
		Pending: storage.Pending(),
		Ledger:  client,
		Lock:    lock,
	}, logger)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		syncer:     sync,
		db:         conn,
		logger:     logger,
	}, nil
}

// Run starts the http server and the offline queue drain loop, closing both
// gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	syncerStopped := s.syncer.Run(srvCtx)

	idleConnsClosed := make(chan struct{})
	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully
	s.logger.Info("Starting terminal", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-syncerStopped

	if closeErr := s.db.Close(); closeErr != nil {
		s.logger.Error("Failed to close terminal db", "error", closeErr)
	}

	return err
}
