// Package agent exposes the conversation engine behind a small facade that
// owns wiring, persistence, and shutdown.
package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	internal "github.com/ZanzyTHEbar/convoengine/convo"
	"github.com/ZanzyTHEbar/convoengine/convo/config"
	"github.com/ZanzyTHEbar/convoengine/convo/db"
	"github.com/ZanzyTHEbar/convoengine/convo/engine"
	"github.com/ZanzyTHEbar/convoengine/convo/engine/adapters"
	ports "github.com/ZanzyTHEbar/convoengine/convo/engine/ports"
)

const healthcheckTimeout = 10 * time.Second

// Service is the host-facing entry point. It opens the session database when
// the configured backend needs one, wires the engine through the factory,
// and owns the lifecycle of both.
type Service struct {
	cfg    *config.Config
	engine *engine.ConversationEngine
	db     *sql.DB
	logger zerolog.Logger
}

// NewService wires a Service from loaded configuration. caller is the host's
// service surface used to execute commands; nil leaves every command
// unroutable but keeps conversation working.
func NewService(cfg *config.Config, caller ports.ServiceCaller, logger zerolog.Logger) (*Service, error) {
	var database *sql.DB
	if cfg.Store.Backend == "libsql" {
		path := internal.DefaultDatabasePath
		if cfg.Store.LibSQLDataDir != "" {
			path = filepath.Join(cfg.Store.LibSQLDataDir, "sessions.db")
		}
		var err error
		database, err = db.ConnectToDB(path)
		if err != nil {
			return nil, fmt.Errorf("open session database: %w", err)
		}
		if err := adapters.RunMigrations(database); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrate session database: %w", err)
		}
	}

	factory := engine.NewFactory(cfg, database, caller, logger)
	eng, err := factory.CreateEngine()
	if err != nil {
		if database != nil {
			database.Close()
		}
		return nil, err
	}

	return &Service{
		cfg:    cfg,
		engine: eng,
		db:     database,
		logger: logger,
	}, nil
}

// ProcessText runs one utterance and returns its spoken outcome. sessionID
// may be empty or stale; the result carries the id follow-up turns should
// use.
func (s *Service) ProcessText(ctx context.Context, text, sessionID string) engine.TurnResult {
	return s.engine.ProcessTurn(ctx, engine.TurnRequest{Text: text, SessionID: sessionID})
}

// ProcessTurn runs a fully specified turn request.
func (s *Service) ProcessTurn(ctx context.Context, req engine.TurnRequest) engine.TurnResult {
	return s.engine.ProcessTurn(ctx, req)
}

// Metrics returns a snapshot of the engine's counters.
func (s *Service) Metrics() engine.MetricsSummary {
	return s.engine.Metrics().Summary()
}

// Healthcheck probes the completion backend and the session store
// concurrently, failing when either is unreachable.
func (s *Service) Healthcheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthcheckTimeout)
	defer cancel()

	probes := pool.New().WithErrors().WithContext(ctx)

	probes.Go(func(ctx context.Context) error {
		models, err := s.engine.Provider().ListModels(ctx)
		if err != nil {
			return fmt.Errorf("provider %s unreachable: %w", s.engine.Provider().Name(), err)
		}
		s.logger.Debug().Int("models", len(models)).Msg("provider probe ok")
		return nil
	})

	probes.Go(func(ctx context.Context) error {
		// Any answer but a store fault is healthy; the probe id never exists.
		_, err := s.engine.Store().Get(ctx, "healthcheck-probe")
		if err != nil && !errors.Is(err, ports.ErrSessionNotFound) {
			return fmt.Errorf("session store unreachable: %w", err)
		}
		return nil
	})

	return probes.Wait()
}

// Close releases the engine's resources and the database handle.
func (s *Service) Close() error {
	err := s.engine.Close()
	if s.db != nil {
		if dbErr := s.db.Close(); dbErr != nil && err == nil {
			err = dbErr
		}
	}
	return err
}
