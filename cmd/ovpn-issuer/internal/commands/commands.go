package commands

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"ovpn-issuer/internal/audit"
	"ovpn-issuer/internal/auth"
	"ovpn-issuer/internal/config"
	"ovpn-issuer/internal/credstore"
	"ovpn-issuer/internal/database"
	"ovpn-issuer/internal/logger"
	"ovpn-issuer/internal/pki"
	"ovpn-issuer/internal/registry"
	"ovpn-issuer/internal/settings"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config     string
	ServerHost string
	LogLevel   string
	Debug      bool
	Stdout     io.Writer
}

// app holds the components a command needs, built from the configuration.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *sql.DB
	events   *audit.Recorder
	registry *registry.Registry
	settings *settings.Manager
	auth     *auth.Manager
	out      io.Writer

	closers []func() error
}

// loadConfig reads the configuration and applies flag overrides. The server endpoint is
// only required when issuing is set; read-only commands work without it.
func (g *Globals) loadConfig(issuing bool) (*config.Config, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.ServerHost != "" {
		cfg.ServerHost = g.ServerHost
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if g.Debug {
		cfg.LogLevel = "debug"
	}
	validate := cfg.Validate
	if issuing {
		validate = cfg.ValidateIssuance
	}
	if err := validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// open builds every component. Callers must Close the result.
func (g *Globals) open(issuing bool) (*app, error) {
	cfg, err := g.loadConfig(issuing)
	if err != nil {
		return nil, err
	}
	log, closeLog, err := logger.Setup(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, Console: g.Debug})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	a := &app{cfg: cfg, log: log, out: g.stdout(), closers: []func() error{closeLog}}

	db, err := database.Open(cfg.Database)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db.Close)

	if a.events, err = audit.NewRecorder(db); err != nil {
		a.Close()
		return nil, err
	}

	store, err := credstore.New(credstore.Layout{PKIDir: cfg.PKIDir, TLSAuthPath: cfg.TLSAuthKey})
	if err != nil {
		a.Close()
		return nil, err
	}
	adapter, err := pki.New(pki.Options{Dir: cfg.EasyRSADir, Binary: cfg.EasyRSABin, Logger: log})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry, err = registry.New(registry.Options{
		Store:     store,
		Issuer:    adapter,
		OutputDir: cfg.OutputDir,
		Params:    cfg.ProfileParams(),
		Events:    a.events,
		Logger:    log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.settings = settings.NewManager(cfg.StateFile)
	a.auth = auth.NewManager(a.settings)
	return a, nil
}

func (g *Globals) stdout() io.Writer {
	if g.Stdout != nil {
		return g.Stdout
	}
	return os.Stdout
}

// Close releases everything open opened, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// pruneEventsIfDue applies the configured retention unless a prune already ran within
// cleanupInterval, so restarts do not prune more often than the schedule. It reports
// whether a prune ran.
func (a *app) pruneEventsIfDue(now time.Time) bool {
	state, err := a.settings.Get()
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to read state; pruning anyway")
	} else if !state.LastCleanup.IsZero() && now.Sub(state.LastCleanup) < cleanupInterval {
		return false
	}

	removed, err := database.Cleanup(a.db, a.cfg.EventRetention)
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to prune audit events")
		return false
	}
	if removed > 0 {
		a.log.Info().Int64("removed", removed).Msg("pruned audit events")
	}
	if err := a.settings.Update(func(s *settings.Settings) error {
		s.LastCleanup = now.UTC()
		return nil
	}); err != nil {
		a.log.Warn().Err(err).Msg("failed to save state")
	}
	return true
}
