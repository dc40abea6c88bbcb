package commands

import (
	"context"
	"fmt"
	"time"

	"ovpn-issuer/internal/server"
)

const (
	// cleanupInterval is how often audit events are pruned.
	cleanupInterval = 24 * time.Hour
	// cleanupCheckInterval is how often serve checks whether a prune is due.
	cleanupCheckInterval = time.Hour
)

type ServeCmd struct {
	Listen string `help:"Listen address; overrides listen from the configuration." env:"OVPN_ISSUER_LISTEN"`
}

func (s *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open(true)
	if err != nil {
		return err
	}
	defer a.Close()

	token, created, err := a.auth.EnsureToken()
	if err != nil {
		return fmt.Errorf("failed to initialise API token: %w", err)
	}
	if created {
		fmt.Fprintf(a.out, "Generated API token (shown once): %s\n", token)
	}

	srv, err := server.New(server.Options{
		Registry:  a.registry,
		Auth:      a.auth,
		Events:    a.events,
		StatusLog: a.cfg.StatusLog,
		Logger:    a.log,
	})
	if err != nil {
		return err
	}

	a.pruneEventsIfDue(time.Now())
	go func() {
		ticker := time.NewTicker(cleanupCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				a.pruneEventsIfDue(now)
			case <-ctx.Done():
				return
			}
		}
	}()

	addr := a.cfg.Listen
	if s.Listen != "" {
		addr = s.Listen
	}
	return srv.ListenAndServe(ctx, addr)
}
