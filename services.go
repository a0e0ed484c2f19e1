package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/appdist/internal/appstatus"
	"github.com/tonimelisma/appdist/internal/backend"
	"github.com/tonimelisma/appdist/internal/cascade"
	"github.com/tonimelisma/appdist/internal/config"
	"github.com/tonimelisma/appdist/internal/forms"
	"github.com/tonimelisma/appdist/internal/journal"
	"github.com/tonimelisma/appdist/internal/payload"
)

// Services holds the backend clients built from resolved config. One value
// serves every session a command opens.
type Services struct {
	Client     *backend.Client
	Lookups    *backend.Lookups
	Dispatcher *payload.Dispatcher
	Cfg        *config.Resolved
	Logger     *slog.Logger
}

// NewServices wires the backend client, lookups and dispatcher.
func NewServices(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*Services, error) {
	ts, err := tokenSource(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	client := backend.NewClient(cfg.Backend.BaseURL, nil, ts, logger, backend.Options{
		UserAgent:  cfg.Backend.UserAgent,
		MaxRetries: cfg.Backend.MaxRetries,
		Timeout:    cfg.Timeout,
	})

	return &Services{
		Client:     client,
		Lookups:    backend.NewLookups(client, cfg.Backend.LookupPath, logger),
		Dispatcher: payload.NewDispatcher(client, cfg.Backend.UpdatePath, logger),
		Cfg:        cfg,
		Logger:     logger,
	}, nil
}

// tokenSource picks the auth mode. Static tokens and client secrets may also
// arrive through the environment.
func tokenSource(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (backend.TokenSource, error) {
	switch cfg.Auth.Mode {
	case config.AuthToken:
		if cfg.Auth.Token == "" {
			return nil, fmt.Errorf("auth mode %q needs a token (set %s)", config.AuthToken, config.EnvToken)
		}

		return backend.StaticToken(cfg.Auth.Token), nil
	case config.AuthClientCredentials:
		if cfg.Auth.ClientSecret == "" {
			return nil, fmt.Errorf("auth mode %q needs a client secret (set %s)", config.AuthClientCredentials, config.EnvClientSecret)
		}

		return backend.NewClientCredentialsSource(ctx, backend.ClientCredentials{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			TokenURL:     cfg.Auth.TokenURL,
			Scopes:       cfg.Auth.Scopes,
			CachePath:    cfg.Auth.CachePath,
		}, logger), nil
	default:
		return nil, nil
	}
}

// Identity returns the employee id sessions act as.
func (s *Services) Identity(override string) (cascade.Identity, error) {
	id := override
	if id == "" {
		id = s.Cfg.Session.EmployeeID
	}

	if id == "" {
		return "", fmt.Errorf("no employee id: pass --employee-id, set %s, or set session.employee_id", config.EnvEmployeeID)
	}

	return cascade.Identity(id), nil
}

// OpenSession starts a session for kind. initial holds edit-flow values by
// form field name; the configured default academic year is always seeded.
func (s *Services) OpenSession(
	ctx context.Context, kind payload.Kind, identity cascade.Identity, initial map[string]string, opts ...cascade.SessionOption,
) (*cascade.Session, error) {
	g, err := forms.New(kind, s.Lookups)
	if err != nil {
		return nil, err
	}

	seeds := forms.Seeds(g, s.Cfg.Session.DefaultAcademicYear, initial)

	opts = append([]cascade.SessionOption{
		cascade.WithLogger(s.Logger),
		cascade.WithSeed(seeds),
	}, opts...)

	return cascade.NewSession(ctx, g, identity, opts...)
}

// Settle waits for a session's fetches within the configured timeout.
func (s *Services) Settle(ctx context.Context, sess *cascade.Session) error {
	ctx, cancel := context.WithTimeout(ctx, s.Cfg.SettleTimeout)
	defer cancel()

	return sess.Settle(ctx)
}

// OpenJournal opens the submission journal, or returns nil when disabled.
func (s *Services) OpenJournal(ctx context.Context) (*journal.Store, error) {
	if !s.Cfg.Journal.Enabled {
		return nil, nil
	}

	return journal.Open(ctx, s.Cfg.Journal.Path, s.Logger)
}

// Submitter builds a journaling submitter over the dispatcher.
func (s *Services) Submitter(store *journal.Store) *journal.Submitter {
	return journal.NewSubmitter(s.Dispatcher, store, s.Cfg.DryRun, s.Logger)
}

// StatusResolver builds the application details resolver.
func (s *Services) StatusResolver() *appstatus.Resolver {
	norm := appstatus.NewNormalizer(s.Cfg.Status.Default, s.Cfg.Status.Aliases)
	return appstatus.NewResolver(s.Lookups, norm, s.Logger)
}

// withConfig returns a copy of s reading session defaults from cfg. The
// backend clients are shared.
func (s *Services) withConfig(cfg *config.Resolved) *Services {
	cp := *s
	cp.Cfg = cfg

	return &cp
}
