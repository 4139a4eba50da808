package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/helioslabs/ledgerscope/pkg/history"
	"github.com/helioslabs/ledgerscope/pkg/pipeline"
)

// Pipeline runs one question end to end.
type Pipeline interface {
	Run(ctx context.Context, question string) (*pipeline.RunResult, error)
}

// History serves stored runs for the read and feedback endpoints.
type History interface {
	Recent(ctx context.Context, limit int) ([]*history.Run, error)
	Get(ctx context.Context, id string) (*history.Run, error)
	UpdateFeedback(ctx context.Context, id string, score int, comment string) error
}

type Config struct {
	Logger *slog.Logger

	// HTTPListener serves the API.
	HTTPListener net.Listener

	// MetricsListener, when set with MetricsHandler, serves /metrics on a
	// separate port so scrapes never contend with API traffic.
	MetricsListener net.Listener
	MetricsHandler  http.Handler

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	Pipeline Pipeline
	History  History

	// Ready reports whether the warehouse is reachable. Nil means always
	// ready.
	Ready func(ctx context.Context) bool
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.HTTPListener == nil {
		return errors.New("http listener is required")
	}
	if cfg.Pipeline == nil {
		return errors.New("pipeline is required")
	}
	if cfg.History == nil {
		return errors.New("history store is required")
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return nil
}
