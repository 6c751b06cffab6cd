package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const stopWaitTime = 5 * time.Second

type Config struct {
	Host         string        `toml:"host"          yaml:"host"          env:"HOST"          envDefault:""`
	Port         string        `toml:"port"          yaml:"port"          env:"PORT"          envDefault:"7070"`
	ReadTimeout  time.Duration `toml:"read_timeout"  yaml:"read_timeout"  env:"READ_TIMEOUT"  envDefault:"15s"`
	WriteTimeout time.Duration `toml:"write_timeout" yaml:"write_timeout" env:"WRITE_TIMEOUT" envDefault:"15s"`
}

type Server struct {
	name    string
	address string
	server  *http.Server
	logger  *slog.Logger
}

func NewServer(name string, cfg Config, handler http.Handler, logger *slog.Logger) *Server {
	address := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)

	return &Server{
		name:    name,
		address: address,
		server: &http.Server{
			Addr:         address,
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info(fmt.Sprintf("%s service HTTP server listening at %s", s.name, s.address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopWaitTime)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error(fmt.Sprintf("%s service HTTP server error occurred during shutdown at %s: %s", s.name, s.address, err))

		return fmt.Errorf("%s service HTTP server error occurred during shutdown at %s: %w", s.name, s.address, err)
	}
	s.logger.Info(fmt.Sprintf("%s service HTTP server shutdown at %s", s.name, s.address))

	return nil
}

// StopSignalHandler stops the servers on SIGINT or SIGTERM, or once ctx is
// done.
func StopSignalHandler(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, svcName string, servers ...*Server) error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)

	var err error
	select {
	case sig := <-c:
		defer cancel()
		logger.Info(fmt.Sprintf("%s service shutdown by signal: %s", svcName, sig))
	case <-ctx.Done():
	}

	for _, s := range servers {
		err = errors.Join(err, s.Stop())
	}

	return err
}
