package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/absmach/fedasync"
	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/coordinator/middleware"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/mqtt"
	"github.com/absmach/fedasync/pkg/prometheus"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/absmach/fedasync/pkg/tracing"
	"github.com/absmach/fedasync/pkg/trainer"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const svcName = "fedasync"

var configPath string

// SetConfigPath sets the TOML or YAML file overlaid on the environment.
func SetConfigPath(path string) {
	configPath = path
}

func loadConfig() (fedasync.Config, error) {
	cfg, err := fedasync.LoadConfig(configPath)
	if err != nil {
		return fedasync.Config{}, err
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	return cfg, nil
}

func newLogger(logLevel string) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %s", err.Error())
	}
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	return logger, nil
}

// node is a scheduler wired with its sinks and middleware.
type node struct {
	svc     coordinator.Service
	pubsub  mqtt.PubSub
	logger  *slog.Logger
	closers []func(ctx context.Context) error
}

func bootstrap(ctx context.Context, cfg fedasync.Config) (*node, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	n := &node{logger: logger}

	var tp trace.TracerProvider
	switch cfg.Tracing.URL {
	case "":
		tp = noop.NewTracerProvider()
	default:
		collector, err := url.Parse(cfg.Tracing.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid tracing url: %w", err)
		}
		sdktp, err := tracing.NewProvider(ctx, svcName, *collector, cfg.InstanceID, cfg.Tracing.Ratio)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize opentelemetry: %s", err.Error())
		}
		n.closers = append(n.closers, sdktp.Shutdown)
		tp = sdktp
	}
	tracer := tp.Tracer(svcName)

	repos, err := storage.NewRepositories(cfg.Storage)
	if err != nil {
		n.close(ctx)

		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Storage.Type, err)
	}
	if repos.Closer != nil {
		n.closers = append(n.closers, func(context.Context) error { return repos.Closer.Close() })
	}

	var checkpoints *fl.PersistentStorage
	if cfg.Checkpoints.Enabled {
		checkpoints, err = fl.NewPersistentStorage(cfg.Checkpoints.RoundsDir, cfg.Checkpoints.ModelsDir)
		if err != nil {
			n.close(ctx)

			return nil, fmt.Errorf("failed to initialize checkpoints: %w", err)
		}
	}

	notifier := coordinator.NewNoopNotifier()
	if cfg.MQTT.Enabled {
		n.pubsub, err = mqtt.NewPubSub(mqtt.Config{
			Address:   cfg.MQTT.Address,
			QoS:       cfg.MQTT.QoS,
			Timeout:   cfg.MQTT.Timeout,
			ClientID:  cfg.MQTT.ClientID,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			BaseTopic: cfg.MQTT.BaseTopic,
		}, logger)
		if err != nil {
			n.close(ctx)

			return nil, fmt.Errorf("failed to initialize mqtt pubsub: %s", err.Error())
		}
		n.closers = append(n.closers, n.pubsub.Disconnect)
		notifier = coordinator.NewMQTTNotifier(n.pubsub)
	}

	sim := trainer.NewSimulated(cfg.Simulation)
	svc, err := coordinator.NewService(cfg.Coordinator(), sim.InitialParams(), sim, repos.Rounds, repos.Participants, checkpoints, notifier, logger)
	if err != nil {
		n.close(ctx)

		return nil, err
	}
	svc = middleware.Logging(logger, svc)
	svc = middleware.Tracing(tracer, svc)
	counter, latency := prometheus.MakeMetrics(svcName, "api")
	svc = middleware.Metrics(counter, latency, prometheus.MakeRoundMetrics(svcName), svc)
	n.svc = svc

	return n, nil
}

// close releases the sinks in reverse order of creation.
func (n *node) close(ctx context.Context) {
	var err error
	for i := len(n.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, n.closers[i](ctx))
	}
	if err != nil {
		n.logger.Error("error releasing resources", slog.Any("error", err))
	}
}
