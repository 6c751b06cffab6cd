package fedasync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/absmach/fedasync/coordinator"
	pkgerrors "github.com/absmach/fedasync/pkg/errors"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/quorum"
	"github.com/absmach/fedasync/pkg/selection"
	"github.com/absmach/fedasync/pkg/server"
	"github.com/absmach/fedasync/pkg/staleness"
	"github.com/absmach/fedasync/pkg/storage"
	"github.com/absmach/fedasync/pkg/trainer"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "FEDASYNC_"

type Config struct {
	LogLevel   string `toml:"log_level"   yaml:"log_level"   env:"LOG_LEVEL"   envDefault:"info"`
	InstanceID string `toml:"instance_id" yaml:"instance_id" env:"INSTANCE_ID"`

	Scheduler   SchedulerConfig         `toml:"scheduler"   yaml:"scheduler"   envPrefix:"SCHEDULER_"`
	Selection   SelectionConfig         `toml:"selection"   yaml:"selection"   envPrefix:"SELECTION_"`
	Quorum      QuorumConfig            `toml:"quorum"      yaml:"quorum"      envPrefix:"QUORUM_"`
	Staleness   staleness.Config        `toml:"staleness"   yaml:"staleness"   envPrefix:"STALENESS_"`
	Aggregation AggregationConfig       `toml:"aggregation" yaml:"aggregation" envPrefix:"AGGREGATION_"`
	Simulation  trainer.SimulatedConfig `toml:"simulation"  yaml:"simulation"  envPrefix:"SIMULATION_"`
	Storage     storage.Config          `toml:"storage"     yaml:"storage"     envPrefix:"STORAGE_"`
	Checkpoints CheckpointConfig        `toml:"checkpoints" yaml:"checkpoints" envPrefix:"CHECKPOINTS_"`
	MQTT        MQTTConfig              `toml:"mqtt"        yaml:"mqtt"        envPrefix:"MQTT_"`
	HTTP        server.Config           `toml:"http"        yaml:"http"        envPrefix:"HTTP_"`
	Tracing     TracingConfig           `toml:"tracing"     yaml:"tracing"     envPrefix:"TRACING_"`
}

type SchedulerConfig struct {
	NumClients         int `toml:"num_clients"          yaml:"num_clients"          env:"NUM_CLIENTS"          envDefault:"10"`
	ClientsPerRound    int `toml:"num_client_per_round" yaml:"num_client_per_round" env:"NUM_CLIENT_PER_ROUND" envDefault:"3"`
	AggClientsPerRound int `toml:"agg_client_per_round" yaml:"agg_client_per_round" env:"AGG_CLIENT_PER_ROUND" envDefault:"2"`
	MaxRound           int `toml:"max_round"            yaml:"max_round"            env:"MAX_ROUND"            envDefault:"5"`
}

type SelectionConfig struct {
	Policy string `toml:"policy" yaml:"policy" env:"POLICY" envDefault:"uniform"`
	Bins   int    `toml:"bins"   yaml:"bins"   env:"BINS"   envDefault:"100"`
	Seed   uint64 `toml:"seed"   yaml:"seed"   env:"SEED"   envDefault:"1"`
}

type QuorumConfig struct {
	Kind string `toml:"kind" yaml:"kind" env:"KIND" envDefault:"cluster"`
}

type AggregationConfig struct {
	Normalization string `toml:"normalization" yaml:"normalization" env:"NORMALIZATION" envDefault:"count"`
	SampleCount   int    `toml:"sample_count"  yaml:"sample_count"  env:"SAMPLE_COUNT"  envDefault:"1"`
	Metric        string `toml:"metric"        yaml:"metric"        env:"METRIC"        envDefault:"accuracy"`
	MetricGoal    string `toml:"metric_goal"   yaml:"metric_goal"   env:"METRIC_GOAL"   envDefault:"max"`
}

type CheckpointConfig struct {
	Enabled   bool   `toml:"enabled"    yaml:"enabled"    env:"ENABLED"    envDefault:"false"`
	RoundsDir string `toml:"rounds_dir" yaml:"rounds_dir" env:"ROUNDS_DIR" envDefault:"./data/rounds"`
	ModelsDir string `toml:"models_dir" yaml:"models_dir" env:"MODELS_DIR" envDefault:"./data/models"`
}

type MQTTConfig struct {
	Enabled   bool          `toml:"enabled"    yaml:"enabled"    env:"ENABLED"    envDefault:"false"`
	Address   string        `toml:"address"    yaml:"address"    env:"ADDRESS"    envDefault:"tcp://localhost:1883"`
	QoS       uint8         `toml:"qos"        yaml:"qos"        env:"QOS"        envDefault:"2"`
	Timeout   time.Duration `toml:"timeout"    yaml:"timeout"    env:"TIMEOUT"    envDefault:"30s"`
	ClientID  string        `toml:"client_id"  yaml:"client_id"  env:"CLIENT_ID"  envDefault:"fedasync"`
	Username  string        `toml:"username"   yaml:"username"   env:"USERNAME"`
	Password  string        `toml:"password"   yaml:"password"   env:"PASSWORD"`
	BaseTopic string        `toml:"base_topic" yaml:"base_topic" env:"BASE_TOPIC" envDefault:"fedasync"`
	Control   bool          `toml:"control"    yaml:"control"    env:"CONTROL"    envDefault:"false"`
}

type TracingConfig struct {
	URL   string  `toml:"url"   yaml:"url"   env:"URL"`
	Ratio float64 `toml:"ratio" yaml:"ratio" env:"RATIO" envDefault:"1"`
}

// LoadConfig reads the defaults and the FEDASYNC_ environment, then overlays
// the TOML or YAML file at path when one is given. Environment variables win
// over the file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidConfig, err)
	}

	if path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
		// Re-apply explicitly set variables only.
		opts := env.Options{Prefix: EnvPrefix, DefaultValueTagName: "fileDefault"}
		if err := env.ParseWithOptions(&cfg, opts); err != nil {
			return Config{}, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidConfig, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: error parsing config file: %w", pkgerrors.ErrInvalidConfig, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: error parsing config file: %w", pkgerrors.ErrInvalidConfig, err)
		}
	default:
		return fmt.Errorf("%w: unsupported config file extension %q", pkgerrors.ErrInvalidConfig, ext)
	}

	return nil
}

func (c Config) Validate() error {
	if err := c.Coordinator().Validate(); err != nil {
		return err
	}
	if _, err := fl.ParseNormalization(c.Aggregation.Normalization); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrInvalidConfig, err)
	}
	if _, err := selection.New(selection.Kind(c.Selection.Policy), c.Selection.Seed, c.Selection.Bins); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrInvalidConfig, err)
	}
	if _, err := quorum.New(quorum.Kind(c.Quorum.Kind), c.Scheduler.AggClientsPerRound); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrInvalidConfig, err)
	}
	if _, err := staleness.New(c.Staleness); err != nil {
		return fmt.Errorf("%w: %w", pkgerrors.ErrInvalidConfig, err)
	}
	switch {
	case c.Selection.Bins < 1:
		return fmt.Errorf("%w: selection bins must be positive", pkgerrors.ErrInvalidConfig)
	case c.Aggregation.SampleCount < 1:
		return fmt.Errorf("%w: sample_count must be positive", pkgerrors.ErrInvalidConfig)
	case c.Simulation.MeanTime <= 0:
		return fmt.Errorf("%w: simulation mean_time must be positive", pkgerrors.ErrInvalidConfig)
	case len(c.Simulation.Layers) == 0:
		return fmt.Errorf("%w: simulation needs at least one layer", pkgerrors.ErrInvalidConfig)
	case c.MQTT.QoS > 2:
		return fmt.Errorf("%w: mqtt qos must be 0, 1 or 2", pkgerrors.ErrInvalidConfig)
	case c.Tracing.Ratio < 0 || c.Tracing.Ratio > 1:
		return fmt.Errorf("%w: tracing ratio must be in [0, 1]", pkgerrors.ErrInvalidConfig)
	}
	for _, l := range c.Simulation.Layers {
		if l < 1 {
			return fmt.Errorf("%w: simulation layer sizes must be positive", pkgerrors.ErrInvalidConfig)
		}
	}

	return nil
}

// Coordinator returns the scheduler settings. Call it on a validated config.
func (c Config) Coordinator() coordinator.Config {
	normalization, _ := fl.ParseNormalization(c.Aggregation.Normalization)

	return coordinator.Config{
		NumClients:         c.Scheduler.NumClients,
		ClientsPerRound:    c.Scheduler.ClientsPerRound,
		AggClientsPerRound: c.Scheduler.AggClientsPerRound,
		MaxRound:           c.Scheduler.MaxRound,
		Selection:          selection.Kind(c.Selection.Policy),
		Bins:               c.Selection.Bins,
		Seed:               c.Selection.Seed,
		Quorum:             quorum.Kind(c.Quorum.Kind),
		Staleness:          c.Staleness,
		Normalization:      normalization,
		SampleCount:        c.Aggregation.SampleCount,
		MetricKey:          c.Aggregation.Metric,
		MetricGoal:         coordinator.MetricGoal(c.Aggregation.MetricGoal),
	}
}
