package trainer

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/absmach/fedasync/pkg/fl"
)

type SimulatedConfig struct {
	Seed         uint64        `toml:"seed"          yaml:"seed"          env:"SEED"          envDefault:"1"`
	MeanTime     time.Duration `toml:"mean_time"     yaml:"mean_time"     env:"MEAN_TIME"     envDefault:"10s"`
	Layers       []int         `toml:"layers"        yaml:"layers"        env:"LAYERS"        envDefault:"16,4"`
	LearningRate float64       `toml:"learning_rate" yaml:"learning_rate" env:"LEARNING_RATE" envDefault:"0.3"`
	Noise        float64       `toml:"noise"         yaml:"noise"         env:"NOISE"         envDefault:"0.01"`
	// TimeScale makes Train sleep for the completion time multiplied by it.
	// Zero returns immediately.
	TimeScale float64 `toml:"time_scale" yaml:"time_scale" env:"TIME_SCALE" envDefault:"0"`
}

// Simulated trains towards a hidden target model. Every participant has a
// fixed completion time drawn once from N(mean, mean/5) and its own random
// stream, so a run is reproducible for a given seed. A participant must not
// train concurrently with itself.
type Simulated struct {
	cfg    SimulatedConfig
	target fl.Params

	mu      sync.Mutex
	clients map[string]*simClient
}

type simClient struct {
	rng  *rand.Rand
	time time.Duration
}

var _ Trainer = (*Simulated)(nil)

func NewSimulated(cfg SimulatedConfig) *Simulated {
	if len(cfg.Layers) == 0 {
		cfg.Layers = []int{1}
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, 0))
	target := make(fl.Params, len(cfg.Layers))
	for i, size := range cfg.Layers {
		t := fl.NewTensor(size)
		for j := range t.Data {
			t.Data[j] = rng.NormFloat64()
		}
		target[layerName(i)] = t
	}

	return &Simulated{
		cfg:     cfg,
		target:  target,
		clients: make(map[string]*simClient),
	}
}

// InitialParams is the zero model with the simulated schema.
func (s *Simulated) InitialParams() fl.Params {
	params := make(fl.Params, len(s.target))
	for name, t := range s.target {
		params[name] = fl.NewTensor(t.Shape...)
	}

	return params
}

// CompletionTime returns the fixed completion time of a participant.
func (s *Simulated) CompletionTime(participantID string) time.Duration {
	return s.client(participantID).time
}

func (s *Simulated) Train(ctx context.Context, participantID string, global fl.Params) (fl.LocalResult, error) {
	if err := ctx.Err(); err != nil {
		return fl.LocalResult{}, err
	}

	start := global
	if len(start) == 0 {
		start = s.InitialParams()
	}
	if err := s.target.CheckSchema(start); err != nil {
		return fl.LocalResult{}, fmt.Errorf("simulated training of %s: %w", participantID, err)
	}

	c := s.client(participantID)
	local := make(fl.Params, len(start))
	sq, n := 0.0, 0
	for _, name := range start.Names() {
		t := start[name].Clone()
		target := s.target[name]
		for j := range t.Data {
			t.Data[j] += s.cfg.LearningRate*(target.Data[j]-t.Data[j]) + s.cfg.Noise*c.rng.NormFloat64()
			d := target.Data[j] - t.Data[j]
			sq += d * d
			n++
		}
		local[name] = t
	}

	rmse := math.Sqrt(sq / float64(max(n, 1)))
	result := fl.LocalResult{
		Params: local,
		Metrics: fl.Metrics{
			"loss":     rmse * rmse,
			"accuracy": 1 / (1 + rmse),
		},
		CompletionTime: c.time,
	}

	if s.cfg.TimeScale > 0 {
		timer := time.NewTimer(time.Duration(float64(c.time) * s.cfg.TimeScale))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fl.LocalResult{}, ctx.Err()
		case <-timer.C:
		}
	}

	return result, nil
}

func (s *Simulated) client(participantID string) *simClient {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[participantID]; ok {
		return c
	}

	h := fnv.New64a()
	h.Write([]byte(participantID))
	rng := rand.New(rand.NewPCG(s.cfg.Seed, h.Sum64()))

	mean := float64(s.cfg.MeanTime)
	d := rng.NormFloat64()*mean/5 + mean
	c := &simClient{
		rng:  rng,
		time: time.Duration(max(d, mean/100, 1)),
	}
	s.clients[participantID] = c

	return c
}

func layerName(i int) string {
	return fmt.Sprintf("layer_%d", i)
}
