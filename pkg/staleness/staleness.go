// Package staleness turns the gap between the round a participant was
// dispatched in and the round its result is aggregated in into a weight.
package staleness

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrUnknownMode     = errors.New("unknown staleness mode")
	ErrInvalidConstant = errors.New("invalid staleness constant")
)

type Mode string

const (
	ModeThreshold  Mode = "threshold"
	ModePowerDecay Mode = "power_decay"
)

const (
	DefaultThresholdA   = 10.0
	DefaultThresholdB   = 4.0
	DefaultPowerA       = 0.5
	DefaultPowerEpsilon = 1e-6
)

type Model interface {
	// Weight returns a positive weight for a result dispatched in clientRound
	// and aggregated in aggRound.
	Weight(clientRound, aggRound int) float64
}

// Config selects the model. Unset constants take the mode defaults, so an
// explicit zero stays zero.
type Config struct {
	Mode    Mode     `toml:"mode"    yaml:"mode"    env:"MODE"    envDefault:"threshold"`
	A       *float64 `toml:"a"       yaml:"a"       env:"A"`
	B       *float64 `toml:"b"       yaml:"b"       env:"B"`
	Epsilon *float64 `toml:"epsilon" yaml:"epsilon" env:"EPSILON"`
}

// New builds the model selected by cfg.Mode.
func New(cfg Config) (Model, error) {
	switch cfg.Mode {
	case ModeThreshold:
		t := Threshold{
			A: valueOr(cfg.A, DefaultThresholdA),
			B: valueOr(cfg.B, DefaultThresholdB),
		}
		if t.A < 0 || t.B < 0 {
			return nil, fmt.Errorf("%w: threshold a=%g b=%g must not be negative", ErrInvalidConstant, t.A, t.B)
		}

		return t, nil
	case ModePowerDecay:
		p := PowerDecay{
			A:       valueOr(cfg.A, DefaultPowerA),
			Epsilon: valueOr(cfg.Epsilon, DefaultPowerEpsilon),
		}
		if p.A < 0 || p.Epsilon <= 0 {
			return nil, fmt.Errorf("%w: power decay a=%g must not be negative and epsilon=%g must be positive", ErrInvalidConstant, p.A, p.Epsilon)
		}

		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}

	return *v
}

// Threshold keeps full weight up to B rounds of staleness and decays
// hyperbolically after that.
type Threshold struct {
	A float64
	B float64
}

func (t Threshold) Weight(clientRound, aggRound int) float64 {
	g := gap(clientRound, aggRound)
	if g <= t.B {
		return 1
	}

	return 1 / (t.A*(g-t.B) + 1)
}

// PowerDecay weighs a result by (gap + Epsilon)^-A.
type PowerDecay struct {
	A       float64
	Epsilon float64
}

func (p PowerDecay) Weight(clientRound, aggRound int) float64 {
	return 1 / math.Pow(gap(clientRound, aggRound)+p.Epsilon, p.A)
}

func gap(clientRound, aggRound int) float64 {
	return float64(max(aggRound-clientRound, 0))
}
