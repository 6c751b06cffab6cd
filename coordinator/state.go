package coordinator

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid phase transition")

type Phase uint8

const (
	Idle Phase = iota
	Dispatching
	Collecting
	Aggregating
	Done
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case Dispatching:
		return "Dispatching"
	case Collecting:
		return "Collecting"
	case Aggregating:
		return "Aggregating"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := Idle; candidate <= Done; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate

			return nil
		}
	}

	return fmt.Errorf("unknown phase %q", text)
}

var transitions = map[Phase][]Phase{
	Idle:        {Dispatching},
	Dispatching: {Collecting},
	Collecting:  {Aggregating, Dispatching, Done},
	Aggregating: {Dispatching, Done},
}

func (p Phase) canTransition(to Phase) bool {
	for _, next := range transitions[p] {
		if next == to {
			return true
		}
	}

	return false
}

// transition moves the run to the next phase. The caller holds the write lock.
func (svc *service) transition(to Phase) error {
	if !svc.phase.canTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, svc.phase, to)
	}
	svc.phase = to

	return nil
}
