package shutdown

// Phase is a step of the shutdown sequence.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseSignaled
	PhaseDraining
	PhaseCleaningUp
	PhaseComplete
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSignaled:
		return "signaled"
	case PhaseDraining:
		return "draining"
	case PhaseCleaningUp:
		return "cleaning-up"
	case PhaseComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Phases lists every phase in sequence order.
func Phases() []Phase {
	return []Phase{PhaseIdle, PhaseSignaled, PhaseDraining, PhaseCleaningUp, PhaseComplete}
}
