package compute

// EventKind tags a lifecycle event produced during a tick.
type EventKind uint8

const (
	// EventDied marks entity Index dead with a Cause.
	EventDied EventKind = iota
	// EventAte marks entity Index eating entity Target.
	EventAte
	// EventKilled marks entity Index killing entity Target by attack.
	EventKilled
	// EventConsumed marks entity Index claiming the food item ResourceID.
	EventConsumed
	// EventBirth marks entity Index requesting an offspring. Target is
	// the mate's batch index, or -1 for an asexual birth.
	EventBirth
)

// DeathCause explains an EventDied.
type DeathCause uint8

const (
	CauseStarved DeathCause = iota
	CauseOldAge
	CausePredation
	CauseEaten
)

func (c DeathCause) String() string {
	switch c {
	case CauseStarved:
		return "starved"
	case CauseOldAge:
		return "old age"
	case CausePredation:
		return "predation"
	case CauseEaten:
		return "eaten"
	}
	return "unknown"
}

// Event is one lifecycle outcome of a tick. Backends only report events;
// the caller owns identity and lifecycle decisions.
type Event struct {
	Kind       EventKind
	Index      int // subject batch index
	Target     int // prey batch index for EventAte and EventKilled
	ResourceID uint64
	Cause      DeathCause
}
