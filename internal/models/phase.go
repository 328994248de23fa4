package models

// Phase is a momentum classification of the smoothed Z-Score and its trend.
type Phase string

const (
	PhaseDataGathering Phase = "DATA_GATHERING"
	PhaseAccumulation  Phase = "ACCUMULATION"
	PhaseRapidAscent   Phase = "RAPID_ASCENT"
	PhasePlateau       Phase = "PLATEAU"
	PhaseDecline       Phase = "DECLINE"
	PhaseTransition    Phase = "TRANSITION"
)

// AllPhases lists every phase in classification priority order.
var AllPhases = []Phase{
	PhaseDataGathering,
	PhaseAccumulation,
	PhaseRapidAscent,
	PhasePlateau,
	PhaseDecline,
	PhaseTransition,
}

// ParsePhase returns the phase named s and whether it is known.
func ParsePhase(s string) (Phase, bool) {
	for _, p := range AllPhases {
		if string(p) == s {
			return p, true
		}
	}
	return "", false
}

func (p Phase) String() string { return string(p) }

// Priced reports whether the phase can carry a non-zero sell rate.
func (p Phase) Priced() bool {
	switch p {
	case PhaseRapidAscent, PhasePlateau, PhaseDecline, PhaseTransition:
		return true
	default:
		return false
	}
}
