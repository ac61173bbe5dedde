package domain

// SearchPhase is the phase of the search request state machine.
type SearchPhase int

const (
	PhaseIdle SearchPhase = iota
	PhaseSearching
)

func (p SearchPhase) String() string {
	switch p {
	case PhaseSearching:
		return "searching"
	default:
		return "idle"
	}
}

// SearchRequestState tracks the in-flight search. Generation increments on
// every issued search and identifies the only result that may be applied.
type SearchRequestState struct {
	Phase      SearchPhase `json:"phase"`
	Generation uint64      `json:"generation"`
}

// Control names the input that produced a commit event.
type Control string

const (
	ControlQuery    Control = "query"
	ControlType     Control = "type"
	ControlLocation Control = "location"
	ControlPrice    Control = "price"
	ControlButton   Control = "button"
	ControlClear    Control = "clear"
	ControlInit     Control = "init"
)
