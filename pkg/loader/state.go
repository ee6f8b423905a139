package loader

// State is the position of a Loader in its fetch cycle.
type State int

const (
	// StateIdle accepts a new page request.
	StateIdle State = iota

	// StateLoading has exactly one page request outstanding.
	StateLoading

	// StateExhausted is terminal: the listing has no further pages.
	StateExhausted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

type event int

const (
	eventStart event = iota
	eventFailed
	eventFullPage
	eventShortPage
	eventEmptyPage
)

// transition is the only place the loader state changes. Events that do not
// apply to the current state leave it unchanged.
func transition(s State, e event) State {
	switch s {
	case StateIdle:
		if e == eventStart {
			return StateLoading
		}
	case StateLoading:
		switch e {
		case eventFailed, eventFullPage:
			return StateIdle
		case eventShortPage, eventEmptyPage:
			return StateExhausted
		}
	}
	return s
}

// advances reports whether an event means a page was appended.
func (e event) advances() bool {
	return e == eventFullPage || e == eventShortPage
}

// Outcome summarises one call to Load.
type Outcome string

const (
	// OutcomeAppended means a full page was appended and more may follow.
	OutcomeAppended Outcome = "appended"

	// OutcomeExhausted means the listing ended, after an empty or short page.
	OutcomeExhausted Outcome = "exhausted"

	// OutcomeFailed means the request failed; the loader stays eligible.
	OutcomeFailed Outcome = "failed"

	// OutcomeSkipped means no request was made.
	OutcomeSkipped Outcome = "skipped"
)
