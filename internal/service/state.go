package service

// State is the service lifecycle state machine.
//
// Transitions:
//
//	UNINITIALIZED -> LOADING  on the first load request
//	LOADING       -> READY    on successful load
//	LOADING       -> ERROR    on load failure
//	READY         -> LOADING  on an explicit model switch
//	READY         -> UNINITIALIZED on unload
//
// A later successful load clears ERROR.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
