package install

import (
	"fmt"
)

// State is the phase an installation run is in. Succeeded and Failed
// are terminal.
type State int

const (
	StateIdle State = iota
	StateProvisioning
	StateFormatting
	StateMounting
	StateDeploying
	StateBootstrapping
	StateUnmounting
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProvisioning:
		return "provisioning"
	case StateFormatting:
		return "formatting"
	case StateMounting:
		return "mounting"
	case StateDeploying:
		return "deploying"
	case StateBootstrapping:
		return "bootstrapping"
	case StateUnmounting:
		return "unmounting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		panic(fmt.Sprintf("unknown installation state with enum value %d", s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}
