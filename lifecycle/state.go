package lifecycle

// State is a stage of the application lifecycle. States only move forward.
type State int

const (
	// StateStarting means the port is selected and the server is launching.
	StateStarting State = iota
	// StateReady means the server accepts connections and the page is loading.
	StateReady
	// StateRunning means the window is shown and the user is interacting.
	StateRunning
	// StateStopping means the window closed and the server is being stopped.
	StateStopping
	// StateStopped is terminal; the exit code is final.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateReady:
		return "Ready"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "InvalidState"
	}
}
