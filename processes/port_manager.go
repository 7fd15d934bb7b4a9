package processes

import (
	"fmt"
	"net"
	"strconv"
	"sync"
)

const (
	// DefaultHost is the loopback address the embedded server binds to.
	DefaultHost = "127.0.0.1"

	maxEphemeralAttempts = 32
)

// PortManager hands out TCP ports for the embedded server.
// A zero range means the OS picks the port.
type PortManager struct {
	mu            sync.Mutex
	host          string
	minPort       int
	maxPort       int
	allocated     map[int]bool // Ports handed out and not yet released
	nextCandidate int          // Next port to try allocating
}

// NewPortManager creates a PortManager that allocates from [minPort, maxPort] on host.
// An empty host means DefaultHost.
func NewPortManager(host string, minPort, maxPort int) (*PortManager, error) {
	if minPort <= 0 || maxPort <= 0 || minPort > maxPort || maxPort > 65535 {
		return nil, fmt.Errorf("invalid port range: min %d, max %d", minPort, maxPort)
	}
	if host == "" {
		host = DefaultHost
	}
	return &PortManager{
		host:          host,
		minPort:       minPort,
		maxPort:       maxPort,
		allocated:     make(map[int]bool),
		nextCandidate: minPort,
	}, nil
}

// NewEphemeralPortManager creates a PortManager that lets the OS choose free ports on host.
func NewEphemeralPortManager(host string) *PortManager {
	if host == "" {
		host = DefaultHost
	}
	return &PortManager{
		host:      host,
		allocated: make(map[int]bool),
	}
}

// Host returns the address ports are probed on.
func (pm *PortManager) Host() string {
	return pm.host
}

// AllocatePort finds and allocates a TCP port that is currently unbound.
// A port is never returned twice until it has been released.
func (pm *PortManager) AllocatePort() (int, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.minPort == 0 {
		return pm.allocateEphemeral()
	}

	firstCandidate := pm.nextCandidate

	for {
		portToTry := pm.nextCandidate

		pm.nextCandidate++
		if pm.nextCandidate > pm.maxPort {
			pm.nextCandidate = pm.minPort
		}

		if !pm.allocated[portToTry] && pm.probe(portToTry) {
			pm.allocated[portToTry] = true
			return portToTry, nil
		}

		// Scanned all and returned to start
		if pm.nextCandidate == firstCandidate {
			return 0, NewError(ErrorTypePortUnavailable,
				fmt.Sprintf("no available ports in range [%d-%d] on %s", pm.minPort, pm.maxPort, pm.host), nil)
		}
	}
}

func (pm *PortManager) allocateEphemeral() (int, error) {
	var lastErr error
	for attempt := 0; attempt < maxEphemeralAttempts; attempt++ {
		l, err := net.Listen("tcp", net.JoinHostPort(pm.host, "0"))
		if err != nil {
			lastErr = err
			continue
		}
		port := l.Addr().(*net.TCPAddr).Port
		l.Close()
		if pm.allocated[port] {
			continue
		}
		pm.allocated[port] = true
		return port, nil
	}
	return 0, NewError(ErrorTypePortUnavailable,
		fmt.Sprintf("no available port on %s after %d attempts", pm.host, maxEphemeralAttempts), lastErr)
}

// probe reports whether port can be bound right now.
func (pm *PortManager) probe(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(pm.host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

// ReleasePort marks a previously allocated port as available again.
func (pm *PortManager) ReleasePort(port int) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	delete(pm.allocated, port)
}
