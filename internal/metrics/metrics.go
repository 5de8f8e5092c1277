package metrics

import "sync"

// Counter names used across the relay. Kept as plain strings so the
// registry stays a simple map; the Prometheus handler exposes them as an
// `event` label.
const (
	SessionsCreated        = "sessions_created"
	SessionCreateConflicts = "session_create_conflicts"
	TooManySessions        = "too_many_sessions"
	SessionsJoined         = "sessions_joined"
	JoinErrors             = "join_errors"
	SessionsConnected      = "sessions_connected"
	SessionsDeclined       = "sessions_declined"
	SessionsCompleted      = "sessions_completed"
	SessionsExpired        = "sessions_expired"
	UnauthorizedActions    = "unauthorized_actions"
	SignalsRelayed         = "signals_relayed"
	SendsDropped           = "sends_dropped"
	PeerDisconnects        = "peer_disconnects"
	MessagesRateLimited    = "messages_rate_limited"
)

// Metrics is a minimal, concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
