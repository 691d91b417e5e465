package wifi

// StaState is the station (client mode) connection state.
type StaState int

const (
	StaStateUnknown StaState = iota
	StaStateConnecting
	StaStateAssociating
	StaStateAssociated
	StaStateObtainingIP
	StaStateConnected
	StaStateDisconnecting
	StaStateDisconnected
)

var staStateNames = map[StaState]string{
	StaStateUnknown:       "unknown",
	StaStateConnecting:    "connecting",
	StaStateAssociating:   "associating",
	StaStateAssociated:    "associated",
	StaStateObtainingIP:   "obtaining_ip",
	StaStateConnected:     "connected",
	StaStateDisconnecting: "disconnecting",
	StaStateDisconnected:  "disconnected",
}

// String returns the string representation of the StaState.
func (s StaState) String() string {
	if n, ok := staStateNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseStaState converts a string to a StaState.
func ParseStaState(s string) StaState {
	for st, n := range staStateNames {
		if n == s {
			return st
		}
	}
	return StaStateUnknown
}

// IsConnected reports whether the station has a usable connection.
func (s StaState) IsConnected() bool { return s == StaStateConnected }

// IsDisconnected reports whether the station has no connection and is not
// trying to establish one.
func (s StaState) IsDisconnected() bool {
	return s == StaStateDisconnected || s == StaStateUnknown
}

// Scene maps the connection state to the policy scene it belongs to.
func (s StaState) Scene() ScanScene {
	switch s {
	case StaStateConnecting, StaStateDisconnecting:
		return SceneConnecting
	case StaStateAssociating:
		return SceneAssociating
	case StaStateAssociated:
		return SceneAssociated
	case StaStateObtainingIP:
		return SceneObtainingIP
	case StaStateConnected:
		return SceneConnected
	default:
		return SceneDisconnected
	}
}
