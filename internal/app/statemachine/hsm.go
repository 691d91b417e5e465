package statemachine

import (
	"context"
	"slices"
)

// StateID identifies a node of the state tree.
type StateID int

const (
	stateNone StateID = iota - 1
	StateInit
	StateHardwareReady
	StateCommonScan
	StateCommonScanUnworked
	StateCommonScanning
	StatePnoScan
	StatePnoScanHardware
	StateCommonScanAfterPno
	StatePnoScanSoftware
	StatePnoSwScanFree
	StatePnoSwScanning

	numStates
)

var stateNames = [numStates]string{
	StateInit:               "Init",
	StateHardwareReady:      "HardwareReady",
	StateCommonScan:         "CommonScan",
	StateCommonScanUnworked: "CommonScanUnworked",
	StateCommonScanning:     "CommonScanning",
	StatePnoScan:            "PnoScan",
	StatePnoScanHardware:    "PnoScanHardware",
	StateCommonScanAfterPno: "CommonScanAfterPno",
	StatePnoScanSoftware:    "PnoScanSoftware",
	StatePnoSwScanFree:      "PnoSwScanFree",
	StatePnoSwScanning:      "PnoSwScanning",
}

// String returns the string representation of the StateID.
func (s StateID) String() string {
	if s < 0 || s >= numStates {
		return "None"
	}
	return stateNames[s]
}

// stateDef is one row of the state table. A handler returns false to let the
// parent see the message. initial names the child entered when the state
// itself is the transition target.
type stateDef struct {
	parent  StateID
	initial StateID
	enter   func(ctx context.Context)
	exit    func(ctx context.Context)
	handle  func(ctx context.Context, msg Message) bool
}

// hsm runs messages and transitions over a state table. Transitions requested
// from a handler or an enter/exit hook are queued and run once the hook
// returns.
type hsm struct {
	states  [numStates]stateDef
	current StateID

	pending        StateID
	hasPending     bool
	pendingReenter bool

	onTransition func(from, to StateID)
	onUnhandled  func(ctx context.Context, state StateID, msg Message)
}

// transitionTo requests a move to target. Targeting the current state exits
// and re-enters it; targeting an ancestor only exits down to it.
func (h *hsm) transitionTo(target StateID) {
	h.pending = target
	h.hasPending = true
	h.pendingReenter = false
}

// reenter is transitionTo, except that an active ancestor target is exited
// and entered again.
func (h *hsm) reenter(target StateID) {
	h.transitionTo(target)
	h.pendingReenter = true
}

// dispatch offers msg to the current state and each ancestor in turn, then
// performs any transition the handlers requested.
func (h *hsm) dispatch(ctx context.Context, msg Message) {
	handled := false
	for s := h.current; s != stateNone; s = h.states[s].parent {
		if fn := h.states[s].handle; fn != nil && fn(ctx, msg) {
			handled = true
			break
		}
	}
	if !handled && h.onUnhandled != nil {
		h.onUnhandled(ctx, h.current, msg)
	}
	h.drain(ctx)
}

func (h *hsm) drain(ctx context.Context) {
	for h.hasPending {
		target, reenter := h.pending, h.pendingReenter
		h.hasPending, h.pendingReenter = false, false
		h.perform(ctx, target, reenter)
	}
}

// ancestry returns s and all its ancestors, leaf first.
func (h *hsm) ancestry(s StateID) []StateID {
	var path []StateID
	for ; s != stateNone; s = h.states[s].parent {
		path = append(path, s)
	}
	return path
}

// perform exits up to the least common ancestor of the current state and
// target, then enters down to target and its initial children.
func (h *hsm) perform(ctx context.Context, target StateID, reenter bool) {
	from := h.current
	lca := h.lca(from, target, reenter)

	for h.current != lca && h.current != stateNone {
		s := h.current
		if fn := h.states[s].exit; fn != nil {
			fn(ctx)
		}
		h.current = h.states[s].parent
	}

	var down []StateID
	for s := target; s != lca; s = h.states[s].parent {
		down = append(down, s)
	}
	for i := len(down) - 1; i >= 0; i-- {
		h.enter(ctx, down[i])
	}
	for {
		next := h.states[h.current].initial
		if next == stateNone || h.hasPending {
			break
		}
		h.enter(ctx, next)
	}

	if h.onTransition != nil {
		h.onTransition(from, h.current)
	}
}

func (h *hsm) enter(ctx context.Context, s StateID) {
	h.current = s
	if fn := h.states[s].enter; fn != nil {
		fn(ctx)
	}
}

func (h *hsm) lca(a, b StateID, reenter bool) StateID {
	if a == stateNone {
		return stateNone
	}
	up := h.ancestry(a)
	for s := b; s != stateNone; s = h.states[s].parent {
		if !slices.Contains(up, s) {
			continue
		}
		if s == b && (s == a || reenter) {
			return h.states[s].parent
		}
		return s
	}
	return stateNone
}

// in reports whether the current state is s or a descendant of s.
func (h *hsm) in(s StateID) bool {
	for c := h.current; c != stateNone; c = h.states[c].parent {
		if c == s {
			return true
		}
	}
	return false
}
