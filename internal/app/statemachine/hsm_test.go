package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// newRecordingHSM builds the machine's state tree with hooks that only record
// what ran.
func newRecordingHSM() (*hsm, *[]string) {
	var trace []string
	h := &hsm{current: stateNone}
	parents := map[StateID]StateID{
		StateInit:               stateNone,
		StateHardwareReady:      StateInit,
		StateCommonScan:         StateHardwareReady,
		StateCommonScanUnworked: StateCommonScan,
		StateCommonScanning:     StateCommonScan,
		StatePnoScan:            StateHardwareReady,
		StatePnoScanHardware:    StatePnoScan,
		StateCommonScanAfterPno: StatePnoScanHardware,
		StatePnoScanSoftware:    StatePnoScan,
		StatePnoSwScanFree:      StatePnoScanSoftware,
		StatePnoSwScanning:      StatePnoScanSoftware,
	}
	for s, p := range parents {
		s := s
		h.states[s] = stateDef{
			parent:  p,
			initial: stateNone,
			enter:   func(context.Context) { trace = append(trace, "enter:"+s.String()) },
			exit:    func(context.Context) { trace = append(trace, "exit:"+s.String()) },
		}
	}
	h.states[StateCommonScan].initial = StateCommonScanUnworked
	return h, &trace
}

func TestHSM_TransitionOrder(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		from    StateID
		to      StateID
		reenter bool
		want    []string
	}{
		{
			name: "across_subtrees",
			from: StateCommonScanning,
			to:   StatePnoSwScanFree,
			want: []string{
				"exit:CommonScanning", "exit:CommonScan",
				"enter:PnoScan", "enter:PnoScanSoftware", "enter:PnoSwScanFree",
			},
		},
		{
			name: "initial_child_is_entered",
			from: StateHardwareReady,
			to:   StateCommonScan,
			want: []string{"enter:CommonScan", "enter:CommonScanUnworked"},
		},
		{
			name: "self_transition_reenters",
			from: StatePnoScanHardware,
			to:   StatePnoScanHardware,
			want: []string{"exit:PnoScanHardware", "enter:PnoScanHardware"},
		},
		{
			name: "ancestor_target_is_local",
			from: StateCommonScanAfterPno,
			to:   StateHardwareReady,
			want: []string{"exit:CommonScanAfterPno", "exit:PnoScanHardware", "exit:PnoScan"},
		},
		{
			name:    "ancestor_target_reentered",
			from:    StateCommonScanAfterPno,
			to:      StatePnoScanHardware,
			reenter: true,
			want:    []string{"exit:CommonScanAfterPno", "exit:PnoScanHardware", "enter:PnoScanHardware"},
		},
		{
			name: "from_nothing",
			from: stateNone,
			to:   StateHardwareReady,
			want: []string{"enter:Init", "enter:HardwareReady"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, trace := newRecordingHSM()
			h.current = tt.from

			if tt.reenter {
				h.reenter(tt.to)
			} else {
				h.transitionTo(tt.to)
			}
			h.drain(ctx)

			assert.Equal(t, tt.want, *trace)
		})
	}
}

func TestHSM_UnhandledMessagesBubble(t *testing.T) {
	h, _ := newRecordingHSM()
	h.current = StateCommonScanning

	var seen []StateID
	record := func(s StateID, handled bool) func(context.Context, Message) bool {
		return func(context.Context, Message) bool {
			seen = append(seen, s)
			return handled
		}
	}
	h.states[StateCommonScanning].handle = record(StateCommonScanning, false)
	h.states[StateHardwareReady].handle = record(StateHardwareReady, true)
	h.states[StateInit].handle = record(StateInit, true)

	h.dispatch(context.Background(), Message{Kind: CmdScanFinish})

	assert.Equal(t, []StateID{StateCommonScanning, StateHardwareReady}, seen)
}

func TestHSM_TransitionFromEnterIsDeferred(t *testing.T) {
	h, trace := newRecordingHSM()
	h.current = StateHardwareReady
	h.states[StateCommonScanUnworked].enter = func(context.Context) {
		*trace = append(*trace, "enter:CommonScanUnworked")
		h.transitionTo(StateCommonScanning)
		*trace = append(*trace, "after_request")
	}

	var transitions [][2]StateID
	h.onTransition = func(from, to StateID) { transitions = append(transitions, [2]StateID{from, to}) }

	h.transitionTo(StateCommonScan)
	h.drain(context.Background())

	assert.Equal(t, []string{
		"enter:CommonScan", "enter:CommonScanUnworked", "after_request",
		"exit:CommonScanUnworked", "enter:CommonScanning",
	}, *trace)
	assert.Equal(t, [][2]StateID{
		{StateHardwareReady, StateCommonScanUnworked},
		{StateCommonScanUnworked, StateCommonScanning},
	}, transitions)
	assert.True(t, h.in(StateHardwareReady))
	assert.False(t, h.in(StatePnoScan))
}
