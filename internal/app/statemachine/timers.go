package statemachine

import (
	"context"
	"time"

	"github.com/ahrav/scand/pkg/common/timeutil"
)

// timerKind names one purpose a timer can serve. At most one timer of each
// kind is armed at a time.
type timerKind string

const (
	timerWaitResult  timerKind = "wait_result"
	timerSoftwarePno timerKind = "software_pno"
)

type armedTimer struct {
	timer timeutil.Timer
	gen   uint64
}

// timerSet schedules callbacks that are delivered through the loop. Only the
// loop goroutine may call its methods; the scheduler goroutine only posts.
type timerSet struct {
	sched timeutil.Scheduler
	loop  *Loop
	gen   uint64
	armed map[timerKind]armedTimer
}

func newTimerSet(sched timeutil.Scheduler, loop *Loop) *timerSet {
	return &timerSet{sched: sched, loop: loop, armed: make(map[timerKind]armedTimer)}
}

// arm schedules fire after d, replacing any timer of the same kind. A firing
// that lost a race with a later arm or disarm is dropped.
func (ts *timerSet) arm(kind timerKind, d time.Duration, fire func(context.Context)) {
	ts.disarm(kind)

	ts.gen++
	gen := ts.gen
	t := ts.sched.AfterFunc(d, func() {
		ts.loop.Post(func(ctx context.Context) {
			cur, ok := ts.armed[kind]
			if !ok || cur.gen != gen {
				return
			}
			delete(ts.armed, kind)
			fire(ctx)
		})
	})
	ts.armed[kind] = armedTimer{timer: t, gen: gen}
}

func (ts *timerSet) disarm(kind timerKind) {
	if cur, ok := ts.armed[kind]; ok {
		cur.timer.Stop()
		delete(ts.armed, kind)
	}
}

func (ts *timerSet) disarmAll() {
	for kind := range ts.armed {
		ts.disarm(kind)
	}
}

func (ts *timerSet) isArmed(kind timerKind) bool {
	_, ok := ts.armed[kind]
	return ok
}

func (ts *timerSet) count() int { return len(ts.armed) }
