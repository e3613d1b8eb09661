/*Package eventloop implements the single-threaded cooperative event loop every Library runs on.

All SSM handlers, driver callbacks, and timer expirations run serialized on the loop's own
goroutine, even though the work that feeds it — USB transfer completions, background I/O — happens
on other goroutines.  Background work hands results back in with Post/PostCompletion, which queue a
closure onto a mutex-guarded list the loop goroutine drains; nothing outside the loop goroutine ever touches
SSM or device state directly.

The timer service is a simple slice-backed priority queue ordered by deadline.  The module's timers
number in the single digits per open device, so a heap buys nothing a sorted insert doesn't already
give at this scale.
*/
package eventloop

import (
	"container/list"
	"sync"
	"time"
)

// TimerID identifies a pending timer so it can be cancelled before it fires.
type TimerID uint64

// TimerFunc is invoked on the loop goroutine when a timer reaches its deadline.
type TimerFunc func()

type timer struct {
	id       TimerID
	deadline time.Time
	fn       TimerFunc
}

// Loop is a single-threaded cooperative event loop with an attached timer service.  The zero value
// is not usable; construct one with New.
type Loop struct {
	mu      sync.Mutex
	timers  []*timer
	nextID  TimerID
	posted  *list.List
	wake    chan struct{}
	wakeSet bool
}

// New creates a ready-to-run Loop.
func New() *Loop {
	return &Loop{
		posted: list.New(),
		wake:   make(chan struct{}, 1),
	}
}

// TimerAdd schedules fn to run after d elapses, returning an id usable with TimerCancel.
func (l *Loop) TimerAdd(d time.Duration, fn TimerFunc) TimerID {
	return l.timerAddAt(time.Now().Add(d), fn)
}

func (l *Loop) timerAddAt(deadline time.Time, fn TimerFunc) TimerID {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	id := l.nextID
	t := &timer{id: id, deadline: deadline, fn: fn}
	// insertion sort: timers is kept ordered ascending by deadline.
	i := 0
	for i < len(l.timers) && !l.timers[i].deadline.After(deadline) {
		i++
	}
	l.timers = append(l.timers, nil)
	copy(l.timers[i+1:], l.timers[i:])
	l.timers[i] = t
	l.signal()
	return id
}

// TimerCancel prevents a pending timer from firing. It is a no-op if the timer already fired or
// was never scheduled, so callers need not track whether a timer already ran.
func (l *Loop) TimerCancel(id TimerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, t := range l.timers {
		if t.id == id {
			l.timers = append(l.timers[:i], l.timers[i+1:]...)
			return
		}
	}
}

// Post queues fn to run on the loop goroutine at the next opportunity, in the order posted.
// Background goroutines (USB transfer completions, driver I/O) use Post/PostCompletion as their
// only means of touching state owned by the loop.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted.PushBack(fn)
	l.mu.Unlock()
	l.signal()
}

// PostCompletion is Post under a name for the common case of delivering a result to a completion
// callback; it takes the same closure and behaves identically.
func (l *Loop) PostCompletion(fn func()) {
	l.Post(fn)
}

func (l *Loop) signal() {
	if l.wakeSet {
		return
	}
	l.wakeSet = true
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// nextDeadline returns the loop's next timer deadline and whether one exists.
func (l *Loop) nextDeadline() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return time.Time{}, false
	}
	return l.timers[0].deadline, true
}

// popDueTimers removes and returns every timer whose deadline is <= now.
func (l *Loop) popDueTimers(now time.Time) []*timer {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := 0
	for i < len(l.timers) && !l.timers[i].deadline.After(now) {
		i++
	}
	due := l.timers[:i]
	l.timers = l.timers[i:]
	return due
}

// drainPosted removes and returns every closure posted so far, in order.
func (l *Loop) drainPosted() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wakeSet = false
	if l.posted.Len() == 0 {
		return nil
	}
	out := make([]func(), 0, l.posted.Len())
	for e := l.posted.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(func()))
	}
	l.posted.Init()
	return out
}

// RunOnce processes everything currently ready — due timers and posted closures — then blocks
// until either the next timer deadline or a new posted closure arrives, whichever is sooner, up to
// deadline. Passing a zero deadline blocks with no timeout. RunOnce returns after one such wait, so
// a caller drives the loop with a `for { RunOnce(...) }` of its own; this mirrors how the module's
// callers never relinquish control to a framework-owned loop.
func (l *Loop) RunOnce(deadline time.Time) {
	l.runDue()
	l.wait(deadline, nil)
}

// wait blocks until the next timer deadline, a posted closure arrives, deadline passes (if
// non-zero), or stop is closed (if non-nil).
func (l *Loop) wait(deadline time.Time, stop <-chan struct{}) {
	var timeout <-chan time.Time
	if next, ok := l.nextDeadline(); ok {
		d := time.Until(next)
		if d <= 0 {
			return
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}

	var wallTimeout <-chan time.Time
	if !deadline.IsZero() {
		d := time.Until(deadline)
		if d <= 0 {
			return
		}
		wt := time.NewTimer(d)
		defer wt.Stop()
		wallTimeout = wt.C
	}

	select {
	case <-l.wake:
	case <-timeout:
	case <-wallTimeout:
	case <-stop:
	}
}

func (l *Loop) runDue() {
	for _, fn := range l.drainPosted() {
		fn()
	}
	for _, t := range l.popDueTimers(time.Now()) {
		t.fn()
	}
}

// Run repeatedly calls RunOnce until stop is closed. It is the convenience driver for a Library
// that wants to own its own goroutine for the life of the process, rather than interleaving
// RunOnce calls with other work of its own.
func (l *Loop) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		l.runDue()
		select {
		case <-stop:
			return
		default:
		}
		l.wait(time.Time{}, stop)
	}
}
