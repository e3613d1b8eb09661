/*Package ssm implements the sequential state machine (SSM) engine: the library's one concurrency
primitive.  A driver expresses a multi-step protocol as a Machine or a stack of them; in this
module the refswipe driver's activation is one, while its finger polling and frame capture are
plain chains of transfer-completion callbacks.

A Machine is a linear sequence of numbered states with an implicit success-final state and an
implicit error sink.  Handlers never block; they either advance the machine themselves
(NextState/JumpToState) or arrange for something else to advance it later (a timer, a transfer
completion, or a child Machine started with StartSub).  Completion callbacks are synchronous: when
a handler calls NextState repeatedly within one invocation, the whole chain runs on the calling
goroutine's stack.

Start is the one entry point usable from outside a Machine's own handler chain, so it reports
programmer error as a returned error.  The remaining mutators are only ever called from within a
Machine's own handler, so a misuse there (calling NextState after completion, say) is a bug in the
calling driver, not a recoverable runtime condition, and they panic instead.
*/
package ssm

import "fmt"

// Handler is invoked once per state transition, including the initial invocation at state 0 and
// every invocation following NextState/JumpToState.  It receives the Machine currently "at" that
// state so it can read CurState(), call NextState()/MarkFailed(), or start a child Machine.
type Handler func(m *Machine)

// CompletionFunc is invoked exactly once, when a Machine finishes, whether by exhausting its
// states, via MarkCompleted, or via MarkFailed.  err is nil on success.
type CompletionFunc func(m *Machine, err error)

// Machine is a single sequential state machine.  The zero value is not usable; construct one with
// New.
type Machine struct {
	name     string
	handler  Handler
	nrStates int

	curState  int
	completed bool
	err       error

	onComplete CompletionFunc

	// parent, if non-nil, is the Machine this Machine was started as a child of via StartSub.
	// It exists only so CurState-style debugging can report the chain; completion itself is
	// driven entirely by the closure StartSub installs as this Machine's onComplete.
	parent *Machine
}

// New creates a Machine with nrStates states (numbered 0..nrStates-1) driven by handler.
// nrStates must be >= 1.  A freshly created Machine reports Completed() == true; its state
// becomes well-defined only after Start.
func New(name string, nrStates int, handler Handler) *Machine {
	if nrStates < 1 {
		panic(fmt.Sprintf("ssm %s: nrStates must be >= 1, got %d", name, nrStates))
	}
	if handler == nil {
		panic(fmt.Sprintf("ssm %s: handler must not be nil", name))
	}
	return &Machine{name: name, nrStates: nrStates, handler: handler, completed: true}
}

// Name returns the diagnostic name the Machine was created with.
func (m *Machine) Name() string { return m.name }

// CurState returns the state the Machine is currently at.  Only meaningful while running
// (Completed() == false).
func (m *Machine) CurState() int { return m.curState }

// NrStates returns the number of states this Machine was created with.
func (m *Machine) NrStates() int { return m.nrStates }

// Completed reports whether the Machine has finished (successfully or with an error) or has not
// yet been started.
func (m *Machine) Completed() bool { return m.completed }

// Err returns the error the Machine completed with, or nil on success or while still running.
func (m *Machine) Err() error { return m.err }

// Start begins running the Machine at state 0, invoking handler synchronously.  onComplete fires
// exactly once, when the Machine finishes.  Start returns an error if the Machine is already
// running — a caller holding a stale Machine is the one misuse of this package that is not
// necessarily a bug in the Machine's own handler chain, so it is reported rather than panicked.
func (m *Machine) Start(onComplete CompletionFunc) error {
	if !m.completed {
		return fmt.Errorf("ssm %s: start called while machine is still running at state %d", m.name, m.curState)
	}
	m.completed = false
	m.curState = 0
	m.err = nil
	m.onComplete = onComplete
	m.handler(m)
	return nil
}

// NextState advances the Machine to the following state, completing it successfully if that
// would exceed NrStates.  Panics if called on a completed Machine.
func (m *Machine) NextState() {
	m.mustBeRunning("next_state")
	m.curState++
	if m.curState >= m.nrStates {
		m.complete(nil)
		return
	}
	m.handler(m)
}

// JumpToState moves the Machine directly to state s and invokes the handler there.  Panics if the
// Machine is completed or s is out of range.
func (m *Machine) JumpToState(s int) {
	m.mustBeRunning("jump_to_state")
	if s < 0 || s >= m.nrStates {
		panic(fmt.Sprintf("ssm %s: jump_to_state(%d) out of range [0,%d)", m.name, s, m.nrStates))
	}
	m.curState = s
	m.handler(m)
}

// MarkCompleted completes the Machine successfully regardless of CurState.  Panics if already
// completed.
func (m *Machine) MarkCompleted() {
	m.mustBeRunning("mark_completed")
	m.complete(nil)
}

// MarkFailed completes the Machine with err, which must be non-nil.  Panics if already completed
// or if err is nil.
func (m *Machine) MarkFailed(err error) {
	m.mustBeRunning("mark_failed")
	if err == nil {
		panic(fmt.Sprintf("ssm %s: mark_failed requires a non-nil error", m.name))
	}
	m.complete(err)
}

func (m *Machine) mustBeRunning(op string) {
	if m.completed {
		panic(fmt.Sprintf("ssm %s: %s called on a completed machine", m.name, op))
	}
}

func (m *Machine) complete(err error) {
	m.err = err
	m.completed = true
	cb := m.onComplete
	m.onComplete = nil
	if cb != nil {
		cb(m, err)
	}
}

// StartSub starts child as a subordinate of parent.  On child's successful completion, parent is
// advanced one state (NextState); on child's failure, parent is failed with the same error
// (MarkFailed).  child must not already carry its own completion callback — StartSub installs one.
func StartSub(parent, child *Machine) {
	child.parent = parent
	err := child.Start(func(c *Machine, err error) {
		c.parent = nil
		if err != nil {
			parent.MarkFailed(err)
			return
		}
		parent.NextState()
	})
	if err != nil {
		// child was not in the completed state, i.e. the driver tried to reuse a running
		// Machine as a child: this is a programmer error in the caller's own SSM wiring.
		panic(fmt.Sprintf("ssm %s: start_subsm: %v", parent.name, err))
	}
}
