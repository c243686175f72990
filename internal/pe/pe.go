// Package pe is the runtime substrate the rest of the core dispatches onto:
// one goroutine per processing element running a serial message-handler
// loop, plus an event-count latch primitive for the "all received"
// predicates every component waits on. It generalizes the post/deliver/
// receive mailbox cycle of utils.MailBox (see the teacher's
// parallel_utils.go) from a fixed message type to an arbitrary one, and
// adds the phase-quiescence detection a Charm++ group gets for free from
// its runtime.
//
// Within a handler no blocking calls are permitted (spec.md S5): Send only
// enqueues onto the destination's inbox and returns. A handler suspends by
// returning; it is re-entered on the next message. Completion of an
// N-event wait is the caller's responsibility (a counter or a Latch).
package pe

import (
	"fmt"
	"sync"
)

// Message is the minimum shape every inter-PE message must satisfy: the
// sender's PE index, so handlers never need a side-channel to learn who
// sent what.
type Message interface {
	From() int
}

// Envelope is an embeddable base that satisfies Message.
type Envelope struct {
	FromPE int
}

func (e Envelope) From() int { return e.FromPE }

// Runtime owns one inbox channel per PE and routes Send/Broadcast onto
// them. A Runtime can be reused across phases (cmd.RunCore runs C3 and C5
// over one Runtime); each phase is one RunPhase call, which returns once
// every PE has signalled completion.
type Runtime struct {
	NumPE   int
	inboxes []chan any
}

// NewRuntime allocates a Runtime with numPE buffered inboxes. The buffer is
// generous because, unlike a real interconnect, an unconsumed Go channel
// would otherwise block a sender that must never block (S5: "all
// cross-PE operations are non-blocking sends").
func NewRuntime(numPE int) *Runtime {
	rt := &Runtime{NumPE: numPE, inboxes: make([]chan any, numPE)}
	for p := range rt.inboxes {
		rt.inboxes[p] = make(chan any, 4096)
	}
	return rt
}

// Send enqueues msg onto PE to's inbox. Never blocks the caller in
// practice given the inbox's capacity; a full inbox indicates a protocol
// bug (unbounded fan-in), not a transient condition to wait out.
func (rt *Runtime) Send(to int, msg any) { rt.inboxes[to] <- msg }

// Broadcast sends msg to every PE, including the sender — mirroring the
// "broadcast is simpler and just as efficient as targeting only higher
// PEs" design choice documented in Partitioner::offset and ::query.
func (rt *Runtime) Broadcast(msg any) {
	for p := range rt.inboxes {
		rt.Send(p, msg)
	}
}

// phaseDone is broadcast once every PE has called its Done callback during
// a RunPhase; handlers must treat it as a sentinel to stop looping.
type phaseDone struct{}

// RunPhase spawns one goroutine per PE running fn(pe, inbox, done). fn must
// loop over inbox, dispatching each message, and call done() exactly once
// it reaches local completion for this phase — but it must keep draining
// inbox afterward (to answer stragglers' requests) until it receives a
// phaseDone sentinel, at which point it returns. RunPhase blocks until
// every PE's goroutine has returned.
//
// This mirrors the Charm++ group semantics the spec's components are
// modeled on: a group branch is never "finished" in the sense of exiting —
// completion is a signal to the host, and the branch keeps serving
// messages. Here the "host" is RunPhase itself, and once it has observed
// every branch's completion signal it tells every branch to stop looping.
func (rt *Runtime) RunPhase(fn func(mype int, inbox <-chan any, done func())) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	remaining := rt.NumPE
	reported := make([]bool, rt.NumPE)

	markDone := func(p int) {
		mu.Lock()
		defer mu.Unlock()
		if reported[p] {
			return
		}
		reported[p] = true
		remaining--
		if remaining == 0 {
			rt.Broadcast(phaseDone{})
		}
	}

	wg.Add(rt.NumPE)
	for p := 0; p < rt.NumPE; p++ {
		p := p
		go func() {
			defer wg.Done()
			fn(p, rt.inboxes[p], func() { markDone(p) })
		}()
	}
	wg.Wait()
}

// IsPhaseDone reports whether msg is the phase-termination sentinel; a
// handler's dispatch loop checks this first and returns if so.
func IsPhaseDone(msg any) bool {
	_, ok := msg.(phaseDone)
	return ok
}

// Latch is an event-count: Arrive increments a counter, Done reports
// whether it has reached the expected total (spec.md S9, "event-count-driven
// control flow"). The C3-C7 handlers in this module keep their own integer
// counters for their "all received" predicates and do not use Latch.
type Latch struct {
	count, expected int
}

func NewLatch(expected int) *Latch { return &Latch{expected: expected} }

// Arrive registers one event and reports whether the latch just completed
// (i.e. this call made it reach Expected — callers use this to invoke the
// successor exactly once).
func (l *Latch) Arrive() bool {
	l.count++
	return l.count == l.expected
}

func (l *Latch) Done() bool  { return l.count >= l.expected }
func (l *Latch) Count() int  { return l.count }
func (l *Latch) Reset(n int) { l.count, l.expected = 0, n }

// Fatal wraps an InvariantViolation-class error with the reporting group's
// PE index, the uniform shape cmd prints to stderr (spec.md S7: "category,
// offending datum, PE"). It does not itself tear down the runtime — a
// handler that calls Fatal still returns normally, and the caller of
// RunPhase is responsible for surfacing the wrapped error and declining to
// start the next phase.
func Fatal(groupPE int, err error) error {
	return fmt.Errorf("PE %d: %w", groupPE, err)
}
