// Package pending implements the pending-operation registry: the component
// that tracks caller-issued control operations awaiting asynchronous
// confirmation from a backend channel.
//
// Every registered completion callback fires exactly once over its token's
// lifetime, whether the operation is resolved by a backend reply, expired
// after a bounded wait, superseded by an identical re-issued request, or
// drained because its target left the room. Callbacks are never invoked
// inline; they are handed to a caller-supplied delivery function so the
// owning coordinator can route them onto its single dispatch goroutine.
package pending

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout is the bounded wait applied to operations whose backend
// never replies. Thirty seconds matches the reply window the signaling
// protocol grants invitation and application recipients.
const DefaultTimeout = 30 * time.Second

// sweepInterval is how often the background sweeper checks for expired
// entries.
const sweepInterval = time.Second

// Kind identifies the class of control operation awaiting confirmation.
type Kind uint8

const (
	// KindLogin awaits the signaling login reply.
	KindLogin Kind = iota
	// KindLogout awaits the signaling logout reply.
	KindLogout
	// KindCreateRoom awaits the room creation reply.
	KindCreateRoom
	// KindDestroyRoom awaits the room destruction reply.
	KindDestroyRoom
	// KindEnterRoom awaits the two-phase room entry completing.
	KindEnterRoom
	// KindExitRoom awaits the room exit reply.
	KindExitRoom
	// KindMuteMicrophone awaits a per-user microphone mute confirmation.
	KindMuteMicrophone
	// KindMuteCamera awaits a per-user camera mute confirmation.
	KindMuteCamera
	// KindKick awaits a kick confirmation.
	KindKick
	// KindRollCallReply awaits the roll-call reply delivery confirmation.
	KindRollCallReply
	// KindInvitation awaits the invitee's agree/decline answer.
	KindInvitation
	// KindInvitationCancel awaits the cancellation delivery confirmation.
	KindInvitationCancel
	// KindInvitationReply awaits the invitation answer delivery confirmation.
	KindInvitationReply
	// KindApplication awaits the master's agree/decline answer.
	KindApplication
	// KindApplicationCancel awaits the cancellation delivery confirmation.
	KindApplicationCancel
	// KindApplicationReply awaits the application answer delivery confirmation.
	KindApplicationReply
	// KindSendOff awaits a send-off-speaker confirmation.
	KindSendOff
	// KindSendOffAll awaits a send-off-all-speakers confirmation.
	KindSendOffAll
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	names := [...]string{
		"login", "logout", "create-room", "destroy-room", "enter-room",
		"exit-room", "mute-microphone", "mute-camera", "kick",
		"roll-call-reply", "invitation", "invitation-cancel",
		"invitation-reply", "application", "application-cancel",
		"application-reply", "send-off", "send-off-all",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Status classifies how a pending operation concluded.
type Status uint8

const (
	// StatusSuccess means the backend confirmed the operation.
	StatusSuccess Status = iota
	// StatusFailure means the backend reported a non-zero result.
	StatusFailure
	// StatusTimeout means no backend reply arrived within the bound.
	StatusTimeout
	// StatusSuperseded means an identical request replaced this one.
	StatusSuperseded
	// StatusTargetGone means the operation's target left the room before
	// the backend could confirm.
	StatusTargetGone
	// StatusCanceled means the operation was abandoned locally, typically
	// because the room was torn down while it was in flight.
	StatusCanceled
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusTimeout:
		return "timeout"
	case StatusSuperseded:
		return "superseded"
	case StatusTargetGone:
		return "target-gone"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Outcome carries the terminal result of a pending operation to its
// caller-supplied callback.
type Outcome struct {
	Status Status
	// Agree echoes the semantic answer for invitation and application
	// operations (true = the other side agreed).
	Agree bool
	// Code is the backend result code, zero on success.
	Code int
	// Message is the backend's human-readable explanation, if any.
	Message string
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// CompletionFunc receives a pending operation's terminal outcome.
type CompletionFunc func(Outcome)

// Token uniquely identifies one registered operation.
type Token string

// Stats counts registry activity. The exactly-once guarantee means
// Registered always equals Resolved+Expired+Superseded plus the currently
// in-flight entries.
type Stats struct {
	Registered uint64
	Resolved   uint64
	Expired    uint64
	Superseded uint64
	InFlight   int
}

type opKey struct {
	kind   Kind
	target string
}

type operation struct {
	token    Token
	key      opKey
	callback CompletionFunc
	created  time.Time
	deadline time.Time
}

// Registry tracks in-flight control operations keyed by (kind, target) and
// guarantees each registered callback is invoked exactly once.
type Registry struct {
	mu      sync.Mutex
	byKey   map[opKey]*operation
	byToken map[Token]*operation

	timeout time.Duration
	clock   TimeProvider
	deliver func(CompletionFunc, Outcome)

	stats Stats

	stop    chan struct{}
	stopped sync.Once
}

// NewRegistry creates a registry whose callbacks are handed to deliver and
// whose entries expire after timeout. A zero timeout selects
// DefaultTimeout; a nil clock selects the real system clock. The expiry
// sweeper runs on its own goroutine, independent of either backend's
// delivery context, so an operation whose backend never replies is
// eventually resolved rather than leaked.
func NewRegistry(timeout time.Duration, clock TimeProvider, deliver func(CompletionFunc, Outcome)) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if clock == nil {
		clock = RealTimeProvider{}
	}
	r := &Registry{
		byKey:   make(map[opKey]*operation),
		byToken: make(map[Token]*operation),
		timeout: timeout,
		clock:   clock,
		deliver: deliver,
		stop:    make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Register admits a new pending operation and returns its token. If an
// identical (kind, target) operation is already in flight, the prior entry
// is resolved with StatusSuperseded before the new one is admitted, so no
// caller callback is ever silently dropped.
func (r *Registry) Register(kind Kind, target string, cb CompletionFunc) Token {
	r.mu.Lock()
	key := opKey{kind: kind, target: target}
	if prior, ok := r.byKey[key]; ok {
		r.removeLocked(prior)
		r.stats.Superseded++
		r.dispatchLocked(prior.callback, Outcome{Status: StatusSuperseded})
		logrus.WithFields(logrus.Fields{
			"kind":   kind.String(),
			"target": target,
		}).Debug("pending operation superseded by identical request")
	}
	now := r.clock.Now()
	op := &operation{
		token:    Token(uuid.NewString()),
		key:      key,
		callback: cb,
		created:  now,
		deadline: now.Add(r.timeout),
	}
	r.byKey[key] = op
	r.byToken[op.token] = op
	r.stats.Registered++
	r.mu.Unlock()
	return op.token
}

// Resolve looks up the in-flight operation matching (kind, target),
// removes it and invokes its callback with the outcome. It reports whether
// a match existed; no match is a no-op rather than an error, since a
// backend confirmation may race a local cancellation.
func (r *Registry) Resolve(kind Kind, target string, outcome Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.byKey[opKey{kind: kind, target: target}]
	if !ok {
		return false
	}
	r.removeLocked(op)
	r.stats.Resolved++
	r.dispatchLocked(op.callback, outcome)
	return true
}

// Active reports whether an operation matching (kind, target) is still
// in flight. Callers use it to discard backend replies that arrive after
// the operation already expired.
func (r *Registry) Active(kind Kind, target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byKey[opKey{kind: kind, target: target}]
	return ok
}

// ResolveToken resolves one operation by its token. Used when the caller
// holds the token from Register, e.g. to fail an operation whose backend
// command could not even be issued.
func (r *Registry) ResolveToken(token Token, outcome Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.byToken[token]
	if !ok {
		return false
	}
	r.removeLocked(op)
	r.stats.Resolved++
	r.dispatchLocked(op.callback, outcome)
	return true
}

// ResolveTarget resolves every in-flight operation aimed at the given
// target, typically with StatusTargetGone after the target left the room.
// It returns the number of operations resolved.
func (r *Registry) ResolveTarget(target string, outcome Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key, op := range r.byKey {
		if key.target != target || target == "" {
			continue
		}
		r.removeLocked(op)
		r.stats.Resolved++
		r.dispatchLocked(op.callback, outcome)
		n++
	}
	return n
}

// Drain resolves every in-flight operation with the given outcome. Used on
// room teardown so nothing keeps waiting for a session that is gone.
func (r *Registry) Drain(outcome Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, op := range r.byKey {
		r.removeLocked(op)
		r.stats.Resolved++
		r.dispatchLocked(op.callback, outcome)
		n++
	}
	return n
}

// Stats returns a snapshot of the registry's accounting counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	s.InFlight = len(r.byKey)
	return s
}

// Close stops the expiry sweeper. In-flight entries are left untouched;
// callers drain them explicitly first.
func (r *Registry) Close() {
	r.stopped.Do(func() {
		close(r.stop)
	})
}

// sweepLoop expires overdue entries until Close is called. Expiry is
// driven by the registry's own ticker, independent of channel delivery.
func (r *Registry) sweepLoop() {
	ticker := r.clock.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep(r.clock.Now())
		}
	}
}

// sweep resolves every entry whose deadline has passed with StatusTimeout
// and returns how many expired.
func (r *Registry) sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, op := range r.byKey {
		if now.Before(op.deadline) {
			continue
		}
		r.removeLocked(op)
		r.stats.Expired++
		r.dispatchLocked(op.callback, Outcome{Status: StatusTimeout})
		logrus.WithFields(logrus.Fields{
			"kind":   op.key.kind.String(),
			"target": op.key.target,
			"age":    now.Sub(op.created).String(),
		}).Warn("pending operation expired without backend reply")
		n++
	}
	return n
}

func (r *Registry) removeLocked(op *operation) {
	delete(r.byKey, op.key)
	delete(r.byToken, op.token)
}

// dispatchLocked hands a callback to the delivery function. Nil callbacks
// are counted but not delivered; fire-and-forget callers pass nil.
func (r *Registry) dispatchLocked(cb CompletionFunc, outcome Outcome) {
	if cb == nil || r.deliver == nil {
		return
	}
	r.deliver(cb, outcome)
}
