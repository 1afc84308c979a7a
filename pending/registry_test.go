package pending

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClock is a TimeProvider with a controllable current time and a
// hand-fired sweep ticker.
type mockClock struct {
	mu   sync.Mutex
	now  time.Time
	tick chan time.Time
}

func newMockClock() *mockClock {
	return &mockClock{
		now:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		tick: make(chan time.Time),
	}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *mockClock) NewTicker(d time.Duration) *time.Ticker {
	t := time.NewTicker(time.Hour)
	t.C = c.tick
	return t
}

// fireSweep triggers one sweeper pass and returns once the sweeper has
// picked it up.
func (c *mockClock) fireSweep() {
	c.tick <- c.Now()
}

// syncDeliver invokes callbacks inline, which keeps registry tests
// deterministic.
func syncDeliver(cb CompletionFunc, oc Outcome) {
	cb(oc)
}

func newTestRegistry(t *testing.T, clock TimeProvider) *Registry {
	t.Helper()
	r := NewRegistry(DefaultTimeout, clock, syncDeliver)
	t.Cleanup(r.Close)
	return r
}

func TestRegisterAndResolve(t *testing.T) {
	r := newTestRegistry(t, newMockClock())

	var got Outcome
	called := 0
	r.Register(KindKick, "bob", func(oc Outcome) {
		got = oc
		called++
	})

	ok := r.Resolve(KindKick, "bob", Outcome{Status: StatusSuccess})
	require.True(t, ok)
	assert.Equal(t, 1, called)
	assert.True(t, got.Succeeded())

	// Second resolve finds nothing.
	ok = r.Resolve(KindKick, "bob", Outcome{Status: StatusSuccess})
	assert.False(t, ok)
	assert.Equal(t, 1, called)
}

func TestResolveUnknownIsNoOp(t *testing.T) {
	r := newTestRegistry(t, newMockClock())
	assert.False(t, r.Resolve(KindInvitation, "nobody", Outcome{Status: StatusSuccess}))
}

func TestRegisterSupersedesIdenticalRequest(t *testing.T) {
	r := newTestRegistry(t, newMockClock())

	var first, second []Status
	r.Register(KindInvitation, "carol", func(oc Outcome) {
		first = append(first, oc.Status)
	})
	r.Register(KindInvitation, "carol", func(oc Outcome) {
		second = append(second, oc.Status)
	})

	require.Equal(t, []Status{StatusSuperseded}, first)
	assert.Empty(t, second)

	r.Resolve(KindInvitation, "carol", Outcome{Status: StatusSuccess, Agree: true})
	assert.Equal(t, []Status{StatusSuperseded}, first)
	assert.Equal(t, []Status{StatusSuccess}, second)
}

func TestDistinctTargetsDoNotCollide(t *testing.T) {
	r := newTestRegistry(t, newMockClock())

	var dave, erin int
	r.Register(KindInvitation, "dave", func(Outcome) { dave++ })
	r.Register(KindInvitation, "erin", func(Outcome) { erin++ })

	r.Resolve(KindInvitation, "dave", Outcome{Status: StatusSuccess})
	assert.Equal(t, 1, dave)
	assert.Equal(t, 0, erin)
}

func TestResolveToken(t *testing.T) {
	r := newTestRegistry(t, newMockClock())

	var got Outcome
	token := r.Register(KindMuteMicrophone, "bob", func(oc Outcome) { got = oc })

	require.True(t, r.ResolveToken(token, Outcome{Status: StatusFailure, Message: "send failed"}))
	assert.Equal(t, StatusFailure, got.Status)

	// The keyed entry is gone too.
	assert.False(t, r.Resolve(KindMuteMicrophone, "bob", Outcome{Status: StatusSuccess}))
	assert.False(t, r.ResolveToken(token, Outcome{Status: StatusSuccess}))
}

func TestResolveTargetSweepsAllKinds(t *testing.T) {
	r := newTestRegistry(t, newMockClock())

	var statuses []Status
	record := func(oc Outcome) { statuses = append(statuses, oc.Status) }
	r.Register(KindInvitation, "frank", record)
	r.Register(KindMuteCamera, "frank", record)
	r.Register(KindKick, "grace", record)

	n := r.ResolveTarget("frank", Outcome{Status: StatusTargetGone})
	assert.Equal(t, 2, n)
	assert.Equal(t, []Status{StatusTargetGone, StatusTargetGone}, statuses)

	// Untargeted entries must never match an empty target.
	r.Register(KindLogin, "", record)
	assert.Zero(t, r.ResolveTarget("", Outcome{Status: StatusTargetGone}))
}

func TestDrainResolvesEverything(t *testing.T) {
	r := newTestRegistry(t, newMockClock())

	count := 0
	for _, kind := range []Kind{KindInvitation, KindApplication, KindKick} {
		r.Register(kind, "x", func(Outcome) { count++ })
	}

	n := r.Drain(Outcome{Status: StatusCanceled})
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, count)
	assert.Zero(t, r.Stats().InFlight)
}

func TestExpiryResolvesTimeout(t *testing.T) {
	clock := newMockClock()
	r := newTestRegistry(t, clock)

	results := make(chan Outcome, 1)
	r.Register(KindApplication, "", func(oc Outcome) { results <- oc })

	// Not yet due.
	clock.Advance(DefaultTimeout - time.Second)
	clock.fireSweep()
	select {
	case <-results:
		t.Fatal("expired before its deadline")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(2 * time.Second)
	clock.fireSweep()
	select {
	case oc := <-results:
		assert.Equal(t, StatusTimeout, oc.Status)
	case <-time.After(time.Second):
		t.Fatal("no timeout delivered")
	}

	require.Eventually(t, func() bool {
		return r.Stats().Expired == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNilCallbackIsAllowed(t *testing.T) {
	r := newTestRegistry(t, newMockClock())
	r.Register(KindSendOffAll, "", nil)
	assert.True(t, r.Resolve(KindSendOffAll, "", Outcome{Status: StatusSuccess}))
}

func TestExactlyOnceAccounting(t *testing.T) {
	clock := newMockClock()
	r := newTestRegistry(t, clock)

	fired := make(map[Kind]int)
	var mu sync.Mutex
	cb := func(kind Kind) CompletionFunc {
		return func(Outcome) {
			mu.Lock()
			fired[kind]++
			mu.Unlock()
		}
	}

	r.Register(KindInvitation, "a", cb(KindInvitation))
	r.Register(KindInvitation, "a", cb(KindInvitation)) // supersedes
	r.Register(KindApplication, "", cb(KindApplication))
	r.Register(KindKick, "b", cb(KindKick))

	r.Resolve(KindInvitation, "a", Outcome{Status: StatusSuccess})
	r.ResolveTarget("b", Outcome{Status: StatusTargetGone})
	clock.Advance(DefaultTimeout + time.Second)
	clock.fireSweep()

	require.Eventually(t, func() bool {
		st := r.Stats()
		return st.Registered == st.Resolved+st.Expired+st.Superseded+uint64(st.InFlight)
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, fired[KindInvitation])
	assert.Equal(t, 1, fired[KindApplication])
	assert.Equal(t, 1, fired[KindKick])
	assert.Zero(t, r.Stats().InFlight)
}

func TestKindAndStatusStrings(t *testing.T) {
	assert.Equal(t, "invitation", KindInvitation.String())
	assert.Equal(t, "send-off-all", KindSendOffAll.String())
	assert.Equal(t, "target-gone", StatusTargetGone.String())
	assert.Equal(t, "unknown", Kind(200).String())
}

func TestActiveTracksLifetime(t *testing.T) {
	r := newTestRegistry(t, newMockClock())

	assert.False(t, r.Active(KindEnterRoom, ""))
	token := r.Register(KindEnterRoom, "", nil)
	assert.True(t, r.Active(KindEnterRoom, ""))
	assert.False(t, r.Active(KindCreateRoom, ""))

	r.ResolveToken(token, Outcome{Status: StatusTimeout})
	assert.False(t, r.Active(KindEnterRoom, ""))
}
