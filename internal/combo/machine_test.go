package combo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ccw/server/internal/clips"
	"ccw/server/internal/input"
	"ccw/server/internal/telemetry"
	"ccw/server/logging"
	combolog "ccw/server/logging/combo"
	"ccw/server/logging/sinks"
)

const ms = time.Millisecond

func oneSecondClip(name string) clips.Clip {
	return clips.Clip{
		Name:         name,
		Duration:     time.Second,
		HitFrame:     300 * ms,
		ComboWindow:  clips.Window{Start: 0.4, End: 0.75},
		CancelWindow: clips.Window{Start: 0.6, End: 0.9},
		Weapon:       clips.OneHandSword,
	}
}

type fixture struct {
	t       *testing.T
	catalog *clips.Catalog
	buffer  *input.Buffer
	machine *Machine
	weapons *WeaponTable
	events  *sinks.Memory
	metrics *logging.Metrics

	mu     sync.Mutex
	played []string
	refuse bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		catalog: clips.NewCatalog(nil),
		events:  sinks.NewMemory(),
		metrics: &logging.Metrics{},
		weapons: NewWeaponTable(clips.OneHandSword),
	}
	sprint := oneSecondClip("sprint")
	require.NoError(t, f.catalog.Register(clips.AnimationSet{
		Name:   "sword",
		Weapon: clips.OneHandSword,
		Light:  []clips.Clip{oneSecondClip("l1"), oneSecondClip("l2")},
		Heavy:  []clips.Clip{oneSecondClip("h1"), oneSecondClip("h2")},
		Sprint: &sprint,
	}))
	f.buffer = input.NewBuffer(input.Config{Publisher: f.events})
	m, err := NewMachine(Config{
		Clips:     f.catalog,
		Buffer:    f.buffer,
		Weapons:   f.weapons,
		Player:    PlayerFunc(f.play),
		Publisher: f.events,
		Metrics:   telemetry.WrapMetrics(f.metrics),
	})
	require.NoError(t, err)
	m.Initialize(context.Background())
	f.machine = m
	return f
}

func (f *fixture) play(_ string, clip clips.Clip) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, clip.Name)
	return !f.refuse
}

func (f *fixture) playedClips() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.played...)
}

// step advances both registries the way the simulation loop does.
func (f *fixture) step(dt time.Duration) {
	f.buffer.Update(dt)
	f.machine.Update(dt)
}

func (f *fixture) state(actor string) State {
	f.t.Helper()
	st, ok := f.machine.GetComboState(actor)
	require.True(f.t, ok, "expected %s to be in combo", actor)
	return st
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) listen(_ string, st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func TestNewMachineRequiresCollaborators(t *testing.T) {
	_, err := NewMachine(Config{Buffer: input.NewBuffer(input.Config{})})
	assert.Error(t, err)
	_, err = NewMachine(Config{Clips: clips.NewCatalog(nil)})
	assert.Error(t, err)
}

func TestStartAttackInitialState(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))

	st := f.state("a")
	assert.Equal(t, 1, st.Index)
	assert.True(t, st.Committed)
	assert.False(t, st.HitTriggered)
	assert.False(t, st.Heavy)
	assert.Zero(t, st.Progress)
	assert.Equal(t, "l1", st.Clip.Name)
	assert.Equal(t, clips.OneHandSword, st.Weapon)
	assert.True(t, st.IsActive())
	assert.Equal(t, []string{"l1"}, f.playedClips())
	assert.Len(t, f.events.OfType(combolog.EventStarted), 1)
	assert.Equal(t, uint64(1), f.metrics.Snapshot()["combo_started_total"])
}

func TestStartAttackWithoutChainFails(t *testing.T) {
	f := newFixture(t)
	f.weapons.Equip("a", clips.Staff)

	assert.False(t, f.machine.TryStartAttack("a", false, input.Neutral))
	assert.False(t, f.machine.IsInCombo("a"))
	assert.Empty(t, f.playedClips())
	assert.Len(t, f.events.OfType(combolog.EventRejected), 1)

	assert.False(t, f.machine.TryStartAttack("", false, input.Neutral))
}

func TestStartAttackSpecialOpeners(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.machine.TryStartAttack("runner", false, input.Sprinting))
	assert.Equal(t, "sprint", f.state("runner").Clip.Name)

	require.True(t, f.machine.TryStartAttack("jumper", true, input.Jumping))
	assert.Equal(t, "h1", f.state("jumper").Clip.Name, "no jump clip falls back to the chain opener")
}

func TestChainInsideWindowAdvancesImmediately(t *testing.T) {
	f := newFixture(t)
	chains := &recorder{}
	f.machine.OnChainAdvance(chains.listen)

	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	f.step(410 * ms)
	require.True(t, f.machine.IsInComboWindow("a"))

	require.True(t, f.machine.TryChainAttack("a", true))
	st := f.state("a")
	assert.Equal(t, 2, st.Index)
	assert.True(t, st.Heavy)
	assert.Equal(t, "h2", st.Clip.Name)
	assert.True(t, st.Committed)
	assert.False(t, st.InComboWindow)
	assert.Zero(t, st.Elapsed)
	assert.Equal(t, 1, chains.count())
	assert.Equal(t, []string{"l1", "h2"}, f.playedClips())
}

func TestEarlyChainIsBufferedUntilWindowOpens(t *testing.T) {
	f := newFixture(t)
	chains := &recorder{}
	f.machine.OnChainAdvance(chains.listen)

	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	f.step(100 * ms)
	require.True(t, f.machine.IsCommitted("a"))

	require.True(t, f.machine.TryChainAttack("a", false))
	assert.Equal(t, 1, f.state("a").Index, "accepted but not yet applied")
	attacks, _ := f.buffer.Pending("a")
	assert.Equal(t, 1, attacks)

	f.step(100 * ms)
	f.step(100 * ms)
	assert.Equal(t, 1, f.state("a").Index)

	f.step(100 * ms)
	st := f.state("a")
	assert.Equal(t, 2, st.Index)
	assert.Equal(t, "l2", st.Clip.Name)
	assert.Equal(t, 1, chains.count())
	attacks, _ = f.buffer.Pending("a")
	assert.Zero(t, attacks)

	chained := f.events.OfType(combolog.EventChained)
	require.Len(t, chained, 1)
	assert.True(t, chained[0].Payload.(combolog.StepPayload).Buffered)
}

func TestBufferedChainExpiresBeforeLateWindow(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	require.True(t, f.machine.TryChainAttack("a", false))

	f.step(310 * ms)
	assert.False(t, f.machine.IsInComboWindow("a"))
	_, ok := f.buffer.ConsumeBufferedAttack("a")
	assert.False(t, ok)

	f.step(100 * ms)
	assert.Equal(t, 1, f.state("a").Index, "nothing left to apply when the window opens")
}

func TestWindowOpenConsumesOldestOnly(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	f.step(100 * ms)
	require.True(t, f.machine.TryChainAttack("a", true))
	require.True(t, f.machine.TryChainAttack("a", false))
	require.True(t, f.machine.TryChainAttack("a", false))

	f.step(300 * ms)
	st := f.state("a")
	assert.Equal(t, 2, st.Index)
	assert.True(t, st.Heavy, "oldest request applied first")

	queued := f.buffer.Peek("a")
	require.Len(t, queued, 2)
	assert.False(t, queued[0].Heavy)
}

func TestProgressCompletionEndsCombo(t *testing.T) {
	f := newFixture(t)
	ends := &recorder{}
	f.machine.OnComboEnd(ends.listen)

	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	require.True(t, f.machine.TryChainAttack("a", true))
	attacks, _ := f.buffer.Pending("a")
	require.Equal(t, 1, attacks)

	f.machine.OnAnimationProgress("a", 1.0)
	f.step(0)

	assert.Equal(t, 1, ends.count())
	_, ok := f.machine.GetComboState("a")
	assert.False(t, ok)
	assert.Zero(t, f.machine.ActiveCount())
	attacks, _ = f.buffer.Pending("a")
	assert.Zero(t, attacks, "pending input is cleared with the combo")

	ended := f.events.OfType(combolog.EventEnded)
	require.Len(t, ended, 1)
	assert.Equal(t, combolog.EndProgress, ended[0].Payload.(combolog.EndedPayload).Reason)

	f.step(100 * ms)
	assert.Equal(t, 1, ends.count())
}

func TestClipRunsToCompletionThroughTicks(t *testing.T) {
	f := newFixture(t)
	ends := &recorder{}
	f.machine.OnComboEnd(ends.listen)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))

	for i := 0; i < 9; i++ {
		f.step(100 * ms)
	}
	assert.True(t, f.machine.IsInCombo("a"))
	f.step(100 * ms)
	assert.False(t, f.machine.IsInCombo("a"))
	require.Equal(t, 1, ends.count())
	assert.Equal(t, 1, ends.states[0].Index, "end listener sees the final step")
}

func TestAdvanceStopsAtMaxComboLength(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	for i := 2; i <= MaxComboLength; i++ {
		require.True(t, f.machine.AdvanceCombo("a", false), "step %d", i)
	}
	before := f.state("a")
	require.Equal(t, MaxComboLength, before.Index)
	played := len(f.playedClips())

	assert.False(t, f.machine.AdvanceCombo("a", true))
	assert.Equal(t, before, f.state("a"))
	assert.Len(t, f.playedClips(), played)
}

func TestChainWrapsAroundItsClips(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	require.True(t, f.machine.AdvanceCombo("a", false))
	require.True(t, f.machine.AdvanceCombo("a", false))
	st := f.state("a")
	assert.Equal(t, 3, st.Index)
	assert.Equal(t, "l1", st.Clip.Name)
}

func TestHitFrameFiresOncePerStep(t *testing.T) {
	f := newFixture(t)
	hits := &recorder{}
	f.machine.OnHit(hits.listen)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))

	f.machine.OnAnimationEvent("a", HitFrame)
	f.machine.OnAnimationEvent("a", HitFrame)
	f.step(350 * ms)
	f.machine.OnAnimationEvent("a", HitFrame)
	assert.Equal(t, 1, hits.count())
	assert.True(t, f.state("a").HitTriggered)

	f.step(100 * ms)
	require.True(t, f.machine.TryChainAttack("a", false))
	f.step(300 * ms)
	assert.Equal(t, 2, hits.count(), "the next step has its own hit frame")
}

func TestCancelGuard(t *testing.T) {
	f := newFixture(t)
	ends := &recorder{}
	f.machine.OnComboEnd(ends.listen)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))

	before := f.state("a")
	assert.False(t, f.machine.CancelCombo("a"), "committed strike cannot be cancelled")
	assert.Equal(t, before, f.state("a"))

	f.step(650 * ms)
	st := f.state("a")
	require.True(t, st.InCancelWindow)
	require.False(t, st.Committed)
	assert.True(t, f.machine.CancelCombo("a"))
	assert.False(t, f.machine.IsInCombo("a"))
	assert.Equal(t, 1, ends.count())
}

func TestCancelAfterCancelWindowTag(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	f.machine.OnAnimationEvent("a", CancelWindowOpen)
	assert.False(t, f.machine.IsCommitted("a"))
	f.machine.OnAnimationEvent("a", CancelWindowClose)
	assert.True(t, f.machine.CancelCombo("a"), "not committed is enough")
	assert.False(t, f.machine.CancelCombo("a"))
}

func TestChainRejectedAfterCommitEnds(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	f.step(800 * ms)
	st := f.state("a")
	require.False(t, st.InComboWindow)
	require.False(t, st.Committed)

	assert.False(t, f.machine.TryChainAttack("a", false))
	assert.Equal(t, 1, f.state("a").Index)
	attacks, _ := f.buffer.Pending("a")
	assert.Zero(t, attacks)

	rejected := f.events.OfType(combolog.EventRejected)
	require.NotEmpty(t, rejected)
	assert.Equal(t, ReasonOutsideWindow, rejected[len(rejected)-1].Payload.(combolog.RejectedPayload).Reason)

	assert.False(t, f.machine.TryChainAttack("idle", false))
}

func TestWindowTagsToggleFlags(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	f.machine.OnAnimationEvent("a", ComboWindowOpen)
	assert.True(t, f.machine.IsInComboWindow("a"))
	require.True(t, f.machine.TryChainAttack("a", false))
	assert.Equal(t, 2, f.state("a").Index)

	f.machine.OnAnimationEvent("a", ComboWindowOpen)
	f.machine.OnAnimationEvent("a", ComboWindowClose)
	assert.False(t, f.machine.IsInComboWindow("a"))
	f.machine.OnAnimationEvent("a", TagUnknown)
	assert.Equal(t, 2, f.state("a").Index)
}

func TestAnimationEndTagRemovesState(t *testing.T) {
	f := newFixture(t)
	ends := &recorder{}
	f.machine.OnComboEnd(ends.listen)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	require.True(t, f.machine.TryChainAttack("a", false))

	f.machine.OnAnimationEvent("a", AnimationEnd)
	f.machine.OnAnimationEvent("a", AnimationEnd)
	assert.Equal(t, 1, ends.count())
	assert.False(t, f.machine.IsInCombo("a"))
	assert.Zero(t, f.buffer.Len())
}

func TestAnimationProgressIsClampedAndRebased(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))

	f.machine.OnAnimationProgress("a", -0.5)
	assert.Zero(t, f.state("a").Progress)

	f.machine.OnAnimationProgress("a", 0.5)
	st := f.state("a")
	assert.Equal(t, 0.5, st.Progress)
	assert.Equal(t, 500*ms, st.Elapsed)

	f.step(100 * ms)
	assert.InDelta(t, 0.6, f.state("a").Progress, 1e-9)

	f.machine.OnAnimationProgress("a", 7)
	assert.Equal(t, 1.0, f.state("a").Progress)
}

func TestListenersRunInOrderAndPanicsAreIsolated(t *testing.T) {
	f := newFixture(t)
	var order []string
	f.machine.OnHit(func(string, State) { order = append(order, "first") })
	f.machine.OnHit(func(string, State) { panic("boom") })
	f.machine.OnHit(func(actor string, _ State) { order = append(order, "third:"+actor) })

	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	require.True(t, f.machine.TryStartAttack("b", false, input.Neutral))
	f.step(300 * ms)

	assert.Equal(t, []string{"first", "third:a", "first", "third:b"}, order)
	panics := f.events.OfType(combolog.EventListenerPanic)
	require.Len(t, panics, 2)
	assert.Equal(t, "boom", panics[0].Payload.(combolog.ListenerPanicPayload).Value)
	assert.True(t, f.state("b").HitTriggered)
}

func TestListenersMayCallBackIntoMachine(t *testing.T) {
	f := newFixture(t)
	var observed State
	f.machine.OnChainAdvance(func(actor string, st State) {
		observed, _ = f.machine.GetComboState(actor)
		f.machine.OnAnimationEvent(actor, CancelWindowOpen)
	})
	f.machine.OnComboEnd(func(actor string, _ State) {
		f.machine.TryStartAttack(actor, true, input.Neutral)
	})

	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	f.machine.OnAnimationEvent("a", ComboWindowOpen)
	require.True(t, f.machine.TryChainAttack("a", false))
	assert.Equal(t, 2, observed.Index)
	assert.False(t, f.machine.IsCommitted("a"))

	require.True(t, f.machine.CancelCombo("a"))
	st := f.state("a")
	assert.Equal(t, 1, st.Index, "end listener restarted the chain")
	assert.True(t, st.Heavy)
}

func TestPlaybackFailureIsLoggedNotReturned(t *testing.T) {
	f := newFixture(t)
	f.refuse = true
	assert.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	assert.True(t, f.machine.IsInCombo("a"))
	assert.Len(t, f.events.OfType(combolog.EventPlaybackFailed), 1)
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
	f.machine.Initialize(context.Background())
	assert.True(t, f.machine.IsInCombo("a"), "re-initialising keeps state")

	f.machine.Shutdown(context.Background())
	assert.Zero(t, f.machine.ActiveCount())
	assert.False(t, f.machine.TryStartAttack("a", false, input.Neutral))
	f.machine.Update(time.Second)

	f.machine.Initialize(context.Background())
	assert.True(t, f.machine.TryStartAttack("a", false, input.Neutral))
}

func TestActiveIffIndexPositive(t *testing.T) {
	f := newFixture(t)
	for _, actor := range []string{"a", "b", "c"} {
		require.True(t, f.machine.TryStartAttack(actor, actor == "b", input.Neutral))
	}
	for i := 0; i < 12; i++ {
		f.step(100 * ms)
		f.machine.TryChainAttack("a", false)
		for _, entry := range f.machine.Snapshot() {
			assert.True(t, entry.State.IsActive())
			assert.Positive(t, entry.State.Index)
		}
	}
	var zero State
	assert.False(t, zero.IsActive())
}

func TestConcurrentCallersAndTicks(t *testing.T) {
	f := newFixture(t)
	var wg sync.WaitGroup
	for _, actor := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if !f.machine.IsInCombo(actor) {
					f.machine.TryStartAttack(actor, i%3 == 0, input.Neutral)
				}
				f.machine.TryChainAttack(actor, i%2 == 0)
				f.machine.OnAnimationEvent(actor, HitFrame)
				f.machine.GetComboState(actor)
				f.machine.CancelCombo(actor)
			}
		}(actor)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			f.step(16 * ms)
		}
	}()
	wg.Wait()
	for _, entry := range f.machine.Snapshot() {
		assert.LessOrEqual(t, entry.State.Index, MaxComboLength)
	}
}
