package combo

import (
	"sort"
	"time"

	combolog "ccw/server/logging/combo"
)

// Update advances every active chain by dt. For each actor, in actor order,
// it recomputes progress and windows, fires the hit frame once, releases the
// commitment when the cancel window opens, applies one buffered attack when
// the combo window opens and ends the chain once the clip has finished.
func (m *Machine) Update(dt time.Duration) {
	if !m.initialized.Load() {
		return
	}
	if dt < 0 {
		dt = 0
	}
	var (
		notices []notice
		active  int
	)
	m.states.Mutate(func(entries map[string]*State) {
		actors := make([]string, 0, len(entries))
		for actor := range entries {
			actors = append(actors, actor)
		}
		sort.Strings(actors)
		for _, actor := range actors {
			st := entries[actor]
			if !st.IsActive() {
				delete(entries, actor)
				continue
			}
			notices = append(notices, m.stepLocked(entries, actor, st, dt)...)
		}
		active = len(entries)
	})
	m.metrics.Store(metricActive, uint64(active))
	m.deliver(notices)
}

func (m *Machine) stepLocked(entries map[string]*State, actor string, st *State, dt time.Duration) []notice {
	st.Elapsed += dt
	clip, ok := m.clips.Lookup(st.Clip.Name)
	if !ok {
		return nil
	}
	st.Clip = clip
	if clip.Duration > 0 {
		st.Progress = float64(st.Elapsed) / float64(clip.Duration)
	}

	wasInCombo := st.InComboWindow
	st.InComboWindow = clip.ComboWindow.Contains(st.Progress)
	st.InCancelWindow = clip.CancelWindow.Contains(st.Progress)

	var out []notice
	if !st.HitTriggered && st.Elapsed >= clip.HitFrame {
		st.HitTriggered = true
		out = append(out, notice{kind: kindHit, actor: actor, state: *st})
	}
	if st.InCancelWindow {
		st.Committed = false
	}
	if st.InComboWindow && !wasInCombo {
		if buffered, ok := m.buffer.ConsumeBufferedAttack(actor); ok {
			chained, _ := m.advanceLocked(actor, st, buffered.Heavy, true)
			out = append(out, chained...)
		}
	}
	if st.Progress >= 1 {
		out = append(out, m.endLocked(entries, actor, st, combolog.EndProgress)...)
	}
	return out
}

func durationAt(total time.Duration, progress float64) time.Duration {
	return time.Duration(float64(total) * progress)
}
