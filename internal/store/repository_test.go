package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	"github.com/fyrsmithlabs/agentkanban/internal/session"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// backends returns a fresh store of every implementation.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "kanban.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func newFeature(project string, pos int, desc string, status feature.Status) *feature.Feature {
	f := &feature.Feature{
		ID:          feature.IDFor(project, pos),
		ProjectDir:  project,
		Position:    pos,
		Description: desc,
		Status:      status,
		Criteria:    feature.WorkCount(2),
	}
	f.ApplyDefaults(base)
	return f
}

func newEvent(id string, at time.Time, featureID string) *event.Event {
	return &event.Event{
		ID:          id,
		Type:        event.TypeToolCall,
		SourceAgent: event.DefaultSourceAgent,
		SessionID:   "s1",
		ProjectDir:  "/p",
		ToolName:    "Edit",
		Summary:     "Edit: main.go",
		Payload:     map[string]any{"filePath": "main.go"},
		Timestamp:   at,
		FeatureID:   featureID,
	}
}

func TestFeatures_CreateGetList(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := s.Features()

			f0 := newFeature("/p", 0, "dark mode toggle", feature.StatusPending)
			f0.Steps = []string{"design", "build"}
			f1 := newFeature("/p", 1, "billing queue", feature.StatusPending)
			other := newFeature("/q", 0, "unrelated", feature.StatusPending)

			require.NoError(t, repo.Create(ctx, f1))
			require.NoError(t, repo.Create(ctx, f0))
			require.NoError(t, repo.Create(ctx, other))
			assert.Equal(t, int64(1), f0.Version)

			err := repo.Create(ctx, newFeature("/p", 0, "again", feature.StatusPending))
			assert.True(t, errors.Is(err, feature.ErrDuplicate))

			got, err := repo.Get(ctx, f0.ID)
			require.NoError(t, err)
			assert.Equal(t, "dark mode toggle", got.Description)
			assert.Equal(t, []string{"design", "build"}, got.Steps)
			assert.Equal(t, feature.KindWorkCount, got.Criteria.Kind)
			assert.Equal(t, 2, got.Criteria.Threshold)
			assert.True(t, got.CreatedAt.Equal(base))

			list, err := repo.List(ctx, "/p")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, f0.ID, list[0].ID)
			assert.Equal(t, f1.ID, list[1].ID)

			_, err = repo.Get(ctx, "missing")
			assert.True(t, errors.Is(err, feature.ErrNotFound))

			projects, err := repo.Projects(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"/p", "/q"}, projects)
		})
	}
}

func TestFeatures_UpdateCompareAndSwap(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := s.Features()

			f := newFeature("/p", 0, "dark mode toggle", feature.StatusPending)
			require.NoError(t, repo.Create(ctx, f))

			a, err := repo.Get(ctx, f.ID)
			require.NoError(t, err)
			b, err := repo.Get(ctx, f.ID)
			require.NoError(t, err)

			a.WorkCount = 1
			require.NoError(t, a.TransitionTo(feature.StatusInProgress, base.Add(time.Minute)))
			require.NoError(t, repo.Update(ctx, []*feature.Feature{a}, feature.Transition{
				FeatureID: a.ID, From: feature.StatusPending, To: feature.StatusInProgress, At: base, By: "Edit",
			}))
			assert.Equal(t, int64(2), a.Version)

			b.WorkCount = 1
			err = repo.Update(ctx, []*feature.Feature{b})
			assert.True(t, errors.Is(err, feature.ErrVersionConflict))

			got, err := repo.Get(ctx, f.ID)
			require.NoError(t, err)
			assert.Equal(t, feature.StatusInProgress, got.Status)
			assert.Equal(t, int64(2), got.Version)

			transitions, err := repo.Transitions(ctx, 10)
			require.NoError(t, err)
			require.Len(t, transitions, 1)
			assert.Equal(t, "Edit", transitions[0].By)

			ghost := newFeature("/p", 9, "ghost", feature.StatusPending)
			ghost.Version = 1
			err = repo.Update(ctx, []*feature.Feature{ghost})
			assert.True(t, errors.Is(err, feature.ErrNotFound))
		})
	}
}

func TestFeatures_UpdateIsAtomic(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := s.Features()

			f0 := newFeature("/p", 0, "first", feature.StatusInProgress)
			f1 := newFeature("/p", 1, "second", feature.StatusPending)
			require.NoError(t, repo.Create(ctx, f0))
			require.NoError(t, repo.Create(ctx, f1))

			stale := f1.Clone()
			stale.Version = 7

			f0.Status = feature.StatusComplete
			err := repo.Update(ctx, []*feature.Feature{f0, stale})
			require.Error(t, err)

			got, err := repo.Get(ctx, f0.ID)
			require.NoError(t, err)
			assert.Equal(t, feature.StatusInProgress, got.Status)
			assert.Equal(t, int64(1), got.Version)
		})
	}
}

func TestFeatures_ConcurrentIncrementsAreNotLost(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := s.Features()

			f := newFeature("/p", 0, "counter", feature.StatusInProgress)
			require.NoError(t, repo.Create(ctx, f))

			const workers = 8
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for {
						cur, err := repo.Get(ctx, f.ID)
						if err != nil {
							return
						}
						cur.WorkCount++
						err = repo.Update(ctx, []*feature.Feature{cur})
						if !errors.Is(err, feature.ErrVersionConflict) {
							return
						}
					}
				}()
			}
			wg.Wait()

			got, err := repo.Get(ctx, f.ID)
			require.NoError(t, err)
			assert.Equal(t, workers, got.WorkCount)
		})
	}
}

func TestFeatures_FindByStatusAndZeroEvents(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fr, er := s.Features(), s.Events()

			older := newFeature("/p", 0, "older", feature.StatusComplete)
			olderDone := base.Add(time.Hour)
			older.CompletedAt = &olderDone

			newer := newFeature("/p", 1, "newer", feature.StatusComplete)
			newerDone := base.Add(2 * time.Hour)
			newer.CompletedAt = &newerDone

			linked := newFeature("/p", 2, "linked", feature.StatusComplete)
			linked.CompletedAt = &newerDone

			pending := newFeature("/q", 0, "pending", feature.StatusPending)

			for _, f := range []*feature.Feature{older, newer, linked, pending} {
				require.NoError(t, fr.Create(ctx, f))
			}
			require.NoError(t, er.Insert(ctx, newEvent("e1", base, linked.ID)))

			zero, err := fr.FindWithZeroEvents(ctx, feature.StatusComplete)
			require.NoError(t, err)
			require.Len(t, zero, 2)
			assert.Equal(t, newer.ID, zero[0].ID)
			assert.Equal(t, older.ID, zero[1].ID)

			all, err := fr.FindByStatus(ctx, "", feature.StatusComplete)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			scoped, err := fr.FindByStatus(ctx, "/q", feature.StatusPending)
			require.NoError(t, err)
			require.Len(t, scoped, 1)
			assert.Equal(t, pending.ID, scoped[0].ID)
		})
	}
}

func TestFeatures_ReplaceProject(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := s.Features()

			require.NoError(t, repo.Create(ctx, newFeature("/p", 0, "old zero", feature.StatusPending)))
			require.NoError(t, repo.Create(ctx, newFeature("/p", 1, "old one", feature.StatusPending)))

			replacement := []*feature.Feature{newFeature("/p", 0, "new zero", feature.StatusInProgress)}
			require.NoError(t, repo.ReplaceProject(ctx, "/p", replacement))
			assert.Equal(t, int64(2), replacement[0].Version)

			list, err := repo.List(ctx, "/p")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "new zero", list[0].Description)

			err = repo.ReplaceProject(ctx, "/p", []*feature.Feature{newFeature("/q", 0, "x", feature.StatusPending)})
			assert.True(t, errors.Is(err, feature.ErrInvalidFeature))
		})
	}
}

func TestFeatures_ReplaceProjectVersionCheck(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := s.Features()

			require.NoError(t, repo.Create(ctx, newFeature("/p", 0, "zero", feature.StatusInProgress)))
			stale, err := repo.List(ctx, "/p")
			require.NoError(t, err)
			require.Len(t, stale, 1)

			current := stale[0].Clone()
			current.WorkCount = 1
			require.NoError(t, repo.Update(ctx, []*feature.Feature{current}))

			replacement := []*feature.Feature{stale[0].Clone(), newFeature("/p", 1, "one", feature.StatusPending)}
			err = repo.ReplaceProject(ctx, "/p", replacement)
			assert.ErrorIs(t, err, feature.ErrVersionConflict)

			list, err := repo.List(ctx, "/p")
			require.NoError(t, err)
			require.Len(t, list, 1, "a rejected replace writes nothing")
			assert.Equal(t, 1, list[0].WorkCount)

			fresh := list[0].Clone()
			fresh.Description = "zero, reworded"
			require.NoError(t, repo.ReplaceProject(ctx, "/p", []*feature.Feature{fresh}))
			assert.Equal(t, list[0].Version+1, fresh.Version)
		})
	}
}

func TestEvents_WindowAndLinks(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			fr, er := s.Features(), s.Events()

			fa := newFeature("/p", 0, "a", feature.StatusComplete)
			fb := newFeature("/p", 1, "b", feature.StatusComplete)
			require.NoError(t, fr.Create(ctx, fa))
			require.NoError(t, fr.Create(ctx, fb))

			require.NoError(t, er.Insert(ctx, newEvent("late", base.Add(3*time.Minute), "")))
			require.NoError(t, er.Insert(ctx, newEvent("early", base.Add(time.Minute), fa.ID)))
			require.NoError(t, er.Insert(ctx, newEvent("outside", base.Add(time.Hour), "")))

			err := er.Insert(ctx, newEvent("early", base, ""))
			assert.True(t, errors.Is(err, event.ErrInvalidEvent))

			window, err := er.FindInWindow(ctx, base, base.Add(5*time.Minute))
			require.NoError(t, err)
			require.Len(t, window, 2)
			assert.Equal(t, "early", window[0].ID)
			assert.Equal(t, fa.ID, window[0].FeatureID)
			assert.Equal(t, "late", window[1].ID)
			assert.Empty(t, window[1].FeatureID)
			assert.Equal(t, "main.go", window[0].Payload["filePath"])

			created, err := er.Link(ctx, "late", fb.ID)
			require.NoError(t, err)
			assert.True(t, created)
			created, err = er.Link(ctx, "late", fb.ID)
			require.NoError(t, err)
			assert.False(t, created)

			counts, err := er.CountByFeature(ctx)
			require.NoError(t, err)
			assert.Equal(t, map[string]int{fa.ID: 1, fb.ID: 1}, counts)

			require.NoError(t, er.Unlink(ctx, "early", fa.ID))
			require.NoError(t, er.Unlink(ctx, "early", fa.ID))
			got, err := er.Get(ctx, "early")
			require.NoError(t, err)
			assert.Empty(t, got.FeatureID)

			_, err = er.Link(ctx, "nope", fb.ID)
			assert.True(t, errors.Is(err, event.ErrNotFound))
			_, err = er.Link(ctx, "late", "nope")
			assert.True(t, errors.Is(err, feature.ErrNotFound))

			n, err := er.ReassignProject(ctx, "/p", "/main")
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			got, err = er.Get(ctx, "late")
			require.NoError(t, err)
			assert.Equal(t, "/main", got.ProjectDir)
		})
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := s.Sessions()

			require.NoError(t, repo.Start(ctx, &session.Session{
				ID: "s1", SourceAgent: "claude-code", ProjectDir: "/p", StartedAt: base,
			}))
			require.NoError(t, repo.Start(ctx, &session.Session{
				ID: "s2", SourceAgent: "claude-code", ProjectDir: "/p", StartedAt: base,
			}))
			require.NoError(t, repo.Touch(ctx, "s2", base.Add(20*time.Minute)))
			require.NoError(t, repo.Touch(ctx, "s2", base.Add(time.Minute)))

			active, err := repo.CountActive(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, active)

			n, err := repo.EndStale(ctx, base.Add(15*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			list, err := repo.Sessions(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "s2", list[0].ID)
			assert.True(t, list[0].LastActivity.Equal(base.Add(20*time.Minute)))
			assert.Equal(t, session.StatusEnded, list[1].Status)

			require.NoError(t, repo.End(ctx, "s2", base.Add(30*time.Minute)))
			active, err = repo.CountActive(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, active)

			err = repo.End(ctx, "missing", base)
			assert.True(t, errors.Is(err, session.ErrNotFound))

			moved, err := repo.ReassignProject(ctx, "/p", "/main")
			require.NoError(t, err)
			assert.Equal(t, 2, moved)
		})
	}
}
