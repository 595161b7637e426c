// Package store provides the persistence backends for features, events and
// sessions: an in-memory store for tests and embedding, and a SQLite store
// shared by the hook CLI and the daemon.
package store

import (
	"sort"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
	"github.com/fyrsmithlabs/agentkanban/internal/feature"
	"github.com/fyrsmithlabs/agentkanban/internal/session"
)

// Store bundles the three repositories over one backend.
type Store interface {
	Features() feature.Repository
	Events() event.Repository
	Sessions() session.Repository
	Close() error
}

// sortFeatures orders features by list position, then ID.
func sortFeatures(fs []*feature.Feature) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].ProjectDir != fs[j].ProjectDir {
			return fs[i].ProjectDir < fs[j].ProjectDir
		}
		if fs[i].Position != fs[j].Position {
			return fs[i].Position < fs[j].Position
		}
		return fs[i].ID < fs[j].ID
	})
}

// sortByCompletedDesc orders features most recently completed first.
func sortByCompletedDesc(fs []*feature.Feature) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i].CompletedAt, fs[j].CompletedAt
		if !a.Equal(*b) {
			return a.After(*b)
		}
		return fs[i].ID < fs[j].ID
	})
}
