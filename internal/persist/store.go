// Package persist is the save store: named slots holding full session
// snapshots. Two backends share one contract, Postgres for servers and a
// plain file tree for development.
package persist

import (
	"context"
	"errors"
	"time"
)

// ErrSlotNotFound means the requested slot holds no save.
var ErrSlotNotFound = errors.New("save slot not found")

// SlotInfo summarizes one occupied slot.
type SlotInfo struct {
	Slot    string    `json:"slot"`
	Name    string    `json:"name"`
	SavedAt time.Time `json:"savedAt"`
	Summary string    `json:"summary"`
}

// SaveStore persists session snapshots. Snapshots are opaque JSON produced
// by the session worker; a loaded snapshot must continue exactly where the
// save left off, including the PRNG cursor.
type SaveStore interface {
	Save(ctx context.Context, slot, name, summary string, snapshot []byte) error
	Load(ctx context.Context, slot string) ([]byte, error)
	List(ctx context.Context) ([]SlotInfo, error)
}
