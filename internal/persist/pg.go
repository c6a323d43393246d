package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PGStore keeps save slots in Postgres, one row per slot, upserted on save.
type PGStore struct {
	db *DB
}

func NewPGStore(db *DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Save(ctx context.Context, slot, name, summary string, snapshot []byte) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO save_slots (slot, name, summary, snapshot, saved_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (slot) DO UPDATE
		 SET name = EXCLUDED.name, summary = EXCLUDED.summary,
		     snapshot = EXCLUDED.snapshot, saved_at = now()`,
		slot, name, summary, snapshot,
	)
	if err != nil {
		return fmt.Errorf("save slot %s: %w", slot, err)
	}
	return nil
}

func (s *PGStore) Load(ctx context.Context, slot string) ([]byte, error) {
	var snapshot []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT snapshot FROM save_slots WHERE slot = $1`, slot,
	).Scan(&snapshot)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %s: %w", slot, err)
	}
	return snapshot, nil
}

func (s *PGStore) List(ctx context.Context) ([]SlotInfo, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT slot, name, summary, saved_at FROM save_slots ORDER BY saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var infos []SlotInfo
	for rows.Next() {
		var info SlotInfo
		if err := rows.Scan(&info.Slot, &info.Name, &info.Summary, &info.SavedAt); err != nil {
			return nil, fmt.Errorf("scan slot row: %w", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return infos, nil
}
