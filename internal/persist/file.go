package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// FileStore keeps one JSON file per slot under a base directory. Writes go
// through a temp file and rename so a crash never leaves a torn save.
type FileStore struct {
	dir string
}

type fileSlot struct {
	Slot     string          `json:"slot"`
	Name     string          `json:"name"`
	Summary  string          `json:"summary"`
	SavedAt  time.Time       `json:"savedAt"`
	Snapshot json.RawMessage `json:"snapshot"`
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create save dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(slot string) string {
	return filepath.Join(s.dir, slot+".json")
}

func (s *FileStore) Save(ctx context.Context, slot, name, summary string, snapshot []byte) error {
	if strings.ContainsAny(slot, `/\`) {
		return fmt.Errorf("invalid slot name %q", slot)
	}
	raw, err := json.Marshal(fileSlot{
		Slot:     slot,
		Name:     name,
		Summary:  summary,
		SavedAt:  time.Now().UTC(),
		Snapshot: snapshot,
	})
	if err != nil {
		return fmt.Errorf("encode slot %s: %w", slot, err)
	}

	tmp := s.path(slot) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write slot %s: %w", slot, err)
	}
	if err := os.Rename(tmp, s.path(slot)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit slot %s: %w", slot, err)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, slot string) ([]byte, error) {
	raw, err := os.ReadFile(s.path(slot))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", slot, err)
	}
	var stored fileSlot
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode slot %s: %w", slot, err)
	}
	return stored.Snapshot, nil
}

func (s *FileStore) List(ctx context.Context) ([]SlotInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list save dir: %w", err)
	}

	var infos []SlotInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var stored fileSlot
		if err := json.Unmarshal(raw, &stored); err != nil {
			continue
		}
		infos = append(infos, SlotInfo{
			Slot:    stored.Slot,
			Name:    stored.Name,
			SavedAt: stored.SavedAt,
			Summary: stored.Summary,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].SavedAt.After(infos[j].SavedAt)
	})
	return infos, nil
}
