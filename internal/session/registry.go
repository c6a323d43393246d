package session

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/game"
)

var (
	ErrSessionExists   = errors.New("session already exists")
	ErrSessionNotFound = errors.New("session not found")
)

// Registry owns the sessionID to worker index and the shared catalogs every
// worker draws from. Workers run on their own goroutines; the registry only
// tracks them.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*Worker

	engine   *game.Engine
	monsters *data.MonsterTable
	spawnNum int
	gameCfg  game.SessionConfig
	opts     Options
	sink     Broadcaster
	log      *zap.Logger
}

// NewRegistry creates an empty registry over shared catalogs.
func NewRegistry(engine *game.Engine, monsters *data.MonsterTable, monsterCount int,
	gameCfg game.SessionConfig, opts Options, sink Broadcaster, log *zap.Logger) *Registry {
	return &Registry{
		workers:  map[string]*Worker{},
		engine:   engine,
		monsters: monsters,
		spawnNum: monsterCount,
		gameCfg:  gameCfg,
		opts:     opts,
		sink:     sink,
		log:      log,
	}
}

// Create spins up a lobby-phase session worker with the given seed.
func (r *Registry) Create(sessionID string, seed int64) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workers[sessionID]; ok {
		return nil, ErrSessionExists
	}
	st := game.NewState(sessionID, seed, r.gameCfg)
	w := NewWorker(sessionID, st, r.engine, r.monsters, r.spawnNum, r.opts, r.sink, r.log)
	r.workers[sessionID] = w
	go w.Run()
	r.log.Info("session created", zap.String("session", sessionID), zap.Int64("seed", seed))
	return w, nil
}

// Adopt registers a worker built around a restored state, as Create does
// for a fresh one.
func (r *Registry) Adopt(st *game.State) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workers[st.SessionID]; ok {
		return nil, ErrSessionExists
	}
	w := NewWorker(st.SessionID, st, r.engine, r.monsters, r.spawnNum, r.opts, r.sink, r.log)
	r.workers[st.SessionID] = w
	go w.Run()
	return w, nil
}

// Get returns a session worker by id.
func (r *Registry) Get(sessionID string) (*Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return w, nil
}

// Remove stops and deregisters a worker.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	w, ok := r.workers[sessionID]
	delete(r.workers, sessionID)
	r.mu.Unlock()
	if ok {
		w.Stop()
		r.log.Info("session removed", zap.String("session", sessionID))
	}
}

// Each calls fn for every live worker. Used by autosave and shutdown.
func (r *Registry) Each(fn func(*Worker)) {
	r.mu.RLock()
	snapshot := make([]*Worker, 0, len(r.workers))
	for _, w := range r.workers {
		snapshot = append(snapshot, w)
	}
	r.mu.RUnlock()
	for _, w := range snapshot {
		fn(w)
	}
}

// Shutdown stops every worker.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, w := range r.workers {
		w.Stop()
		delete(r.workers, id)
	}
}
