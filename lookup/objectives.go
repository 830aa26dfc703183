package lookup

import (
	"log/slog"
	"sync"

	"github.com/b-open-io/gamedata/fact"
	"github.com/b-open-io/gamedata/felt"
	"github.com/b-open-io/gamedata/internal/notify"
)

// Objective is an objective definition with its owning game resolved.
type Objective struct {
	ID          uint64    `json:"id"`
	Data        string    `json:"data"`
	GameID      *uint64   `json:"game_id,omitempty"`
	GameAddress string    `json:"game_address,omitempty"`
	Game        *MiniGame `json:"game,omitempty"`
}

type objectiveEntry struct {
	id          uint64
	data        string
	gameID      *uint64
	gameAddress string
}

// Objectives is the objective lookup store, keyed by objective id.
type Objectives struct {
	mu        sync.RWMutex
	byID      map[uint64]objectiveEntry
	games     *Games
	listeners notify.Listeners[uint64]
}

func NewObjectives(games *Games) *Objectives {
	return &Objectives{byID: make(map[uint64]objectiveEntry), games: games}
}

// Initialize rebuilds the store from facts. Later facts win per objective id.
func (o *Objectives) Initialize(facts []fact.Fact) {
	o.mu.Lock()
	o.byID = make(map[uint64]objectiveEntry)
	for _, f := range facts {
		if v, ok := f.(fact.ObjectiveCreated); ok {
			o.apply(v)
		}
	}
	ids := mapKeys(o.byID)
	o.mu.Unlock()
	o.listeners.Notify(ids)
}

// Upsert folds a single fact into the store. It reports whether f was an objective fact.
func (o *Objectives) Upsert(f fact.Fact) bool {
	v, ok := f.(fact.ObjectiveCreated)
	if !ok {
		return false
	}
	o.mu.Lock()
	id, ok := o.apply(v)
	o.mu.Unlock()
	if ok {
		o.listeners.Notify([]uint64{id})
	}
	return ok
}

func (o *Objectives) apply(v fact.ObjectiveCreated) (uint64, bool) {
	id, ok := felt.ParseUint(v.ObjectiveID)
	if !ok {
		slog.Debug("Dropping objective with unparseable id", "objective_id", v.ObjectiveID)
		return 0, false
	}
	o.byID[id] = objectiveEntry{
		id:          id,
		data:        v.Data,
		gameID:      felt.ParseUintPtr(v.GameID),
		gameAddress: v.GameAddress,
	}
	return id, true
}

func (o *Objectives) Clear() {
	o.mu.Lock()
	ids := mapKeys(o.byID)
	o.byID = make(map[uint64]objectiveEntry)
	o.mu.Unlock()
	o.listeners.Notify(ids)
}

func (o *Objectives) Get(id uint64) (Objective, bool) {
	o.mu.RLock()
	e, ok := o.byID[id]
	o.mu.RUnlock()
	if !ok {
		return Objective{}, false
	}
	return o.resolve(e), true
}

// All returns every objective ordered by id.
func (o *Objectives) All() []Objective {
	o.mu.RLock()
	entries := make([]objectiveEntry, 0, len(o.byID))
	for _, id := range mapKeys(o.byID) {
		entries = append(entries, o.byID[id])
	}
	o.mu.RUnlock()
	out := make([]Objective, 0, len(entries))
	for _, e := range entries {
		out = append(out, o.resolve(e))
	}
	return out
}

// ForGame returns the objectives among ids that belong to gameID, in the order
// of ids. Unknown ids are skipped.
func (o *Objectives) ForGame(ids []uint64, gameID uint64) []Objective {
	var out []Objective
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		obj, ok := o.Get(id)
		if !ok || obj.GameID == nil || *obj.GameID != gameID {
			continue
		}
		out = append(out, obj)
	}
	return out
}

func (o *Objectives) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.byID)
}

func (o *Objectives) OnChange(fn func(ids []uint64)) func() {
	return o.listeners.Add(fn)
}

func (o *Objectives) resolve(e objectiveEntry) Objective {
	gameID, game := resolveGame(o.games, e.gameID, e.gameAddress)
	return Objective{
		ID:          e.id,
		Data:        e.data,
		GameID:      gameID,
		GameAddress: e.gameAddress,
		Game:        game,
	}
}
