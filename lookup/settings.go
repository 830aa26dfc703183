package lookup

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/b-open-io/gamedata/fact"
	"github.com/b-open-io/gamedata/felt"
	"github.com/b-open-io/gamedata/internal/notify"
)

// Setting is a settings definition with its owning game resolved.
type Setting struct {
	ID uint64 `json:"id"`
	SettingsData
	GameID      *uint64   `json:"game_id,omitempty"`
	GameAddress string    `json:"game_address,omitempty"`
	Game        *MiniGame `json:"game,omitempty"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

type settingEntry struct {
	id          uint64
	data        SettingsData
	gameID      *uint64
	gameAddress string
	createdBy   string
}

// Settings is the settings lookup store, keyed by settings id. The owning game
// is resolved on read against games, so a game registered after its settings
// still joins.
type Settings struct {
	mu        sync.RWMutex
	byID      map[uint64]settingEntry
	games     *Games
	listeners notify.Listeners[uint64]
}

func NewSettings(games *Games) *Settings {
	return &Settings{byID: make(map[uint64]settingEntry), games: games}
}

// Initialize rebuilds the store from facts. Later facts win per settings id.
func (s *Settings) Initialize(facts []fact.Fact) {
	s.mu.Lock()
	s.byID = make(map[uint64]settingEntry)
	for _, f := range facts {
		if v, ok := f.(fact.SettingsCreated); ok {
			s.apply(v)
		}
	}
	ids := mapKeys(s.byID)
	s.mu.Unlock()
	s.listeners.Notify(ids)
}

// Upsert folds a single fact into the store. It reports whether f was a settings fact.
func (s *Settings) Upsert(f fact.Fact) bool {
	v, ok := f.(fact.SettingsCreated)
	if !ok {
		return false
	}
	s.mu.Lock()
	id, ok := s.apply(v)
	s.mu.Unlock()
	if ok {
		s.listeners.Notify([]uint64{id})
	}
	return ok
}

func (s *Settings) apply(v fact.SettingsCreated) (uint64, bool) {
	id, ok := felt.ParseUint(v.SettingsID)
	if !ok {
		slog.Debug("Dropping settings with unparseable id", "settings_id", v.SettingsID)
		return 0, false
	}
	data, ok := ParseSettingsData(v.Data)
	if !ok {
		slog.Warn("Malformed settings payload", "settings_id", id, "data", v.Data)
	}
	s.byID[id] = settingEntry{
		id:          id,
		data:        data,
		gameID:      felt.ParseUintPtr(v.GameID),
		gameAddress: v.GameAddress,
		createdBy:   v.CreatedBy,
	}
	return id, true
}

func (s *Settings) Clear() {
	s.mu.Lock()
	ids := mapKeys(s.byID)
	s.byID = make(map[uint64]settingEntry)
	s.mu.Unlock()
	s.listeners.Notify(ids)
}

func (s *Settings) Get(id uint64) (Setting, bool) {
	s.mu.RLock()
	e, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return Setting{}, false
	}
	return s.resolve(e), true
}

// All returns every setting ordered by id.
func (s *Settings) All() []Setting {
	s.mu.RLock()
	entries := make([]settingEntry, 0, len(s.byID))
	for _, id := range mapKeys(s.byID) {
		entries = append(entries, s.byID[id])
	}
	s.mu.RUnlock()
	out := make([]Setting, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.resolve(e))
	}
	return out
}

// ForGame returns the settings whose resolved game id is gameID.
func (s *Settings) ForGame(gameID uint64) []Setting {
	var out []Setting
	for _, setting := range s.All() {
		if setting.GameID != nil && *setting.GameID == gameID {
			out = append(out, setting)
		}
	}
	return out
}

func (s *Settings) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *Settings) OnChange(fn func(ids []uint64)) func() {
	return s.listeners.Add(fn)
}

func (s *Settings) resolve(e settingEntry) Setting {
	gameID, game := resolveGame(s.games, e.gameID, e.gameAddress)
	return Setting{
		ID:           e.id,
		SettingsData: e.data.Clone(),
		GameID:       gameID,
		GameAddress:  e.gameAddress,
		Game:         game,
		CreatedBy:    e.createdBy,
	}
}

// resolveGame prefers a directly stated game id and falls back to a reverse
// scan of the games store by contract address.
func resolveGame(games *Games, direct *uint64, addr string) (*uint64, *MiniGame) {
	if direct != nil {
		id := *direct
		if games != nil {
			if g, ok := games.Get(id); ok {
				return &id, &g
			}
		}
		return &id, nil
	}
	if games == nil || addr == "" {
		return nil, nil
	}
	if g, ok := games.GetByContractAddress(addr); ok {
		id := g.ID
		return &id, &g
	}
	return nil, nil
}

func mapKeys[V any](m map[uint64]V) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
