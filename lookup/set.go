package lookup

import "github.com/b-open-io/gamedata/fact"

// Set groups the three lookup stores. Settings and objectives resolve their
// owning game against Games.
type Set struct {
	Games      *Games
	Settings   *Settings
	Objectives *Objectives
}

func NewSet() *Set {
	games := NewGames()
	return &Set{
		Games:      games,
		Settings:   NewSettings(games),
		Objectives: NewObjectives(games),
	}
}

// Initialize rebuilds every store from facts.
func (s *Set) Initialize(facts []fact.Fact) {
	s.Games.Initialize(facts)
	s.Settings.Initialize(facts)
	s.Objectives.Initialize(facts)
}

// Apply routes f to the store that owns its kind. It reports whether any store
// took it.
func (s *Set) Apply(f fact.Fact) bool {
	switch f.(type) {
	case fact.GameMetadata, fact.GameRegistry:
		return s.Games.Upsert(f)
	case fact.SettingsCreated:
		return s.Settings.Upsert(f)
	case fact.ObjectiveCreated:
		return s.Objectives.Upsert(f)
	}
	return false
}

// Clear empties all three stores.
func (s *Set) Clear() {
	s.Games.Clear()
	s.Settings.Clear()
	s.Objectives.Clear()
}
