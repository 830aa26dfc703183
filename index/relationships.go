// Package index maintains the join maps between tokens and the secondary
// entities (objectives, settings, games, minters) that facts refer to.
//
// Forward maps go from a secondary id to the set of token ids that reference it.
// Reverse maps go from a secondary id to the last definition fact seen for it, so
// a token fact that arrives after the definition can still be joined against it.
// Entries are only ever added; Reset is the only way to drop them.
package index

import (
	"slices"

	"github.com/b-open-io/gamedata/fact"
	"github.com/b-open-io/gamedata/felt"
)

type tokenSet map[uint64]struct{}

// Relationships is the relationship index. It is not safe for concurrent use;
// the owning store serializes access.
type Relationships struct {
	objectiveToTokens map[uint64]tokenSet
	settingsToTokens  map[uint64]tokenSet
	gameToTokens      map[uint64]tokenSet

	settingsFacts  map[uint64]fact.SettingsCreated
	objectiveFacts map[uint64]fact.ObjectiveCreated
	minterFacts    map[uint64]fact.MinterRegistry
}

// Snapshot is a copy of the forward maps with token ids sorted ascending.
type Snapshot struct {
	ObjectiveToTokens map[uint64][]uint64
	SettingsToTokens  map[uint64][]uint64
	GameToTokens      map[uint64][]uint64
}

// New returns an empty index.
func New() *Relationships {
	r := &Relationships{}
	r.Reset()
	return r
}

// Reset drops every entry.
func (r *Relationships) Reset() {
	r.objectiveToTokens = make(map[uint64]tokenSet)
	r.settingsToTokens = make(map[uint64]tokenSet)
	r.gameToTokens = make(map[uint64]tokenSet)
	r.settingsFacts = make(map[uint64]fact.SettingsCreated)
	r.objectiveFacts = make(map[uint64]fact.ObjectiveCreated)
	r.minterFacts = make(map[uint64]fact.MinterRegistry)
}

// Update records the links and definitions carried by f. Facts whose ids do not
// parse are ignored.
func (r *Relationships) Update(f fact.Fact) {
	switch v := f.(type) {
	case fact.TokenMetadata:
		tokenID, ok := felt.ParseUint(v.TokenID)
		if !ok {
			return
		}
		if settingsID, ok := felt.ParseUint(v.SettingsID); ok {
			add(r.settingsToTokens, settingsID, tokenID)
		}
		if gameID, ok := felt.ParseUint(v.GameID); ok {
			add(r.gameToTokens, gameID, tokenID)
		}
	case fact.ObjectiveAssignment:
		tokenID, ok := felt.ParseUint(v.TokenID)
		if !ok {
			return
		}
		if objectiveID, ok := felt.ParseUint(v.ObjectiveID); ok {
			add(r.objectiveToTokens, objectiveID, tokenID)
		}
	case fact.SettingsCreated:
		if id, ok := felt.ParseUint(v.SettingsID); ok {
			r.settingsFacts[id] = v
		}
	case fact.ObjectiveCreated:
		if id, ok := felt.ParseUint(v.ObjectiveID); ok {
			r.objectiveFacts[id] = v
		}
	case fact.MinterRegistry:
		if id, ok := felt.ParseUint(v.MinterID); ok {
			r.minterFacts[id] = v
		}
	}
}

// AffectedTokens returns the token ids f should be merged into, ascending.
//
// Facts naming a token contribute that token. Definition facts contribute every
// token currently linked to their id, which is none when the definition arrives
// first; the later token fact then performs the join itself. Minter registrations
// are not resolved here: many tokens share a minter and the store scans its
// aggregates for them instead.
func (r *Relationships) AffectedTokens(f fact.Fact) []uint64 {
	switch v := f.(type) {
	case fact.TokenScoped:
		if id, ok := felt.ParseUint(v.Token()); ok {
			return []uint64{id}
		}
		return nil
	case fact.ObjectiveCreated:
		return lookup(r.objectiveToTokens, v.ObjectiveID)
	case fact.SettingsCreated:
		return lookup(r.settingsToTokens, v.SettingsID)
	case fact.GameRegistry:
		return lookup(r.gameToTokens, v.GameID)
	case fact.GameMetadata:
		return lookup(r.gameToTokens, v.GameID)
	}
	return nil
}

// SettingsFact returns the last settings definition seen for id.
func (r *Relationships) SettingsFact(id uint64) (fact.SettingsCreated, bool) {
	f, ok := r.settingsFacts[id]
	return f, ok
}

// ObjectiveFact returns the last objective definition seen for id.
func (r *Relationships) ObjectiveFact(id uint64) (fact.ObjectiveCreated, bool) {
	f, ok := r.objectiveFacts[id]
	return f, ok
}

// MinterFact returns the last minter registration seen for id.
func (r *Relationships) MinterFact(id uint64) (fact.MinterRegistry, bool) {
	f, ok := r.minterFacts[id]
	return f, ok
}

func (r *Relationships) TokensForObjective(id uint64) []uint64 { return sorted(r.objectiveToTokens[id]) }
func (r *Relationships) TokensForSettings(id uint64) []uint64  { return sorted(r.settingsToTokens[id]) }
func (r *Relationships) TokensForGame(id uint64) []uint64      { return sorted(r.gameToTokens[id]) }

// Snapshot copies the forward maps.
func (r *Relationships) Snapshot() Snapshot {
	return Snapshot{
		ObjectiveToTokens: copyForward(r.objectiveToTokens),
		SettingsToTokens:  copyForward(r.settingsToTokens),
		GameToTokens:      copyForward(r.gameToTokens),
	}
}

func add(m map[uint64]tokenSet, key, tokenID uint64) {
	set, ok := m[key]
	if !ok {
		set = make(tokenSet)
		m[key] = set
	}
	set[tokenID] = struct{}{}
}

func lookup(m map[uint64]tokenSet, rawKey string) []uint64 {
	key, ok := felt.ParseUint(rawKey)
	if !ok {
		return nil
	}
	return sorted(m[key])
}

func sorted(set tokenSet) []uint64 {
	if len(set) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func copyForward(m map[uint64]tokenSet) map[uint64][]uint64 {
	out := make(map[uint64][]uint64, len(m))
	for k, set := range m {
		out[k] = sorted(set)
	}
	return out
}
