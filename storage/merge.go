package storage

import (
	"log/slog"
	"slices"

	"github.com/b-open-io/gamedata/fact"
	"github.com/b-open-io/gamedata/felt"
	"github.com/b-open-io/gamedata/lookup"
)

// merge folds f into t. Joins against other entities go through the store's
// relationship index and games lookup. Unknown kinds are ignored.
func (s *TokenStore) merge(t *GameToken, f fact.Fact) {
	switch v := f.(type) {
	case fact.TokenMetadata:
		s.mergeMetadata(t, v)
	case fact.Owner:
		t.Owner = v.Owner
	case fact.PlayerName:
		t.PlayerName = felt.DecodeShortString(v.Name)
	case fact.ObjectiveAssignment:
		if id, ok := felt.ParseUint(v.ObjectiveID); ok && !t.HasObjective(id) {
			t.ObjectiveIDs = append(t.ObjectiveIDs, id)
		}
	case fact.Score:
		score, _ := felt.ParseUint(v.Score)
		t.Score = score
	case fact.Context:
		c := ParseContext(v.Raw)
		t.Context = &c
	case fact.SettingsCreated:
		id, ok := felt.ParseUint(v.SettingsID)
		if !ok || (t.SettingsID != nil && *t.SettingsID != id) {
			return
		}
		t.Settings = parseSettings(id, v.Data)
	case fact.Renderer:
		t.Renderer = v.Renderer
	case fact.ClientURL:
		t.ClientURL = v.URL
	case fact.GameMetadata:
		id, ok := felt.ParseUint(v.GameID)
		if !ok || t.GameID == nil || *t.GameID != id {
			return
		}
		if game, ok := s.games.Get(id); ok {
			t.GameMetadata = &game
			return
		}
		game := lookup.FromMetadata(id, v)
		t.GameMetadata = &game
	case fact.GameRegistry:
		id, ok := felt.ParseUint(v.GameID)
		if !ok || t.GameID == nil || *t.GameID != id {
			return
		}
		if game, ok := s.games.Get(id); ok {
			t.GameMetadata = &game
		} else if t.GameMetadata != nil && v.ContractAddress != "" {
			t.GameMetadata.ContractAddress = v.ContractAddress
		}
	case fact.ObjectiveCreated, fact.MinterRegistry:
		// Objective definitions live in the lookup store; minters are broadcast by Upsert.
	}
}

// mergeMetadata applies the primary metadata fact. It is authoritative for the
// fields it carries, then joins settings, game and minter.
func (s *TokenStore) mergeMetadata(t *GameToken, v fact.TokenMetadata) {
	t.GameID = felt.ParseUintPtr(v.GameID)
	t.GameOver = &v.GameOver
	t.Lifecycle = &Lifecycle{
		Start: felt.ParseUintPtr(v.LifecycleStart),
		End:   felt.ParseUintPtr(v.LifecycleEnd),
	}
	t.MintedAt = felt.ParseUintPtr(v.MintedAt)
	t.MintedBy = felt.ParseUintPtr(v.MintedBy)
	t.SettingsID = felt.ParseUintPtr(v.SettingsID)
	t.Soulbound = &v.Soulbound
	t.CompletedAllObjectives = &v.CompletedAllObjectives

	if t.SettingsID != nil {
		if sf, ok := s.index.SettingsFact(*t.SettingsID); ok {
			t.Settings = parseSettings(*t.SettingsID, sf.Data)
		}
	}
	if t.GameID != nil {
		if game, ok := s.games.Get(*t.GameID); ok {
			t.GameMetadata = &game
		} else if t.GameMetadata != nil && t.GameMetadata.ID != *t.GameID {
			t.GameMetadata = nil
		}
	}
	if t.MintedBy != nil {
		if mf, ok := s.index.MinterFact(*t.MintedBy); ok {
			t.MintedByAddress = mf.Address
		}
	}
}

func parseSettings(id uint64, raw string) *lookup.SettingsData {
	data, ok := lookup.ParseSettingsData(raw)
	if !ok {
		slog.Warn("Malformed settings payload", "settings_id", id)
	}
	return &data
}

// mergeOrder returns facts ordered for folding into one token: every other
// kind in arrival order, then primary metadata facts by mint time, oldest first.
func mergeOrder(facts []fact.Fact) []fact.Fact {
	out := make([]fact.Fact, 0, len(facts))
	var primary []fact.TokenMetadata
	for _, f := range facts {
		if m, ok := f.(fact.TokenMetadata); ok {
			primary = append(primary, m)
			continue
		}
		out = append(out, f)
	}
	slices.SortStableFunc(primary, func(a, b fact.TokenMetadata) int {
		ta, _ := felt.ParseUint(a.MintedAt)
		tb, _ := felt.ParseUint(b.MintedAt)
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		}
		return 0
	})
	for _, m := range primary {
		out = append(out, m)
	}
	return out
}
