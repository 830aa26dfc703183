package storage

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/b-open-io/gamedata/lookup"
)

// Lifecycle is the playable window of a token. Either bound may be unknown.
type Lifecycle struct {
	Start *uint64 `json:"start,omitempty"`
	End   *uint64 `json:"end,omitempty"`
}

// TokenContext is the parsed context a token was minted under.
type TokenContext struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Attributes  map[string]string `json:"attributes"`
}

// GameToken is the merged view of one token, folded from every fact that
// refers to it. Pointer fields are nil until a fact sets them.
type GameToken struct {
	TokenID                uint64               `json:"token_id"`
	GameID                 *uint64              `json:"game_id,omitempty"`
	GameOver               *bool                `json:"game_over,omitempty"`
	Lifecycle              *Lifecycle           `json:"lifecycle,omitempty"`
	MintedAt               *uint64              `json:"minted_at,omitempty"`
	MintedBy               *uint64              `json:"minted_by,omitempty"`
	MintedByAddress        string               `json:"minted_by_address,omitempty"`
	Owner                  string               `json:"owner,omitempty"`
	SettingsID             *uint64              `json:"settings_id,omitempty"`
	Soulbound              *bool                `json:"soulbound,omitempty"`
	CompletedAllObjectives *bool                `json:"completed_all_objectives,omitempty"`
	PlayerName             string               `json:"player_name,omitempty"`
	Metadata               json.RawMessage      `json:"metadata,omitempty"`
	Context                *TokenContext        `json:"context,omitempty"`
	Settings               *lookup.SettingsData `json:"settings,omitempty"`
	Score                  uint64               `json:"score"`
	ObjectiveIDs           []uint64             `json:"objective_ids,omitempty"`
	Renderer               string               `json:"renderer,omitempty"`
	ClientURL              string               `json:"client_url,omitempty"`
	GameMetadata           *lookup.MiniGame     `json:"game_metadata,omitempty"`
}

func newToken(id uint64) *GameToken {
	return &GameToken{TokenID: id}
}

// HasObjective reports whether id is among the token's objectives.
func (t *GameToken) HasObjective(id uint64) bool {
	return slices.Contains(t.ObjectiveIDs, id)
}

// Clone returns a deep copy of t.
func (t *GameToken) Clone() GameToken {
	out := *t
	out.GameID = clonePtr(t.GameID)
	out.GameOver = clonePtr(t.GameOver)
	out.MintedAt = clonePtr(t.MintedAt)
	out.MintedBy = clonePtr(t.MintedBy)
	out.SettingsID = clonePtr(t.SettingsID)
	out.Soulbound = clonePtr(t.Soulbound)
	out.CompletedAllObjectives = clonePtr(t.CompletedAllObjectives)
	if t.Lifecycle != nil {
		out.Lifecycle = &Lifecycle{Start: clonePtr(t.Lifecycle.Start), End: clonePtr(t.Lifecycle.End)}
	}
	if t.Metadata != nil {
		out.Metadata = slices.Clone(t.Metadata)
	}
	if t.Context != nil {
		c := *t.Context
		c.Attributes = maps.Clone(t.Context.Attributes)
		out.Context = &c
	}
	if t.Settings != nil {
		s := t.Settings.Clone()
		out.Settings = &s
	}
	if t.ObjectiveIDs != nil {
		out.ObjectiveIDs = slices.Clone(t.ObjectiveIDs)
	}
	out.GameMetadata = clonePtr(t.GameMetadata)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
