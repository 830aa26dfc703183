// Package query filters, sorts and paginates merged game tokens. Everything
// here is a pure function over token slices.
package query

import (
	"slices"

	"github.com/b-open-io/gamedata/felt"
	"github.com/b-open-io/gamedata/storage"
)

// Criteria selects tokens. Zero-valued fields do not constrain; set fields are
// combined with AND.
type Criteria struct {
	Owner                  string            `json:"owner,omitempty"`
	GameAddresses          []string          `json:"game_addresses,omitempty"`
	TokenIDs               []uint64          `json:"token_ids,omitempty"`
	HasContext             *bool             `json:"has_context,omitempty"`
	ContextName            string            `json:"context_name,omitempty"`
	ContextAttributes      map[string]string `json:"context_attributes,omitempty"`
	SettingsID             *uint64           `json:"settings_id,omitempty"`
	CompletedAllObjectives *bool             `json:"completed_all_objectives,omitempty"`
	Soulbound              *bool             `json:"soulbound,omitempty"`
	ObjectiveID            *uint64           `json:"objective_id,omitempty"`
	MintedByAddress        string            `json:"minted_by_address,omitempty"`
}

// IsZero reports whether s places no constraint at all.
func (s Criteria) IsZero() bool {
	return s.Owner == "" && len(s.GameAddresses) == 0 && len(s.TokenIDs) == 0 &&
		s.HasContext == nil && s.ContextName == "" && len(s.ContextAttributes) == 0 &&
		s.SettingsID == nil && s.CompletedAllObjectives == nil && s.Soulbound == nil &&
		s.ObjectiveID == nil && s.MintedByAddress == ""
}

// Filter returns the tokens matching criteria, preserving input order.
func Filter(tokens []storage.GameToken, criteria Criteria) []storage.GameToken {
	if criteria.IsZero() {
		return slices.Clone(tokens)
	}
	m := criteria.Matcher()
	out := make([]storage.GameToken, 0, len(tokens))
	for i := range tokens {
		if m(&tokens[i]) {
			out = append(out, tokens[i])
		}
	}
	return out
}

// Matcher compiles criteria into a predicate, suitable for storage.TokenStore.Filter.
func (s Criteria) Matcher() func(*storage.GameToken) bool {
	owner := ""
	if s.Owner != "" {
		owner = felt.PadAddress(s.Owner)
	}
	minter := ""
	if s.MintedByAddress != "" {
		minter = felt.PadAddress(s.MintedByAddress)
	}
	var games map[string]struct{}
	if len(s.GameAddresses) > 0 {
		games = make(map[string]struct{}, len(s.GameAddresses))
		for _, a := range s.GameAddresses {
			games[felt.PadAddress(a)] = struct{}{}
		}
	}
	var ids map[uint64]struct{}
	if len(s.TokenIDs) > 0 {
		ids = make(map[uint64]struct{}, len(s.TokenIDs))
		for _, id := range s.TokenIDs {
			ids[id] = struct{}{}
		}
	}

	return func(t *storage.GameToken) bool {
		if owner != "" && (t.Owner == "" || felt.PadAddress(t.Owner) != owner) {
			return false
		}
		if games != nil {
			if t.GameMetadata == nil || t.GameMetadata.ContractAddress == "" {
				return false
			}
			if _, ok := games[felt.PadAddress(t.GameMetadata.ContractAddress)]; !ok {
				return false
			}
		}
		if ids != nil {
			if _, ok := ids[t.TokenID]; !ok {
				return false
			}
		}
		if s.HasContext != nil && (t.Context != nil) != *s.HasContext {
			return false
		}
		if s.ContextName != "" && (t.Context == nil || t.Context.Name != s.ContextName) {
			return false
		}
		for k, v := range s.ContextAttributes {
			if t.Context == nil {
				return false
			}
			if got, ok := t.Context.Attributes[k]; !ok || got != v {
				return false
			}
		}
		if s.SettingsID != nil && (t.SettingsID == nil || *t.SettingsID != *s.SettingsID) {
			return false
		}
		if !boolMatches(s.CompletedAllObjectives, t.CompletedAllObjectives) {
			return false
		}
		if !boolMatches(s.Soulbound, t.Soulbound) {
			return false
		}
		if s.ObjectiveID != nil && !t.HasObjective(*s.ObjectiveID) {
			return false
		}
		if minter != "" && (t.MintedByAddress == "" || felt.PadAddress(t.MintedByAddress) != minter) {
			return false
		}
		return true
	}
}

// boolMatches treats an unknown flag as false.
func boolMatches(want, got *bool) bool {
	if want == nil {
		return true
	}
	return (got != nil && *got) == *want
}
