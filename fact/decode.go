package fact

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/b-open-io/gamedata/felt"
)

// ErrInvalidPayload is returned when an entity payload is not valid JSON.
var ErrInvalidPayload = errors.New("invalid entity payload")

type decoder func(m gjson.Result) Fact

// Model names are matched on the suffix after the namespace separator.
var decoders = map[string]decoder{
	"TokenMetadataUpdate":   decodeTokenMetadata,
	"TokenMetadata":         decodeTokenMetadata,
	"OwnerUpdate":           decodeOwner,
	"TokenOwnerUpdate":      decodeOwner,
	"TokenPlayerNameUpdate": decodePlayerName,
	"PlayerNameUpdate":      decodePlayerName,
	"TokenScoreUpdate":      decodeScore,
	"ScoreUpdate":           decodeScore,
	"TokenContextUpdate":    decodeContext,
	"ContextUpdate":         decodeContext,
	"ObjectiveUpdate":       decodeObjectiveAssignment,
	"TokenObjectiveUpdate":  decodeObjectiveAssignment,
	"SettingsCreated":       decodeSettingsCreated,
	"SettingsUpdate":        decodeSettingsCreated,
	"ObjectiveCreated":      decodeObjectiveCreated,
	"TokenRendererUpdate":   decodeRenderer,
	"TokenClientUrlUpdate":  decodeClientURL,
	"GameMetadataUpdate":    decodeGameMetadata,
	"MinterRegistryUpdate":  decodeMinterRegistry,
	"GameRegistryUpdate":    decodeGameRegistry,
}

// ModelName strips any namespace prefix ("ns-Model" or "ns.Model").
func ModelName(name string) string {
	if i := strings.LastIndexAny(name, "-."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// DecodeEntity decodes a single indexer entity. Unknown models are skipped.
func DecodeEntity(data []byte) (EntityRecord, error) {
	if !gjson.ValidBytes(data) {
		return EntityRecord{}, ErrInvalidPayload
	}
	return decodeEntity(gjson.ParseBytes(data)), nil
}

// DecodeEntities decodes a list of entities. The list may be a bare array or
// wrapped in an "items", "entities" or "data" field.
func DecodeEntities(data []byte) ([]EntityRecord, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidPayload
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		for _, key := range []string{"items", "entities", "data"} {
			if v := root.Get(key); v.IsArray() {
				root = v
				break
			}
		}
	}
	if !root.IsArray() {
		if root.IsObject() {
			return []EntityRecord{decodeEntity(root)}, nil
		}
		return nil, ErrInvalidPayload
	}
	records := make([]EntityRecord, 0, len(root.Array()))
	root.ForEach(func(_, value gjson.Result) bool {
		records = append(records, decodeEntity(value))
		return true
	})
	return records, nil
}

func decodeEntity(e gjson.Result) EntityRecord {
	rec := EntityRecord{ID: firstString(e, "entityId", "entity_id", "hashed_keys", "id")}
	models := e.Get("models")
	if !models.Exists() {
		models = e
	}
	models.ForEach(func(key, value gjson.Result) bool {
		if dec, ok := decoders[ModelName(key.String())]; ok {
			if f := dec(value); f != nil {
				rec.Facts = append(rec.Facts, f)
			}
			return true
		}
		// One level of namespace nesting.
		if value.IsObject() {
			value.ForEach(func(inner, model gjson.Result) bool {
				if dec, ok := decoders[ModelName(inner.String())]; ok {
					if f := dec(model); f != nil {
						rec.Facts = append(rec.Facts, f)
					}
				}
				return true
			})
		}
		return true
	})
	return rec
}

// unwrap peels primitive wrappers ({"value": x}) and Cairo options ({"Some": x}).
func unwrap(v gjson.Result) gjson.Result {
	for v.IsObject() {
		switch {
		case v.Get("Some").Exists():
			v = v.Get("Some")
		case v.Get("value").Exists() && v.Get("type").Exists():
			v = v.Get("value")
		default:
			return v
		}
	}
	return v
}

func firstString(m gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := unwrap(m.Get(k)); v.Exists() && v.Type != gjson.Null {
			if v.Get("None").Exists() {
				return ""
			}
			return v.String()
		}
	}
	return ""
}

func firstBool(m gjson.Result, keys ...string) bool {
	for _, k := range keys {
		v := unwrap(m.Get(k))
		if !v.Exists() {
			continue
		}
		// felt-encoded flags arrive as "0x1" or "1".
		if v.Type == gjson.String {
			if n, ok := felt.ParseUint(v.String()); ok {
				return n != 0
			}
		}
		return v.Bool()
	}
	return false
}

func decodeTokenMetadata(m gjson.Result) Fact {
	start := firstString(m, "lifecycle_start", "lifecycle.start")
	end := firstString(m, "lifecycle_end", "lifecycle.end")
	return TokenMetadata{
		TokenID:                firstString(m, "token_id", "id"),
		GameID:                 firstString(m, "game_id"),
		GameOver:               firstBool(m, "game_over"),
		LifecycleStart:         start,
		LifecycleEnd:           end,
		MintedAt:               firstString(m, "minted_at"),
		MintedBy:               firstString(m, "minted_by"),
		SettingsID:             firstString(m, "settings_id"),
		Soulbound:              firstBool(m, "soulbound"),
		CompletedAllObjectives: firstBool(m, "completed_all_objectives"),
	}
}

func decodeOwner(m gjson.Result) Fact {
	return Owner{TokenID: firstString(m, "token_id", "id"), Owner: firstString(m, "owner")}
}

func decodePlayerName(m gjson.Result) Fact {
	return PlayerName{TokenID: firstString(m, "token_id", "id"), Name: firstString(m, "player_name", "name")}
}

func decodeScore(m gjson.Result) Fact {
	return Score{TokenID: firstString(m, "token_id", "id"), Score: firstString(m, "score")}
}

func decodeContext(m gjson.Result) Fact {
	return Context{TokenID: firstString(m, "token_id", "id"), Raw: firstString(m, "context", "context_data", "data")}
}

func decodeObjectiveAssignment(m gjson.Result) Fact {
	return ObjectiveAssignment{TokenID: firstString(m, "token_id"), ObjectiveID: firstString(m, "objective_id")}
}

func decodeSettingsCreated(m gjson.Result) Fact {
	return SettingsCreated{
		SettingsID:  firstString(m, "settings_id", "id"),
		GameID:      firstString(m, "game_id"),
		GameAddress: firstString(m, "game_address", "contract_address"),
		CreatedBy:   firstString(m, "created_by"),
		Data:        firstString(m, "settings_data", "data"),
	}
}

func decodeObjectiveCreated(m gjson.Result) Fact {
	return ObjectiveCreated{
		ObjectiveID: firstString(m, "objective_id", "id"),
		GameID:      firstString(m, "game_id"),
		GameAddress: firstString(m, "game_address", "contract_address"),
		Data:        firstString(m, "objective_data", "data"),
	}
}

func decodeRenderer(m gjson.Result) Fact {
	return Renderer{TokenID: firstString(m, "token_id", "id"), Renderer: firstString(m, "renderer_address", "renderer")}
}

func decodeClientURL(m gjson.Result) Fact {
	return ClientURL{TokenID: firstString(m, "token_id", "id"), URL: firstString(m, "client_url", "url")}
}

func decodeGameMetadata(m gjson.Result) Fact {
	meta := m.Get("metadata")
	if !meta.Exists() {
		meta = m
	}
	return GameMetadata{
		GameID:          firstString(m, "game_id", "id"),
		ContractAddress: firstString(meta, "contract_address", "game_address"),
		Name:            firstString(meta, "name"),
		Description:     firstString(meta, "description"),
		Developer:       firstString(meta, "developer"),
		Publisher:       firstString(meta, "publisher"),
		Genre:           firstString(meta, "genre"),
		Image:           firstString(meta, "image"),
		Color:           firstString(meta, "color"),
		ClientURL:       firstString(meta, "client_url"),
		RendererAddress: firstString(meta, "renderer_address"),
	}
}

func decodeMinterRegistry(m gjson.Result) Fact {
	return MinterRegistry{MinterID: firstString(m, "minter_id", "id"), Address: firstString(m, "minter_address", "address")}
}

func decodeGameRegistry(m gjson.Result) Fact {
	return GameRegistry{GameID: firstString(m, "game_id", "id"), ContractAddress: firstString(m, "contract_address", "game_address")}
}
