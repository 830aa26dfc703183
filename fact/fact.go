// Package fact defines the partial update records delivered by the indexer.
//
// An EntityRecord carries one or more facts about some entity. Each fact is a
// concrete struct implementing the sealed Fact interface, so consumers switch on
// the concrete type and a new kind is a compile-visible change. Numeric values are
// kept raw and coerced by the consumer, which lets a single bad field degrade on
// its own instead of invalidating the whole fact.
package fact

// Kind identifies the concrete type of a Fact.
type Kind int

const (
	KindUnknown Kind = iota
	KindTokenMetadata
	KindOwner
	KindPlayerName
	KindScore
	KindContext
	KindObjectiveAssignment
	KindSettingsCreated
	KindObjectiveCreated
	KindRenderer
	KindClientURL
	KindGameMetadata
	KindMinterRegistry
	KindGameRegistry
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindTokenMetadata:       "token_metadata",
	KindOwner:               "owner",
	KindPlayerName:          "player_name",
	KindScore:               "score",
	KindContext:             "context",
	KindObjectiveAssignment: "objective_assignment",
	KindSettingsCreated:     "settings_created",
	KindObjectiveCreated:    "objective_created",
	KindRenderer:            "renderer",
	KindClientURL:           "client_url",
	KindGameMetadata:        "game_metadata",
	KindMinterRegistry:      "minter_registry",
	KindGameRegistry:        "game_registry",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Fact is one typed payload describing part of an entity's state.
type Fact interface {
	Kind() Kind
	isFact()
}

// TokenScoped is implemented by facts that name the token they belong to.
type TokenScoped interface {
	Fact
	Token() string
}

// EntityRecord is one inbound update: an opaque entity id plus its facts.
type EntityRecord struct {
	ID    string
	Facts []Fact
}

// TokenMetadata is the primary, authoritative fact for a token's mint-time fields.
type TokenMetadata struct {
	TokenID                string
	GameID                 string
	GameOver               bool
	LifecycleStart         string
	LifecycleEnd           string
	MintedAt               string
	MintedBy               string
	SettingsID             string
	Soulbound              bool
	CompletedAllObjectives bool
}

type Owner struct {
	TokenID string
	Owner   string
}

type PlayerName struct {
	TokenID string
	Name    string // felt-encoded short string
}

type Score struct {
	TokenID string
	Score   string
}

// Context carries the raw context payload: a JSON object or a JSON string.
type Context struct {
	TokenID string
	Raw     string
}

// ObjectiveAssignment links a token to an objective.
type ObjectiveAssignment struct {
	TokenID     string
	ObjectiveID string
}

// SettingsCreated defines a settings entry for a game.
type SettingsCreated struct {
	SettingsID  string
	GameID      string
	GameAddress string
	CreatedBy   string
	Data        string
}

// ObjectiveCreated defines an objective for a game.
type ObjectiveCreated struct {
	ObjectiveID string
	GameID      string
	GameAddress string
	Data        string
}

type Renderer struct {
	TokenID  string
	Renderer string
}

type ClientURL struct {
	TokenID string
	URL     string
}

// GameMetadata describes a registered mini-game.
type GameMetadata struct {
	GameID          string
	ContractAddress string
	Name            string
	Description     string
	Developer       string
	Publisher       string
	Genre           string
	Image           string
	Color           string
	ClientURL       string
	RendererAddress string
}

// MinterRegistry resolves a minter id to its address.
type MinterRegistry struct {
	MinterID string
	Address  string
}

// GameRegistry maps a game id to its contract address.
type GameRegistry struct {
	GameID          string
	ContractAddress string
}

func (TokenMetadata) Kind() Kind       { return KindTokenMetadata }
func (Owner) Kind() Kind               { return KindOwner }
func (PlayerName) Kind() Kind          { return KindPlayerName }
func (Score) Kind() Kind               { return KindScore }
func (Context) Kind() Kind             { return KindContext }
func (ObjectiveAssignment) Kind() Kind { return KindObjectiveAssignment }
func (SettingsCreated) Kind() Kind     { return KindSettingsCreated }
func (ObjectiveCreated) Kind() Kind    { return KindObjectiveCreated }
func (Renderer) Kind() Kind            { return KindRenderer }
func (ClientURL) Kind() Kind           { return KindClientURL }
func (GameMetadata) Kind() Kind        { return KindGameMetadata }
func (MinterRegistry) Kind() Kind      { return KindMinterRegistry }
func (GameRegistry) Kind() Kind        { return KindGameRegistry }

func (TokenMetadata) isFact()       {}
func (Owner) isFact()               {}
func (PlayerName) isFact()          {}
func (Score) isFact()               {}
func (Context) isFact()             {}
func (ObjectiveAssignment) isFact() {}
func (SettingsCreated) isFact()     {}
func (ObjectiveCreated) isFact()    {}
func (Renderer) isFact()            {}
func (ClientURL) isFact()           {}
func (GameMetadata) isFact()        {}
func (MinterRegistry) isFact()      {}
func (GameRegistry) isFact()        {}

func (f TokenMetadata) Token() string       { return f.TokenID }
func (f Owner) Token() string               { return f.TokenID }
func (f PlayerName) Token() string          { return f.TokenID }
func (f Score) Token() string               { return f.TokenID }
func (f Context) Token() string             { return f.TokenID }
func (f ObjectiveAssignment) Token() string { return f.TokenID }
func (f Renderer) Token() string            { return f.TokenID }
func (f ClientURL) Token() string           { return f.TokenID }

// Flatten returns every fact of every record, preserving order.
func Flatten(records []EntityRecord) []Fact {
	n := 0
	for _, r := range records {
		n += len(r.Facts)
	}
	facts := make([]Fact, 0, n)
	for _, r := range records {
		facts = append(facts, r.Facts...)
	}
	return facts
}
