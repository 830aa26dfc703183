package lookup

import (
	"slices"
	"sync"

	"github.com/b-open-io/gamedata/fact"
	"github.com/b-open-io/gamedata/felt"
	"github.com/b-open-io/gamedata/internal/notify"
)

// MiniGame is a registered game contract and its display metadata.
type MiniGame struct {
	ID              uint64 `json:"id"`
	ContractAddress string `json:"contract_address"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Developer       string `json:"developer"`
	Publisher       string `json:"publisher"`
	Genre           string `json:"genre"`
	Image           string `json:"image"`
	Color           string `json:"color"`
	ClientURL       string `json:"client_url"`
	RendererAddress string `json:"renderer_address"`
}

// Games is the mini-game lookup store, keyed by game id.
type Games struct {
	mu        sync.RWMutex
	byID      map[uint64]MiniGame
	listeners notify.Listeners[uint64]
}

func NewGames() *Games {
	return &Games{byID: make(map[uint64]MiniGame)}
}

// Initialize rebuilds the store from facts. Later facts win per game id.
func (g *Games) Initialize(facts []fact.Fact) {
	g.mu.Lock()
	g.byID = make(map[uint64]MiniGame)
	for _, f := range facts {
		g.apply(f)
	}
	ids := g.keys()
	g.mu.Unlock()
	g.listeners.Notify(ids)
}

// Upsert folds a single fact into the store. It reports whether f was a game fact.
func (g *Games) Upsert(f fact.Fact) bool {
	g.mu.Lock()
	id, ok := g.apply(f)
	g.mu.Unlock()
	if ok {
		g.listeners.Notify([]uint64{id})
	}
	return ok
}

func (g *Games) apply(f fact.Fact) (uint64, bool) {
	switch v := f.(type) {
	case fact.GameMetadata:
		id, ok := felt.ParseUint(v.GameID)
		if !ok {
			return 0, false
		}
		game := FromMetadata(id, v)
		if game.ContractAddress == "" {
			game.ContractAddress = g.byID[id].ContractAddress
		}
		g.byID[id] = game
		return id, true
	case fact.GameRegistry:
		id, ok := felt.ParseUint(v.GameID)
		if !ok {
			return 0, false
		}
		game := g.byID[id]
		game.ID = id
		if v.ContractAddress != "" {
			game.ContractAddress = v.ContractAddress
		}
		g.byID[id] = game
		return id, true
	}
	return 0, false
}

// FromMetadata builds a MiniGame from its metadata fact.
func FromMetadata(id uint64, v fact.GameMetadata) MiniGame {
	return MiniGame{
		ID:              id,
		ContractAddress: v.ContractAddress,
		Name:            v.Name,
		Description:     v.Description,
		Developer:       v.Developer,
		Publisher:       v.Publisher,
		Genre:           v.Genre,
		Image:           v.Image,
		Color:           v.Color,
		ClientURL:       v.ClientURL,
		RendererAddress: v.RendererAddress,
	}
}

func (g *Games) Clear() {
	g.mu.Lock()
	ids := g.keys()
	g.byID = make(map[uint64]MiniGame)
	g.mu.Unlock()
	g.listeners.Notify(ids)
}

func (g *Games) Get(id uint64) (MiniGame, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	game, ok := g.byID[id]
	return game, ok
}

// GetByContractAddress scans for the game deployed at addr. Addresses are
// compared in padded form.
func (g *Games) GetByContractAddress(addr string) (MiniGame, bool) {
	if addr == "" {
		return MiniGame{}, false
	}
	padded := felt.PadAddress(addr)
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, game := range g.byID {
		if game.ContractAddress != "" && felt.PadAddress(game.ContractAddress) == padded {
			return game, true
		}
	}
	return MiniGame{}, false
}

// All returns every game ordered by id.
func (g *Games) All() []MiniGame {
	g.mu.RLock()
	defer g.mu.RUnlock()
	games := make([]MiniGame, 0, len(g.byID))
	for _, id := range g.keys() {
		games = append(games, g.byID[id])
	}
	return games
}

func (g *Games) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byID)
}

// OnChange registers fn to be called with the ids of changed games.
func (g *Games) OnChange(fn func(ids []uint64)) func() {
	return g.listeners.Add(fn)
}

func (g *Games) keys() []uint64 {
	ids := make([]uint64, 0, len(g.byID))
	for id := range g.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
