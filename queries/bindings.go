package queries

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/b-open-io/gamedata/felt"
	"github.com/b-open-io/gamedata/lookup"
	"github.com/b-open-io/gamedata/sqlclient"
)

// Executor runs one SQL statement. *sqlclient.Client implements it.
type Executor interface {
	Execute(ctx context.Context, query string) ([]sqlclient.Row, error)
}

// LeaderboardEntry is one scored token.
type LeaderboardEntry struct {
	TokenID    uint64 `json:"token_id"`
	Score      uint64 `json:"score"`
	PlayerName string `json:"player_name"`
	Owner      string `json:"owner"`
}

// Bindings creates queries against the tables of one namespace.
type Bindings struct {
	exec      Executor
	namespace string
}

func New(exec Executor, namespace string) *Bindings {
	return &Bindings{exec: exec, namespace: namespace}
}

func bind[T any](b *Bindings, query string, initial T, parse func([]sqlclient.Row) T) *Query[T] {
	return NewQuery(initial, func(ctx context.Context) (T, error) {
		rows, err := b.exec.Execute(ctx, query)
		if err != nil {
			var zero T
			return zero, err
		}
		return parse(rows), nil
	})
}

// Games lists every registered mini-game.
func (b *Bindings) Games() *Query[[]lookup.MiniGame] {
	return bind(b, gamesSQL(b.namespace), []lookup.MiniGame{}, parseGames)
}

// GameByAddress finds the game deployed at addr. Data is nil when there is none.
func (b *Bindings) GameByAddress(addr string) *Query[*lookup.MiniGame] {
	return bind(b, gameByAddressSQL(b.namespace, addr), nil, func(rows []sqlclient.Row) *lookup.MiniGame {
		games := parseGames(rows)
		if len(games) == 0 {
			return nil
		}
		return &games[0]
	})
}

func (b *Bindings) SettingsForGame(gameAddress string) *Query[[]lookup.Setting] {
	return bind(b, settingsForGameSQL(b.namespace, gameAddress), []lookup.Setting{}, parseSettings)
}

func (b *Bindings) ObjectivesForGame(gameAddress string) *Query[[]lookup.Objective] {
	return bind(b, objectivesForGameSQL(b.namespace, gameAddress), []lookup.Objective{}, parseObjectives)
}

// TokenCount counts minted tokens, optionally for one game.
func (b *Bindings) TokenCount(gameID *uint64) *Query[uint64] {
	return bind(b, tokenCountSQL(b.namespace, gameID), 0, func(rows []sqlclient.Row) uint64 {
		if len(rows) == 0 {
			return 0
		}
		n, _ := rows[0].Uint("count")
		return n
	})
}

// PlayerNames maps token ids to decoded player names.
func (b *Bindings) PlayerNames(tokenIDs []uint64) *Query[map[uint64]string] {
	return bind(b, playerNamesSQL(b.namespace, tokenIDs), map[uint64]string{}, parsePlayerNames)
}

// Leaderboard ranks tokens by score, highest first. A nil gameID ranks all
// games; a non-positive limit returns every row.
func (b *Bindings) Leaderboard(gameID *uint64, limit int) *Query[[]LeaderboardEntry] {
	return bind(b, leaderboardSQL(b.namespace, gameID, limit), []LeaderboardEntry{}, func(rows []sqlclient.Row) []LeaderboardEntry {
		entries := parseLeaderboard(rows)
		if limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		return entries
	})
}

func parseGames(rows []sqlclient.Row) []lookup.MiniGame {
	games := make([]lookup.MiniGame, 0, len(rows))
	for _, row := range rows {
		id, ok := row.Uint("game_id")
		if !ok {
			slog.Debug("Skipping game row without id", "game_id", row.String("game_id"))
			continue
		}
		games = append(games, lookup.MiniGame{
			ID:              id,
			ContractAddress: row.String("contract_address"),
			Name:            row.ShortString("name"),
			Description:     row.String("description"),
			Developer:       row.ShortString("developer"),
			Publisher:       row.ShortString("publisher"),
			Genre:           row.ShortString("genre"),
			Image:           row.String("image"),
			Color:           row.ShortString("color"),
			ClientURL:       row.String("client_url"),
			RendererAddress: row.String("renderer_address"),
		})
	}
	return games
}

func parseSettings(rows []sqlclient.Row) []lookup.Setting {
	out := make([]lookup.Setting, 0, len(rows))
	for _, row := range rows {
		id, ok := row.Uint("settings_id")
		if !ok {
			continue
		}
		data, ok := lookup.ParseSettingsData(row.String("settings_data"))
		if !ok {
			slog.Warn("Malformed settings payload", "settings_id", id)
		}
		out = append(out, lookup.Setting{
			ID:           id,
			SettingsData: data,
			GameAddress:  row.String("game_address"),
			CreatedBy:    row.String("created_by"),
		})
	}
	return out
}

func parseObjectives(rows []sqlclient.Row) []lookup.Objective {
	out := make([]lookup.Objective, 0, len(rows))
	for _, row := range rows {
		id, ok := row.Uint("objective_id")
		if !ok {
			continue
		}
		out = append(out, lookup.Objective{
			ID:          id,
			Data:        row.String("objective_data"),
			GameAddress: row.String("game_address"),
		})
	}
	return out
}

func parsePlayerNames(rows []sqlclient.Row) map[uint64]string {
	names := make(map[uint64]string, len(rows))
	for _, row := range rows {
		if id, ok := row.Uint("token_id"); ok {
			names[id] = row.ShortString("player_name")
		}
	}
	return names
}

// parseLeaderboard orders entries by numeric score, highest first.
func parseLeaderboard(rows []sqlclient.Row) []LeaderboardEntry {
	out := make([]LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		id, ok := row.Uint("token_id")
		if !ok {
			continue
		}
		score, _ := row.Uint("score")
		out = append(out, LeaderboardEntry{
			TokenID:    id,
			Score:      score,
			PlayerName: row.ShortString("player_name"),
			Owner:      felt.PadAddress(row.String("owner")),
		})
	}
	slices.SortStableFunc(out, func(a, b LeaderboardEntry) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}
