package queries

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/b-open-io/gamedata/felt"
)

// Model tables are named "<namespace>-<Model>".
func table(namespace, model string) string {
	name := model
	if namespace != "" {
		name = namespace + "-" + model
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Integer keys are stored as 64-digit hex felts.
func feltLiteral(v uint64) string {
	return literal(fmt.Sprintf("0x%064x", v))
}

func addressLiteral(addr string) string {
	return literal(felt.PadAddress(addr))
}

func feltList(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = feltLiteral(id)
	}
	return strings.Join(parts, ", ")
}

const gameColumns = `game_id,
	"metadata.contract_address" AS contract_address,
	"metadata.name" AS name,
	"metadata.description" AS description,
	"metadata.developer" AS developer,
	"metadata.publisher" AS publisher,
	"metadata.genre" AS genre,
	"metadata.image" AS image,
	"metadata.color" AS color,
	"metadata.client_url" AS client_url,
	"metadata.renderer_address" AS renderer_address`

func gamesSQL(namespace string) string {
	return "SELECT " + gameColumns + "\nFROM " + table(namespace, "GameMetadataUpdate") + "\nORDER BY game_id"
}

func gameByAddressSQL(namespace, addr string) string {
	if addr == "" {
		return ""
	}
	return "SELECT " + gameColumns + "\nFROM " + table(namespace, "GameMetadataUpdate") +
		"\nWHERE \"metadata.contract_address\" = " + addressLiteral(addr) + "\nLIMIT 1"
}

func settingsForGameSQL(namespace, gameAddress string) string {
	if gameAddress == "" {
		return ""
	}
	return "SELECT settings_id, game_address, created_by, settings_data\nFROM " + table(namespace, "SettingsCreated") +
		"\nWHERE game_address = " + addressLiteral(gameAddress) + "\nORDER BY settings_id"
}

func objectivesForGameSQL(namespace, gameAddress string) string {
	if gameAddress == "" {
		return ""
	}
	return "SELECT objective_id, game_address, objective_data\nFROM " + table(namespace, "ObjectiveCreated") +
		"\nWHERE game_address = " + addressLiteral(gameAddress) + "\nORDER BY objective_id"
}

func tokenCountSQL(namespace string, gameID *uint64) string {
	q := "SELECT COUNT(*) AS count FROM " + table(namespace, "TokenMetadataUpdate")
	if gameID != nil {
		q += " WHERE game_id = " + feltLiteral(*gameID)
	}
	return q
}

func playerNamesSQL(namespace string, tokenIDs []uint64) string {
	if len(tokenIDs) == 0 {
		return ""
	}
	return "SELECT id AS token_id, player_name\nFROM " + table(namespace, "TokenPlayerNameUpdate") +
		"\nWHERE id IN (" + feltList(tokenIDs) + ")"
}

func leaderboardSQL(namespace string, gameID *uint64, limit int) string {
	var b strings.Builder
	b.WriteString("SELECT s.id AS token_id, s.score AS score, p.player_name AS player_name, o.owner AS owner\n")
	b.WriteString("FROM " + table(namespace, "TokenScoreUpdate") + " s\n")
	b.WriteString("JOIN " + table(namespace, "TokenMetadataUpdate") + " m ON m.id = s.id\n")
	b.WriteString("LEFT JOIN " + table(namespace, "TokenPlayerNameUpdate") + " p ON p.id = s.id\n")
	b.WriteString("LEFT JOIN " + table(namespace, "OwnerUpdate") + " o ON o.token_id = s.id\n")
	if gameID != nil {
		b.WriteString("WHERE m.game_id = " + feltLiteral(*gameID) + "\n")
	}
	b.WriteString("ORDER BY s.score DESC")
	if limit > 0 {
		b.WriteString("\nLIMIT " + strconv.Itoa(limit))
	}
	return b.String()
}
