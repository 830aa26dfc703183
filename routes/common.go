package routes

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/b-open-io/gamedata/client"
	"github.com/b-open-io/gamedata/felt"
	"github.com/b-open-io/gamedata/query"
)

const maxPageSize = 1000

// RoutesConfig holds what the read API serves from.
type RoutesConfig struct {
	Client *client.Client
}

// TokenQuery is a parsed token listing request.
type TokenQuery struct {
	Criteria query.Criteria
	SortBy   query.Field
	Order    query.Order
	PageSize int
	Page     int
}

// ParseTokenQuery reads filter, sort and paging parameters from the query string.
//
//	owner, minted_by, context_name  address or text
//	game                            comma separated game addresses
//	ids                             comma separated token ids
//	settings_id, objective_id       felt or integer
//	soulbound, completed, has_context  true or false
//	ctx.<attr>=<value>              context attribute match
//	sort, order, page, limit
func ParseTokenQuery(c *fiber.Ctx) (TokenQuery, error) {
	var q TokenQuery
	var err error

	q.Criteria.Owner = c.Query("owner")
	q.Criteria.MintedByAddress = c.Query("minted_by")
	q.Criteria.ContextName = c.Query("context_name")
	q.Criteria.GameAddresses = splitList(c.Query("game"))
	if ids := splitList(c.Query("ids")); len(ids) > 0 {
		for _, raw := range ids {
			id, ok := felt.ParseUint(raw)
			if !ok {
				return q, fiber.NewError(fiber.StatusBadRequest, "invalid token id "+raw)
			}
			q.Criteria.TokenIDs = append(q.Criteria.TokenIDs, id)
		}
	}
	if q.Criteria.SettingsID, err = uintParam(c, "settings_id"); err != nil {
		return q, err
	}
	if q.Criteria.ObjectiveID, err = uintParam(c, "objective_id"); err != nil {
		return q, err
	}
	if q.Criteria.Soulbound, err = boolParam(c, "soulbound"); err != nil {
		return q, err
	}
	if q.Criteria.CompletedAllObjectives, err = boolParam(c, "completed"); err != nil {
		return q, err
	}
	if q.Criteria.HasContext, err = boolParam(c, "has_context"); err != nil {
		return q, err
	}
	for key, value := range c.Queries() {
		if attr, ok := strings.CutPrefix(key, "ctx."); ok && attr != "" {
			if q.Criteria.ContextAttributes == nil {
				q.Criteria.ContextAttributes = make(map[string]string)
			}
			q.Criteria.ContextAttributes[attr] = value
		}
	}

	if q.SortBy, err = query.ParseField(c.Query("sort")); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if q.Order, err = query.ParseOrder(c.Query("order")); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	q.PageSize = c.QueryInt("limit", query.DefaultPageSize)
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	q.Page = c.QueryInt("page", 0)
	return q, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func uintParam(c *fiber.Ctx, name string) (*uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, ok := felt.ParseUint(raw)
	if !ok {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return &v, nil
}

func boolParam(c *fiber.Ctx, name string) (*bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return &v, nil
}

func idParam(c *fiber.Ctx) (uint64, error) {
	id, ok := felt.ParseUint(c.Params("id"))
	if !ok {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		status = fe.Code
	}
	return c.Status(status).JSON(fiber.Map{"message": err.Error()})
}

// RegisterRoutes registers the read API over the client's stores.
func RegisterRoutes(group fiber.Router, config *RoutesConfig) {
	if config == nil || config.Client == nil {
		panic("RegisterRoutes: config and client are required")
	}
	cl := config.Client

	group.Get("/tokens", func(c *fiber.Ctx) error {
		q, err := ParseTokenQuery(c)
		if err != nil {
			return errorResponse(c, err)
		}
		matched := cl.Tokens().Filter(q.Criteria.Matcher())
		sorted := query.Sort(matched, q.SortBy, q.Order)
		return c.JSON(query.Paginate(sorted, q.PageSize, q.Page))
	})

	group.Get("/tokens/:id", func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return errorResponse(c, err)
		}
		tok, ok := cl.Tokens().Get(id)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Token not found"})
		}
		return c.JSON(tok)
	})

	group.Get("/games", func(c *fiber.Ctx) error {
		return c.JSON(cl.Lookups().Games.All())
	})

	group.Get("/games/:id", func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return errorResponse(c, err)
		}
		game, ok := cl.Lookups().Games.Get(id)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Game not found"})
		}
		return c.JSON(game)
	})

	group.Get("/games/:id/settings", func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return errorResponse(c, err)
		}
		settings := cl.Lookups().Settings.ForGame(id)
		if settings == nil {
			return c.JSON([]any{})
		}
		return c.JSON(settings)
	})

	group.Get("/settings/:id", func(c *fiber.Ctx) error {
		id, err := idParam(c)
		if err != nil {
			return errorResponse(c, err)
		}
		setting, ok := cl.Lookups().Settings.Get(id)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Settings not found"})
		}
		return c.JSON(setting)
	})

	group.Get("/objectives", func(c *fiber.Ctx) error {
		objectives := cl.Lookups().Objectives
		var ids []uint64
		for _, raw := range splitList(c.Query("ids")) {
			if id, ok := felt.ParseUint(raw); ok {
				ids = append(ids, id)
			}
		}
		gameID, err := uintParam(c, "game")
		if err != nil {
			return errorResponse(c, err)
		}
		if gameID != nil {
			result := objectives.ForGame(ids, *gameID)
			if result == nil {
				return c.JSON([]any{})
			}
			return c.JSON(result)
		}
		all := objectives.All()
		if len(ids) == 0 {
			return c.JSON(all)
		}
		want := make(map[uint64]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
		filtered := all[:0]
		for _, o := range all {
			if want[o.ID] {
				filtered = append(filtered, o)
			}
		}
		return c.JSON(filtered)
	})

	group.Get("/leaderboard", func(c *fiber.Ctx) error {
		gameID, err := uintParam(c, "game")
		if err != nil {
			return errorResponse(c, err)
		}
		board := cl.Queries().Leaderboard(gameID, c.QueryInt("limit", 10))
		if err := board.Refetch(c.UserContext()); err != nil {
			slog.Error("Leaderboard query failed", "error", err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"message": err.Error()})
		}
		return c.JSON(board.Result().Data)
	})

	group.Get("/status", func(c *fiber.Ctx) error {
		st := cl.Status()
		resp := fiber.Map{
			"id":         st.ID,
			"epoch":      st.Epoch,
			"subscribed": st.Subscribed,
			"loading":    st.Loading,
			"tokens":     cl.Tokens().Len(),
			"games":      cl.Lookups().Games.Len(),
			"namespace":  cl.Namespace(),
		}
		if last := cl.Tokens().LastUpdated(); !last.IsZero() {
			resp["last_updated"] = last
		}
		if st.Err != nil {
			resp["error"] = st.Err.Error()
		}
		return c.JSON(resp)
	})
}
