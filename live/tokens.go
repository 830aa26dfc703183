// Package live keeps filtered, sorted and paginated views over the in-memory
// stores current as facts arrive. Views recompute on store change
// notifications and notify their own listeners afterwards.
package live

import (
	"sync"

	"github.com/b-open-io/gamedata/internal/notify"
	"github.com/b-open-io/gamedata/query"
	"github.com/b-open-io/gamedata/storage"
	"github.com/b-open-io/gamedata/subscriber"
)

// StatusSource reports subscription state. *subscriber.Session implements it.
type StatusSource interface {
	Status() subscriber.Status
	OnStatus(fn func(subscriber.Status)) func()
}

type TokensOptions struct {
	Filter   query.Criteria
	SortBy   query.Field // defaults to token id
	Order    query.Order
	PageSize int // defaults to query.DefaultPageSize
}

// TokensState is what a token view currently shows.
type TokensState struct {
	Page       query.Page[storage.GameToken] `json:"page"`
	Subscribed bool                          `json:"subscribed"`
	Loading    bool                          `json:"loading"`
	Err        error                         `json:"-"`
}

// Tokens is a paginated view of the token store.
type Tokens struct {
	store *storage.TokenStore

	mu    sync.Mutex
	opts  TokensOptions
	pager *query.Pager
	state TokensState

	listeners notify.Listeners[TokensState]
	stops     []func()
}

// NewTokens builds a view over store. status may be nil.
func NewTokens(store *storage.TokenStore, status StatusSource, opts TokensOptions) *Tokens {
	if opts.SortBy == "" {
		opts.SortBy = query.FieldTokenID
	}
	t := &Tokens{
		store: store,
		opts:  opts,
		pager: query.NewPager(opts.PageSize),
	}
	t.refresh()
	t.stops = append(t.stops, store.OnChange(func([]uint64) { t.refresh() }))
	if status != nil {
		t.applyStatus(status.Status())
		t.stops = append(t.stops, status.OnStatus(t.applyStatus))
	}
	return t
}

func (t *Tokens) State() TokensState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tokens) Options() TokensOptions {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opts
}

// SetFilter replaces the filter and returns to the first page.
func (t *Tokens) SetFilter(criteria query.Criteria) {
	t.reconfigure(func(o *TokensOptions, p *query.Pager) {
		o.Filter = criteria
		p.First()
	})
}

func (t *Tokens) SetSort(field query.Field, order query.Order) {
	if field == "" {
		field = query.FieldTokenID
	}
	t.reconfigure(func(o *TokensOptions, _ *query.Pager) {
		o.SortBy = field
		o.Order = order
	})
}

func (t *Tokens) SetPageSize(size int) {
	t.reconfigure(func(o *TokensOptions, p *query.Pager) {
		p.SetPageSize(size)
		o.PageSize = p.PageSize()
	})
}

func (t *Tokens) Next()      { t.reconfigure(func(_ *TokensOptions, p *query.Pager) { p.Next() }) }
func (t *Tokens) Previous()  { t.reconfigure(func(_ *TokensOptions, p *query.Pager) { p.Previous() }) }
func (t *Tokens) First()     { t.reconfigure(func(_ *TokensOptions, p *query.Pager) { p.First() }) }
func (t *Tokens) Last()      { t.reconfigure(func(_ *TokensOptions, p *query.Pager) { p.Last() }) }
func (t *Tokens) GoTo(n int) { t.reconfigure(func(_ *TokensOptions, p *query.Pager) { p.GoTo(n) }) }

// OnChange registers fn to be called with every new state.
func (t *Tokens) OnChange(fn func(TokensState)) func() {
	return t.listeners.Add(func(states []TokensState) {
		fn(states[0])
	})
}

// Close detaches the view from its store and status source.
func (t *Tokens) Close() {
	t.mu.Lock()
	stops := t.stops
	t.stops = nil
	t.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

func (t *Tokens) reconfigure(change func(*TokensOptions, *query.Pager)) {
	t.mu.Lock()
	change(&t.opts, t.pager)
	t.mu.Unlock()
	t.refresh()
}

func (t *Tokens) refresh() {
	t.mu.Lock()
	matched := t.store.Filter(t.opts.Filter.Matcher())
	sorted := query.Sort(matched, t.opts.SortBy, t.opts.Order)
	t.pager.SetTotal(len(sorted))
	t.state.Page = query.Paginate(sorted, t.pager.PageSize(), t.pager.Page())
	st := t.state
	t.mu.Unlock()
	t.listeners.Notify([]TokensState{st})
}

func (t *Tokens) applyStatus(s subscriber.Status) {
	t.mu.Lock()
	t.state.Subscribed = s.Subscribed
	t.state.Loading = s.Loading
	t.state.Err = s.Err
	st := t.state
	t.mu.Unlock()
	t.listeners.Notify([]TokensState{st})
}
