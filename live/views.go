package live

import (
	"slices"
	"sync"

	"github.com/b-open-io/gamedata/internal/notify"
	"github.com/b-open-io/gamedata/lookup"
)

type changeSource func(fn func(ids []uint64)) func()

// View is a value derived from one or more lookup stores, recomputed when any
// of them changes.
type View[T any] struct {
	compute func() T

	mu        sync.RWMutex
	value     T
	listeners notify.Listeners[T]
	stops     []func()
}

func newView[T any](compute func() T, sources ...changeSource) *View[T] {
	v := &View[T]{compute: compute}
	v.value = compute()
	for _, src := range sources {
		v.stops = append(v.stops, src(func([]uint64) { v.refresh() }))
	}
	return v
}

func (v *View[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

func (v *View[T]) OnChange(fn func(T)) func() {
	return v.listeners.Add(func(vals []T) {
		fn(vals[0])
	})
}

func (v *View[T]) Close() {
	v.mu.Lock()
	stops := v.stops
	v.stops = nil
	v.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

func (v *View[T]) refresh() {
	v.mu.Lock()
	val := v.compute()
	v.value = val
	v.mu.Unlock()
	v.listeners.Notify([]T{val})
}

// Games lists every known mini-game.
func Games(set *lookup.Set) *View[[]lookup.MiniGame] {
	return newView(set.Games.All, set.Games.OnChange)
}

// Game follows one mini-game. The value is nil until the game is known.
func Game(set *lookup.Set, id uint64) *View[*lookup.MiniGame] {
	return newView(func() *lookup.MiniGame {
		if g, ok := set.Games.Get(id); ok {
			return &g
		}
		return nil
	}, set.Games.OnChange)
}

// SettingsForGame lists the settings owned by gameID. It also follows the
// games store since ownership may resolve through a later game registration.
func SettingsForGame(set *lookup.Set, gameID uint64) *View[[]lookup.Setting] {
	return newView(func() []lookup.Setting {
		return set.Settings.ForGame(gameID)
	}, set.Settings.OnChange, set.Games.OnChange)
}

// ObjectivesForGame lists the objectives among ids that belong to gameID.
func ObjectivesForGame(set *lookup.Set, ids []uint64, gameID uint64) *View[[]lookup.Objective] {
	ids = slices.Clone(ids)
	return newView(func() []lookup.Objective {
		return set.Objectives.ForGame(ids, gameID)
	}, set.Objectives.OnChange, set.Games.OnChange)
}
