package subscriber

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/b-open-io/gamedata/fact"
)

// Query selects the entities a subscription delivers. A nil *Query means the
// join parameters are not known yet; sessions treat it as no data.
type Query struct {
	Namespace string   `json:"namespace,omitempty"`
	Models    []string `json:"models,omitempty"`     // empty selects every model
	EntityIDs []string `json:"entity_ids,omitempty"` // empty selects every entity
}

// Matches reports whether rec passes the entity id filter.
func (q *Query) Matches(rec fact.EntityRecord) bool {
	if q == nil || len(q.EntityIDs) == 0 {
		return true
	}
	return slices.ContainsFunc(q.EntityIDs, func(id string) bool {
		return strings.EqualFold(id, rec.ID)
	})
}

// Subscription is an open subscription. Initial holds the snapshot taken when
// it was opened.
type Subscription struct {
	Initial []fact.EntityRecord

	once   sync.Once
	cancel func()
}

// NewSubscription wraps a snapshot and the function that closes the stream.
func NewSubscription(initial []fact.EntityRecord, cancel func()) *Subscription {
	return &Subscription{Initial: initial, cancel: cancel}
}

// Cancel closes the subscription. It is safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Source opens subscriptions. onUpdate may be called from any goroutine until
// the subscription is cancelled or ctx is done.
type Source interface {
	Subscribe(ctx context.Context, q *Query, onUpdate func([]fact.EntityRecord)) (*Subscription, error)
}
