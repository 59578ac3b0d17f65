package sprintbooksdk

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"sprintbook/internal/availability"
	"sprintbook/internal/domain"
	"sprintbook/internal/slots"
)

const (
	defaultSessionSize = 256
	defaultSessionTTL  = 5 * time.Second
)

// Session caches availability per tribe/resource/role for previews. The cache
// is advisory: commits always go to the server, which re-checks everything,
// and every commit through the session drops the affected entry.
type Session struct {
	Client *Client
	cache  *expirable.LRU[slots.TribeKey, Availability]
}

// NewSession wraps c. Zero size or ttl pick the defaults; the ttl should not
// exceed the server's availability max-age.
func NewSession(c *Client, size int, ttl time.Duration) *Session {
	if size <= 0 {
		size = defaultSessionSize
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Session{
		Client: c,
		cache:  expirable.NewLRU[slots.TribeKey, Availability](size, nil, ttl),
	}
}

// Availability serves from the cache when fresh.
func (s *Session) Availability(ctx context.Context, key slots.TribeKey) (Availability, error) {
	if a, ok := s.cache.Get(key); ok {
		return a, nil
	}
	a, err := s.Client.Availability(ctx, key)
	if err != nil {
		return Availability{}, err
	}
	s.cache.Add(key, a)
	return a, nil
}

// Invalidate drops the cached availability for key.
func (s *Session) Invalidate(key slots.TribeKey) {
	s.cache.Remove(key)
}

// PreviewBooking predicts the server's verdict for booking chosen sprints on
// key. Sprints the tribe already holds are ignored, as on the server.
func (s *Session) PreviewBooking(ctx context.Context, key slots.TribeKey, chosen []int) (availability.Verdict, error) {
	requested, err := slots.FromSprints(chosen)
	if err != nil {
		return availability.Verdict{}, err
	}
	a, err := s.Availability(ctx, key)
	if err != nil {
		return availability.Verdict{}, err
	}
	r := a.result(key)
	return availability.Evaluate(r, requested.AndNot(r.Mine)), nil
}

// Book confirms a booking and drops the cached view for the hold's key,
// whatever the outcome: a rejection means the cache was stale.
func (s *Session) Book(ctx context.Context, temp TempAssignment, chosen []int) (BookResult, error) {
	defer s.Invalidate(temp.TribeKey())
	return s.Client.BookTemp(ctx, temp.ID, chosen)
}

// Commit replaces an assignment's sprints and drops the cached view.
func (s *Session) Commit(ctx context.Context, a Assignment, sprints []int) (CommitResult, error) {
	defer s.Invalidate(a.TribeKey())
	return s.Client.CommitSlots(ctx, a.ID, sprints)
}

// result rebuilds the engine's availability value from the wire shape.
func (a Availability) result(key slots.TribeKey) availability.Result {
	r := availability.Result{
		Key:           key,
		Blocked:       flags(a.Blocked),
		Mine:          flags(a.Mine),
		CapPerTribe:   a.CapPerTribe,
		BookedByTribe: a.BookedByTribe,
		AssignType:    domain.ParseAssignType(a.AssignType),
	}
	for i := 0; i < slots.Count && i < len(a.TakenBy); i++ {
		r.TakenBy[i] = a.TakenBy[i]
	}
	return r
}

func flags(in []int) slots.Vector {
	var v slots.Vector
	for i := 0; i < slots.Count && i < len(in); i++ {
		v[i] = in[i] != 0
	}
	return v
}
