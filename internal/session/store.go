// Package session keeps a bounded conversation history per thread id.
package session

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
)

const DefaultHistoryLimit = 10

// Exchange is one answered question.
type Exchange struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

type history struct {
	mu        sync.Mutex
	exchanges []Exchange
}

// Store maps thread ids to their last limit exchanges. Idle threads expire after
// ttl and the least recently used thread is dropped beyond maxSessions.
type Store struct {
	mu       sync.Mutex
	limit    int
	sessions *expirable.LRU[string, *history]
}

// New creates a store. maxSessions or ttl of zero disable that bound.
func New(limit, maxSessions int, ttl time.Duration) *Store {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if maxSessions < 0 {
		maxSessions = 0
	}
	onEvict := func(key string, _ *history) {
		log.Debug().Str("thread_id", key).Msg("Session evicted")
	}
	return &Store{
		limit:    limit,
		sessions: expirable.NewLRU[string, *history](maxSessions, onEvict, ttl),
	}
}

func (s *Store) Limit() int { return s.limit }

// get returns the session for key, creating it on first use. Every access
// re-adds the entry since expirable only sets the expiry on Add.
func (s *Store) get(key string) *history {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.sessions.Get(key)
	if !ok {
		h = &history{}
	}
	s.sessions.Add(key, h)
	return h
}

// History returns a copy of the exchanges for key, oldest first.
func (s *Store) History(key string) []Exchange {
	h := s.get(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Exchange, len(h.exchanges))
	copy(out, h.exchanges)
	return out
}

// Append records an exchange and drops the oldest beyond the limit.
func (s *Store) Append(key, query, answer string) {
	h := s.get(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exchanges = append(h.exchanges, Exchange{Query: query, Answer: answer})
	if over := len(h.exchanges) - s.limit; over > 0 {
		h.exchanges = append([]Exchange(nil), h.exchanges[over:]...)
	}
}

// Len is the number of live sessions.
func (s *Store) Len() int {
	return s.sessions.Len()
}
