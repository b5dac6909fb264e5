// Package reaction keeps per-token emoji tallies for the lifetime of the process.
package reaction

import (
	"strings"
	"sync"
)

// RoomPrefix marks rooms that are bound to a token's reaction counters.
const RoomPrefix = "token-"

// Stats maps an emoji to how many times it was used on a token.
type Stats map[string]int64

// Store holds the tallies. Counts only increase and tokens are never removed.
type Store struct {
	mu     sync.RWMutex
	tokens map[string]Stats
}

func NewStore() *Store {
	return &Store{tokens: make(map[string]Stats)}
}

// Rate adds one to emoji under token and returns a copy of the token's stats.
// It does nothing and returns false when either argument is empty.
func (s *Store) Rate(token, emoji string) (Stats, bool) {
	if token == "" || emoji == "" {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stats, exists := s.tokens[token]
	if !exists {
		stats = make(Stats)
		s.tokens[token] = stats
	}
	stats[emoji]++
	return stats.clone(), true
}

// Snapshot returns a copy of the token's stats, empty if it was never rated.
func (s *Store) Snapshot(token string) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, exists := s.tokens[token]
	if !exists {
		return Stats{}
	}
	return stats.clone()
}

// Tokens returns how many tokens have at least one rating.
func (s *Store) Tokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

func (st Stats) clone() Stats {
	out := make(Stats, len(st))
	for emoji, n := range st {
		out[emoji] = n
	}
	return out
}

// TokenFromRoom returns the token address of a token room.
func TokenFromRoom(roomID string) (string, bool) {
	return strings.CutPrefix(roomID, RoomPrefix)
}

// RoomForToken is the room whose members follow token's reactions.
func RoomForToken(token string) string {
	return RoomPrefix + token
}
