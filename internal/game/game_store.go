package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
)

const (
	joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	joinCodeLength   = 6
	joinCodeAttempts = 32
)

// MatchStore is the registry of live matches, indexed by id and join code.
type MatchStore struct {
	mu      sync.Mutex
	matches map[uuid.UUID]*Match
	codes   map[string]uuid.UUID
	newCode func() (string, error)
}

func NewMatchStore() *MatchStore {
	return &MatchStore{
		matches: make(map[uuid.UUID]*Match),
		codes:   make(map[string]uuid.UUID),
		newCode: randomJoinCode,
	}
}

// insert registers m under a freshly reserved join code.
func (s *MatchStore) insert(build func(code string) *Match) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for range joinCodeAttempts {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}
		if _, taken := s.codes[code]; taken {
			continue
		}
		m := build(code)
		s.matches[m.ID] = m
		s.codes[code] = m.ID
		return m, nil
	}
	return nil, fmt.Errorf("no free join code after %d attempts", joinCodeAttempts)
}

func (s *MatchStore) get(id uuid.UUID) (*Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	return m, ok
}

func (s *MatchStore) byCode(code string) (*Match, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.codes[code]
	if !ok {
		return nil, false
	}
	m, ok := s.matches[id]
	return m, ok
}

// remove evicts a match and frees its join code.
func (s *MatchStore) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.matches[id]; ok {
		delete(s.codes, m.JoinCode)
		delete(s.matches, id)
	}
}

// snapshot returns the current matches; callers must lock each match before reading it.
func (s *MatchStore) snapshot() []*Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Match, 0, len(s.matches))
	for _, m := range s.matches {
		out = append(out, m)
	}
	return out
}

func (s *MatchStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.matches)
}

// randomJoinCode draws uniformly from the alphabet; rand.Int rejects biased samples.
func randomJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	max := big.NewInt(int64(len(joinCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("join code: %w", err)
		}
		buf[i] = joinCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
