package game

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAt(code string) *Match {
	return newMatch(uuid.New(), code, "0xa", StakeInfo{Amount: 1, MinParticipants: 3, MaxParticipants: 10}, DefaultSettings(), false, time.Now())
}

// codeSequence replays codes in order, then repeats the last one.
func codeSequence(codes ...string) (func() (string, error), *int) {
	calls := 0
	return func() (string, error) {
		i := min(calls, len(codes)-1)
		calls++
		return codes[i], nil
	}, &calls
}

func TestRandomJoinCodeAlphabet(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	for range 200 {
		code, err := randomJoinCode()
		require.NoError(t, err)
		assert.Regexp(t, re, code)
	}
}

func TestInsertRetriesOnCollision(t *testing.T) {
	s := NewMatchStore()
	next, calls := codeSequence("AAAAAA", "AAAAAA", "BBBBBB")
	s.newCode = next

	first, err := s.insert(buildAt)
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.JoinCode)

	second, err := s.insert(buildAt)
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", second.JoinCode)
	assert.Equal(t, 3, *calls, "one redraw for the taken code")

	got, ok := s.byCode("BBBBBB")
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, 2, s.count())
}

func TestInsertGivesUpWhenCodesExhausted(t *testing.T) {
	s := NewMatchStore()
	next, calls := codeSequence("AAAAAA")
	s.newCode = next

	_, err := s.insert(buildAt)
	require.NoError(t, err)

	_, err = s.insert(buildAt)
	assert.ErrorContains(t, err, "no free join code")
	assert.Equal(t, 1+joinCodeAttempts, *calls)
	assert.Equal(t, 1, s.count())
}

func TestInsertPropagatesSourceError(t *testing.T) {
	s := NewMatchStore()
	boom := errors.New("entropy unavailable")
	s.newCode = func() (string, error) { return "", boom }

	_, err := s.insert(buildAt)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, s.count())
}

func TestRemoveFreesCode(t *testing.T) {
	s := NewMatchStore()
	next, _ := codeSequence("AAAAAA")
	s.newCode = next

	m, err := s.insert(buildAt)
	require.NoError(t, err)
	s.remove(m.ID)
	_, ok := s.byCode("AAAAAA")
	assert.False(t, ok)

	again, err := s.insert(buildAt)
	require.NoError(t, err, "code is reusable after eviction")
	assert.Equal(t, "AAAAAA", again.JoinCode)
}
