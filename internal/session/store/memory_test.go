package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlasid/internal/policy"
	"atlasid/internal/sentinel"
	"atlasid/internal/session/models"
)

func pendingSession(token string) *models.Session {
	return &models.Session{
		Token:      token,
		SubjectDID: "did:hedera:testnet:0.0.3003",
		Policy: policy.Policy{
			"nationality": {Op: policy.OpEquals, Value: []byte(`"France"`)},
		},
		Flow:   "casino",
		Status: models.StatusPending,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.Create(context.Background(), pendingSession("tok-1")))

	got, err := s.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, "did:hedera:testnet:0.0.3003", got.SubjectDID)
}

func TestGetUnknownToken(t *testing.T) {
	s := NewInMemory()
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCreateDuplicateToken(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.Create(context.Background(), pendingSession("tok-1")))
	err := s.Create(context.Background(), pendingSession("tok-1"))
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestFinalize(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.Create(context.Background(), pendingSession("tok-1")))

	finalized, err := s.Finalize(context.Background(), "tok-1", models.StatusGranted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGranted, finalized.Status)
	require.NotNil(t, finalized.FinalizedAt)

	got, err := s.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusGranted, got.Status)
}

func TestFinalizeTwice(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.Create(context.Background(), pendingSession("tok-1")))

	_, err := s.Finalize(context.Background(), "tok-1", models.StatusDenied)
	require.NoError(t, err)

	// First outcome wins; a later grant attempt must not flip the status.
	_, err = s.Finalize(context.Background(), "tok-1", models.StatusGranted)
	assert.ErrorIs(t, err, sentinel.ErrFinalized)

	got, err := s.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, got.Status)
}

func TestFinalizeUnknownToken(t *testing.T) {
	s := NewInMemory()
	_, err := s.Finalize(context.Background(), "missing", models.StatusDenied)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestConcurrentFinalizeSingleWinner(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.Create(context.Background(), pendingSession("tok-1")))

	const attempts = 16
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		status := models.StatusGranted
		if i%2 == 0 {
			status = models.StatusDenied
		}
		go func(st models.Status) {
			_, err := s.Finalize(context.Background(), "tok-1", st)
			errs <- err
		}(status)
	}

	won := 0
	for i := 0; i < attempts; i++ {
		if err := <-errs; err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, sentinel.ErrFinalized)
		}
	}
	assert.Equal(t, 1, won)
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewInMemory()
	require.NoError(t, s.Create(context.Background(), pendingSession("tok-1")))

	got, err := s.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	got.Status = models.StatusGranted
	got.Policy["nationality"] = policy.Predicate{Op: policy.OpEquals, Value: []byte(`"Suisse"`)}

	fresh, err := s.Get(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, fresh.Status)
	assert.JSONEq(t, `"France"`, string(fresh.Policy["nationality"].Value))
}
