package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "streamchat-backend/pkg/errors"
)

func TestMarkRead_NewestFirstAndIdempotent(t *testing.T) {
	f := newFixture(t)
	a := f.viewer("a")
	b := f.viewer("b")
	oldest := f.direct(b.ID, a.ID, f.clock.Add(time.Second), "1")
	for i := 2; i <= 6; i++ {
		f.direct(b.ID, a.ID, f.clock.Add(time.Duration(i)*time.Second), "n")
	}

	updated, err := f.svc.MarkRead(context.Background(), a, &MarkReadInput{})
	require.NoError(t, err)
	assert.Equal(t, int64(5), updated, "default batch is 5")

	stored, _ := f.store.GetByID(context.Background(), oldest.MessageID)
	assert.False(t, stored.IsRead, "the oldest message is outside the newest five")

	updated, err = f.svc.MarkRead(context.Background(), a, &MarkReadInput{Limit: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	updated, err = f.svc.MarkRead(context.Background(), a, &MarkReadInput{Limit: 30})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated)
}

func TestMarkRead_ScopedToPeer(t *testing.T) {
	f := newFixture(t)
	a := f.viewer("a")
	b := f.viewer("b")
	c := f.viewer("c")
	f.direct(b.ID, a.ID, f.clock.Add(time.Second), "from b")
	fromC := f.direct(c.ID, a.ID, f.clock.Add(2*time.Second), "from c")
	f.direct(a.ID, b.ID, f.clock.Add(3*time.Second), "mine is never marked")

	peer := b.ID
	updated, err := f.svc.MarkRead(context.Background(), a, &MarkReadInput{PeerID: &peer, Limit: 10})

	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
	stored, _ := f.store.GetByID(context.Background(), fromC.MessageID)
	assert.False(t, stored.IsRead)
}

func TestMarkRead_Validation(t *testing.T) {
	f := newFixture(t)
	a := f.viewer("a")

	_, err := f.svc.MarkRead(context.Background(), a, &MarkReadInput{Limit: 31})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))

	_, err = f.svc.MarkRead(context.Background(), nil, &MarkReadInput{})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
}
