package gate

import (
	"context"
	"testing"

	"github.com/m-gruen/nexus/internal/errors"
	"github.com/m-gruen/nexus/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	users         map[int64]bool
	relationships map[[2]int64]*models.Relationship
}

func newFakeDirectory(users ...int64) *fakeDirectory {
	d := &fakeDirectory{
		users:         make(map[int64]bool),
		relationships: make(map[[2]int64]*models.Relationship),
	}
	for _, id := range users {
		d.users[id] = true
	}
	return d
}

func (d *fakeDirectory) relate(a, b int64, aBlockedB, bBlockedA bool) {
	lo, hi := models.NormalizePair(a, b)
	rel := &models.Relationship{
		UserA:  lo,
		UserB:  hi,
		Status: models.RelationshipAccepted,
	}
	if lo == a {
		rel.ABlockedB = aBlockedB
		rel.BBlockedA = bBlockedA
	} else {
		rel.ABlockedB = bBlockedA
		rel.BBlockedA = aBlockedB
	}
	d.relationships[[2]int64{lo, hi}] = rel
}

func (d *fakeDirectory) UserExists(ctx context.Context, id int64) (bool, error) {
	return d.users[id], nil
}

func (d *fakeDirectory) Relationship(ctx context.Context, a, b int64) (*models.Relationship, error) {
	lo, hi := models.NormalizePair(a, b)
	return d.relationships[[2]int64{lo, hi}], nil
}

func TestGate_CanSend(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*fakeDirectory)
		sender     int64
		receiver   int64
		allowed    bool
		reason     Reason
		wantErr    bool
		errCode    errors.ErrorCode
	}{
		{
			name:     "accepted contacts",
			setup:    func(d *fakeDirectory) { d.relate(1, 2, false, false) },
			sender:   1,
			receiver: 2,
			allowed:  true,
		},
		{
			name:     "no relationship",
			sender:   1,
			receiver: 2,
			allowed:  false,
			reason:   ReasonNotContacts,
		},
		{
			name:     "sender blocked receiver",
			setup:    func(d *fakeDirectory) { d.relate(1, 2, true, false) },
			sender:   1,
			receiver: 2,
			allowed:  false,
			reason:   ReasonYouBlocked,
		},
		{
			name:     "receiver blocked sender",
			setup:    func(d *fakeDirectory) { d.relate(1, 2, false, true) },
			sender:   1,
			receiver: 2,
			allowed:  false,
			reason:   ReasonUserBlocked,
		},
		{
			name:     "mutual block reports sender's own block",
			setup:    func(d *fakeDirectory) { d.relate(1, 2, true, true) },
			sender:   1,
			receiver: 2,
			allowed:  false,
			reason:   ReasonYouBlocked,
		},
		{
			name:     "block flags are directional",
			setup:    func(d *fakeDirectory) { d.relate(2, 1, true, false) },
			sender:   1,
			receiver: 2,
			allowed:  false,
			reason:   ReasonUserBlocked,
		},
		{
			name:     "self send",
			sender:   1,
			receiver: 1,
			allowed:  false,
			reason:   ReasonSelf,
		},
		{
			name:     "non-positive sender",
			sender:   0,
			receiver: 2,
			wantErr:  true,
			errCode:  errors.ErrCodeValidationFailed,
		},
		{
			name:     "negative receiver",
			sender:   1,
			receiver: -5,
			wantErr:  true,
			errCode:  errors.ErrCodeValidationFailed,
		},
		{
			name:     "unknown receiver",
			sender:   1,
			receiver: 99,
			wantErr:  true,
			errCode:  errors.ErrCodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newFakeDirectory(1, 2)
			if tt.setup != nil {
				tt.setup(dir)
			}
			g := New(dir)

			decision, err := g.CanSend(context.Background(), tt.sender, tt.receiver)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.errCode, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, decision.Allowed)
			assert.Equal(t, tt.reason, decision.Reason)
		})
	}
}

func TestGate_CanSend_SelfBeforeExistence(t *testing.T) {
	// send(A, A) reports "self" even when A is not a known identity.
	g := New(newFakeDirectory())

	decision, err := g.CanSend(context.Background(), 7, 7)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonSelf, decision.Reason)
}

func TestGate_CanFetch(t *testing.T) {
	dir := newFakeDirectory(1, 2)
	// Mutual block must not hide already-exchanged history.
	dir.relate(1, 2, true, true)
	g := New(dir)

	decision, err := g.CanFetch(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	decision, err = g.CanFetch(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonSelf, decision.Reason)

	_, err = g.CanFetch(context.Background(), 1, 42)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.GetCode(err))

	_, err = g.CanFetch(context.Background(), 0, 2)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(err))
}
