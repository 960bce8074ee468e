package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_PeerOf(t *testing.T) {
	m := Message{ID: 1, SenderID: 3, ReceiverID: 7}
	assert.Equal(t, int64(7), m.PeerOf(3))
	assert.Equal(t, int64(3), m.PeerOf(7))
}

func TestNormalizePair(t *testing.T) {
	a, b := NormalizePair(9, 4)
	assert.Equal(t, int64(4), a)
	assert.Equal(t, int64(9), b)

	a, b = NormalizePair(4, 9)
	assert.Equal(t, int64(4), a)
	assert.Equal(t, int64(9), b)
}

func TestRelationship_HasBlocked(t *testing.T) {
	rel := Relationship{UserA: 4, UserB: 9, ABlockedB: true}

	assert.True(t, rel.HasBlocked(4, 9))
	assert.False(t, rel.HasBlocked(9, 4))
	// Identities outside the pair never match.
	assert.False(t, rel.HasBlocked(4, 5))
	assert.False(t, rel.HasBlocked(5, 9))
}
