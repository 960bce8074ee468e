package models

import (
	"time"
)

type RelationshipStatus string

const (
	RelationshipPending  RelationshipStatus = "pending"
	RelationshipAccepted RelationshipStatus = "accepted"
)

// Relationship is the external contact record between two identities,
// consumed read-only by the permission gate. Rows are stored with
// UserA < UserB; the block flags are independently settable per side.
type Relationship struct {
	UserA     int64              `json:"user_a" db:"user_a"`
	UserB     int64              `json:"user_b" db:"user_b"`
	Status    RelationshipStatus `json:"status" db:"status"`
	ABlockedB bool               `json:"a_blocked_b" db:"a_blocked_b"`
	BBlockedA bool               `json:"b_blocked_a" db:"b_blocked_a"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" db:"updated_at"`
}

// HasBlocked reports whether blocker has blocked target on this record.
func (r *Relationship) HasBlocked(blocker, target int64) bool {
	switch {
	case blocker == r.UserA && target == r.UserB:
		return r.ABlockedB
	case blocker == r.UserB && target == r.UserA:
		return r.BBlockedA
	}
	return false
}

// NormalizePair orders two identities the way relationship rows are keyed.
func NormalizePair(x, y int64) (int64, int64) {
	if x > y {
		return y, x
	}
	return x, y
}
