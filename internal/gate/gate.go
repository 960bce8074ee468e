// Package gate decides whether one identity may message another. It is
// pure predicate logic over the identity directory and relationship
// state: no side effects, safe to call repeatedly.
package gate

import (
	"context"

	"github.com/m-gruen/nexus/internal/errors"
	"github.com/m-gruen/nexus/internal/models"
)

// Reason is the machine-readable denial code. Clients render different
// copy per reason, so the distinctions are part of the contract.
type Reason string

const (
	ReasonSelf        Reason = "self"
	ReasonNotContacts Reason = "not-contacts"
	ReasonYouBlocked  Reason = "you-blocked"
	ReasonUserBlocked Reason = "user-blocked"
)

// Decision is the gate verdict. Reason is set only when Allowed is false.
type Decision struct {
	Allowed bool
	Reason  Reason
}

var allow = Decision{Allowed: true}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Directory is the read-only view of identities and relationships the
// gate consumes. The contact-request workflow that writes these records
// lives outside this service.
type Directory interface {
	UserExists(ctx context.Context, id int64) (bool, error)
	Relationship(ctx context.Context, a, b int64) (*models.Relationship, error)
}

type Gate struct {
	dir Directory
}

func New(dir Directory) *Gate {
	return &Gate{dir: dir}
}

// CanSend reports whether sender may message receiver.
//
// Check order: identity validity, self-send, identity existence,
// relationship existence, block flags. Self-send is rejected before the
// existence lookup so that send(A,A) fails with "self" regardless of any
// other state. When both sides have blocked each other, "you-blocked"
// wins: the sender's own block is the one the sender can act on.
//
// Malformed and unknown identities are errors (validation / not-found);
// everything relationship-shaped is a Decision, not an error.
func (g *Gate) CanSend(ctx context.Context, senderID, receiverID int64) (Decision, error) {
	if senderID <= 0 {
		return Decision{}, errors.NewValidationError("sender_id", senderID, "identity must be positive")
	}
	if receiverID <= 0 {
		return Decision{}, errors.NewValidationError("receiver_id", receiverID, "identity must be positive")
	}

	if senderID == receiverID {
		return deny(ReasonSelf), nil
	}

	for _, id := range []int64{senderID, receiverID} {
		exists, err := g.dir.UserExists(ctx, id)
		if err != nil {
			return Decision{}, err
		}
		if !exists {
			return Decision{}, errors.NewNotFoundError("user", id)
		}
	}

	rel, err := g.dir.Relationship(ctx, senderID, receiverID)
	if err != nil {
		return Decision{}, err
	}
	if rel == nil {
		return deny(ReasonNotContacts), nil
	}

	if rel.HasBlocked(senderID, receiverID) {
		return deny(ReasonYouBlocked), nil
	}
	if rel.HasBlocked(receiverID, senderID) {
		return deny(ReasonUserBlocked), nil
	}

	return allow, nil
}

// CanFetch applies the subset of checks that guard conversation reads:
// identity validity, self-fetch, existence. Block state does not hide
// already-exchanged history.
func (g *Gate) CanFetch(ctx context.Context, userID, peerID int64) (Decision, error) {
	if userID <= 0 {
		return Decision{}, errors.NewValidationError("user_id", userID, "identity must be positive")
	}
	if peerID <= 0 {
		return Decision{}, errors.NewValidationError("peer_id", peerID, "identity must be positive")
	}

	if userID == peerID {
		return deny(ReasonSelf), nil
	}

	for _, id := range []int64{userID, peerID} {
		exists, err := g.dir.UserExists(ctx, id)
		if err != nil {
			return Decision{}, err
		}
		if !exists {
			return Decision{}, errors.NewNotFoundError("user", id)
		}
	}

	return allow, nil
}
