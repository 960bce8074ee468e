package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/m-gruen/nexus/internal/errors"
	"github.com/m-gruen/nexus/internal/models"
)

// Directory queries. The contact-request workflow owns these rows; the
// delivery core reads them to answer exactly two questions: does a
// relationship record exist, and who has blocked whom.

// UserExists reports whether the identity is present in the directory.
func (s *Store) UserExists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}

	query := s.rebind(`SELECT 1 FROM users WHERE id = ?`)

	var exists bool
	err := retryableDBOperation(ctx, func() error {
		var one int
		scanErr := s.db.QueryRowContext(ctx, query, id).Scan(&one)
		if scanErr == sql.ErrNoRows {
			exists = false
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		exists = true
		return nil
	}, "user lookup")
	if err != nil {
		return false, errors.NewPersistenceError("user lookup", err)
	}
	return exists, nil
}

// Relationship returns the record between the two identities, or nil
// when none exists.
func (s *Store) Relationship(ctx context.Context, x, y int64) (*models.Relationship, error) {
	a, b := models.NormalizePair(x, y)

	query := s.rebind(`
		SELECT user_a, user_b, status, a_blocked_b, b_blocked_a, created_at, updated_at
		FROM relationships
		WHERE user_a = ? AND user_b = ?
	`)

	var rel *models.Relationship
	err := retryableDBOperation(ctx, func() error {
		var r models.Relationship
		scanErr := s.db.QueryRowContext(ctx, query, a, b).Scan(
			&r.UserA, &r.UserB, &r.Status, &r.ABlockedB, &r.BBlockedA,
			&r.CreatedAt, &r.UpdatedAt,
		)
		if scanErr == sql.ErrNoRows {
			rel = nil
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		rel = &r
		return nil
	}, "relationship lookup")
	if err != nil {
		return nil, errors.NewPersistenceError("relationship lookup", err)
	}
	return rel, nil
}

// CreateUser registers an identity. Used by seeding tooling and tests;
// account provisioning proper lives outside this service.
func (s *Store) CreateUser(ctx context.Context, username string) (int64, error) {
	if username == "" {
		return 0, fmt.Errorf("username must not be empty")
	}

	var id int64
	err := retryableDBOperation(ctx, func() error {
		if s.driver == "postgres" {
			query := s.rebind(`INSERT INTO users (username) VALUES (?) RETURNING id`)
			return s.db.QueryRowContext(ctx, query, username).Scan(&id)
		}
		result, execErr := s.db.ExecContext(ctx, `INSERT INTO users (username) VALUES (?)`, username)
		if execErr != nil {
			return execErr
		}
		var idErr error
		id, idErr = result.LastInsertId()
		return idErr
	}, "create user")
	if err != nil {
		return 0, errors.NewPersistenceError("create user", err)
	}
	return id, nil
}

// SetRelationship upserts the record between two identities, including
// the per-side block flags. blockerX flags are given in normalized order
// (lower id first).
func (s *Store) SetRelationship(ctx context.Context, x, y int64, status models.RelationshipStatus, aBlockedB, bBlockedA bool) error {
	if x == y {
		return fmt.Errorf("relationship requires two distinct identities")
	}
	a, b := models.NormalizePair(x, y)

	query := s.rebind(`
		INSERT INTO relationships (user_a, user_b, status, a_blocked_b, b_blocked_a)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_a, user_b) DO UPDATE SET
			status = excluded.status,
			a_blocked_b = excluded.a_blocked_b,
			b_blocked_a = excluded.b_blocked_a,
			updated_at = CURRENT_TIMESTAMP
	`)

	err := retryableDBOperation(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query, a, b, status, aBlockedB, bBlockedA)
		return execErr
	}, "set relationship")
	if err != nil {
		return errors.NewPersistenceError("set relationship", err)
	}
	return nil
}

// SetBlocked flips one side's block flag on an existing relationship.
func (s *Store) SetBlocked(ctx context.Context, blocker, target int64, blocked bool) error {
	rel, err := s.Relationship(ctx, blocker, target)
	if err != nil {
		return err
	}
	if rel == nil {
		return fmt.Errorf("no relationship between %d and %d", blocker, target)
	}

	a, _ := models.NormalizePair(blocker, target)
	column := "a_blocked_b"
	if blocker != a {
		column = "b_blocked_a"
	}

	query := s.rebind(fmt.Sprintf(`
		UPDATE relationships
		SET %s = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_a = ? AND user_b = ?
	`, column))

	err = retryableDBOperation(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query, blocked, rel.UserA, rel.UserB)
		return execErr
	}, "set blocked")
	if err != nil {
		return errors.NewPersistenceError("set blocked", err)
	}
	return nil
}
