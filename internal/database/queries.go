package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-gruen/nexus/internal/errors"
	"github.com/m-gruen/nexus/internal/models"
)

// InsertMessage persists one mailbox row and returns it with the
// server-assigned id and timestamp. Permission checks happen before this
// call; the store only enforces what its schema can.
func (s *Store) InsertMessage(ctx context.Context, senderID, receiverID int64, content, nonce string) (*models.Message, error) {
	storedContent, err := s.encryptor.EncryptIfEnabled(content)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt content: %w", err)
	}
	storedNonce, err := s.encryptor.EncryptIfEnabled(nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt nonce: %w", err)
	}

	sentAt := time.Now().UTC()

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		Nonce:      nonce,
		SentAt:     sentAt,
	}

	err = retryableDBOperation(ctx, func() error {
		if s.driver == "postgres" {
			query := s.rebind(`
				INSERT INTO mailbox (sender_id, receiver_id, content, nonce, sent_at)
				VALUES (?, ?, ?, ?, ?)
				RETURNING id
			`)
			return s.db.QueryRowContext(ctx, query,
				senderID, receiverID, storedContent, storedNonce, sentAt).Scan(&msg.ID)
		}

		query := `
			INSERT INTO mailbox (sender_id, receiver_id, content, nonce, sent_at)
			VALUES (?, ?, ?, ?, ?)
		`
		result, execErr := s.db.ExecContext(ctx, query,
			senderID, receiverID, storedContent, storedNonce, sentAt)
		if execErr != nil {
			return execErr
		}
		id, idErr := result.LastInsertId()
		if idErr != nil {
			return idErr
		}
		msg.ID = id
		return nil
	}, "insert message")
	if err != nil {
		return nil, errors.NewPersistenceError("insert", err)
	}

	return msg, nil
}

// FetchConversation returns every mailbox row between the two users, in
// either direction, ordered by timestamp ascending with id as the
// tie-breaker. The result is identical for (a,b) and (b,a).
func (s *Store) FetchConversation(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	query := s.rebind(`
		SELECT id, sender_id, receiver_id, content, nonce, sent_at
		FROM mailbox
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY sent_at ASC, id ASC
	`)

	var messages []models.Message
	err := retryableDBOperation(ctx, func() error {
		rows, queryErr := s.db.QueryContext(ctx, query, userA, userB, userB, userA)
		if queryErr != nil {
			return queryErr
		}
		defer func() { _ = rows.Close() }()

		result := make([]models.Message, 0)
		for rows.Next() {
			var msg models.Message
			var storedContent, storedNonce string
			if scanErr := rows.Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID,
				&storedContent, &storedNonce, &msg.SentAt); scanErr != nil {
				return scanErr
			}
			var decErr error
			msg.Content, decErr = s.encryptor.DecryptIfEnabled(storedContent)
			if decErr != nil {
				return fmt.Errorf("failed to decrypt content: %w", decErr)
			}
			msg.Nonce, decErr = s.encryptor.DecryptIfEnabled(storedNonce)
			if decErr != nil {
				return fmt.Errorf("failed to decrypt nonce: %w", decErr)
			}
			result = append(result, msg)
		}
		if rowsErr := rows.Err(); rowsErr != nil {
			return rowsErr
		}
		messages = result
		return nil
	}, "fetch conversation")
	if err != nil {
		return nil, errors.NewPersistenceError("fetch", err)
	}

	return messages, nil
}

// DeleteReceived removes the rows whose receiver is receiverID and whose
// id appears in ids. Foreign, unknown and non-positive ids are filtered
// silently; the returned count is what was actually removed. This is the
// receiver's acknowledgment, not a general-purpose delete.
func (s *Store) DeleteReceived(ctx context.Context, receiverID int64, ids []int64) (int64, error) {
	valid := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id > 0 {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(valid))
	placeholders = placeholders[:len(placeholders)-1]
	query := s.rebind(fmt.Sprintf(`
		DELETE FROM mailbox
		WHERE receiver_id = ? AND id IN (%s)
	`, placeholders))

	args := make([]interface{}, 0, len(valid)+1)
	args = append(args, receiverID)
	for _, id := range valid {
		args = append(args, id)
	}

	var deleted int64
	err := retryableDBOperation(ctx, func() error {
		result, execErr := s.db.ExecContext(ctx, query, args...)
		if execErr != nil {
			return execErr
		}
		n, affErr := result.RowsAffected()
		if affErr != nil {
			return affErr
		}
		deleted = n
		return nil
	}, "delete received")
	if err != nil {
		return 0, errors.NewPersistenceError("delete", err)
	}

	return deleted, nil
}
