package models

import (
	"time"
)

// Message is one mailbox row. Messages are immutable once created; the
// server is the lone writer and assigns ID (monotonic autoincrement) and
// SentAt. Content and Nonce are opaque to this system and pass through
// unmodified end to end.
type Message struct {
	ID         int64     `json:"id" db:"id"`
	SenderID   int64     `json:"sender_id" db:"sender_id"`
	ReceiverID int64     `json:"receiver_id" db:"receiver_id"`
	Content    string    `json:"content" db:"content"`
	Nonce      string    `json:"nonce" db:"nonce"`
	SentAt     time.Time `json:"sent_at" db:"sent_at"`
}

// PeerOf returns the other party of the message from the given user's
// point of view.
func (m *Message) PeerOf(userID int64) int64 {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}
