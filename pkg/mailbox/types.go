package mailbox

import (
	"github.com/m-gruen/nexus/internal/models"
)

// SendRequest is the POST /api/v1/messages payload.
type SendRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	Nonce      string `json:"nonce"`
}

// AckRequest is the POST /api/v1/messages/ack payload.
type AckRequest struct {
	MessageIDs []int64 `json:"message_ids"`
}

// AckResponse reports how many mailbox rows were actually removed,
// which may be fewer than requested.
type AckResponse struct {
	Deleted int64 `json:"deleted"`
}

// FetchResponse is the ordered conversation slice.
type FetchResponse struct {
	Messages []models.Message `json:"messages"`
}

// ErrorBody is the normalized error envelope every API failure carries.
// Category mirrors the server's error code; Reason is set only for
// permission denials.
type ErrorBody struct {
	Error struct {
		Category string `json:"category"`
		Message  string `json:"message"`
		Reason   string `json:"reason,omitempty"`
	} `json:"error"`
}
