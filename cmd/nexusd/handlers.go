package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/m-gruen/nexus/internal/errors"

	"github.com/sirupsen/logrus"
)

const maxRequestBody = 1 << 20 // 1 MiB

type contextKey string

const userIDKey contextKey = "auth_user_id"

type sendRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
	Nonce      string `json:"nonce"`
}

type ackRequest struct {
	MessageIDs []int64 `json:"message_ids"`
}

// errorBody is the normalized envelope every failure crosses the
// boundary in: a status/category pair plus the user-safe message. No
// storage detail leaks.
type errorBody struct {
	Error struct {
		Category string `json:"category"`
		Message  string `json:"message"`
		Reason   string `json:"reason,omitempty"`
	} `json:"error"`
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			s.writeError(w, errors.NewAuthenticationError("missing bearer token"))
			return
		}

		userID, err := s.verifier.Verify(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			s.writeError(w, errors.NewAuthenticationError("invalid bearer token"))
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authedUser(r *http.Request) int64 {
	if id, ok := r.Context().Value(userIDKey).(int64); ok {
		return id
	}
	return 0
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

func (s *Server) handleSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		senderID := authedUser(r)

		if !s.limiter.AllowUser(senderID) {
			s.writeError(w, errors.New(errors.ErrCodeRateLimit, "send rate exceeded").
				WithUserMessage("Too many messages, slow down"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			s.writeError(w, errors.NewValidationError("body", nil, "failed to read request body"))
			return
		}

		if err := s.validator.validate(s.validator.send, body); err != nil {
			s.writeError(w, errors.NewValidationError("body", nil, err.Error()))
			return
		}

		var req sendRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, errors.NewValidationError("body", nil, "malformed send request"))
			return
		}

		msg, err := s.msgService.Send(r.Context(), senderID, req.ReceiverID, req.Content, req.Nonce)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusCreated, msg)
	}
}

func (s *Server) handleFetch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authedUser(r)

		peerID, err := strconv.ParseInt(r.URL.Query().Get("peer"), 10, 64)
		if err != nil {
			s.writeError(w, errors.NewValidationError("peer", r.URL.Query().Get("peer"), "peer must be a numeric identity"))
			return
		}

		msgs, err := s.msgService.Fetch(r.Context(), userID, peerID)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"messages": msgs,
		})
	}
}

func (s *Server) handleAck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		receiverID := authedUser(r)

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
		if err != nil {
			s.writeError(w, errors.NewValidationError("body", nil, "failed to read request body"))
			return
		}

		if err := s.validator.validate(s.validator.ack, body); err != nil {
			s.writeError(w, errors.NewValidationError("body", nil, err.Error()))
			return
		}

		var req ackRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, errors.NewValidationError("body", nil, "malformed ack request"))
			return
		}

		deleted, err := s.msgService.Acknowledge(r.Context(), receiverID, req.MessageIDs)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatus(code)

	var body errorBody
	body.Error.Category = string(code)
	body.Error.Message = errors.GetUserMessage(err)
	body.Error.Reason = errors.PermissionReason(err)

	if status >= 500 {
		s.logger.WithFields(logrus.Fields{
			"category": code,
		}).Errorf("Request failed: %v", err)
		// Replace any internal detail with a generic message.
		body.Error.Message = "internal server error"
		body.Error.Category = string(errors.ErrCodeInternalError)
		if code == errors.ErrCodePersistence {
			body.Error.Category = string(errors.ErrCodePersistence)
			body.Error.Message = "temporary storage failure, retry the operation"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(body); encodeErr != nil {
		s.logger.Errorf("Failed to encode error response: %v", encodeErr)
	}
}
