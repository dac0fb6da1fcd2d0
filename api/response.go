// Package api holds what every HTTP handler package shares: JSON encoding
// and the mapping from conversation errors to status codes.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/puoklam/groupchat/conversation"
)

var validate = validator.New()

type OutError struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// Decode reads a JSON body into v and checks its validate tags. An empty
// body is validated as the zero value.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return validate.Struct(v)
}

func StatusOf(err error) int {
	switch conversation.KindOf(err) {
	case conversation.KindNotFound:
		return http.StatusNotFound
	case conversation.KindAlreadyExists, conversation.KindAlreadyMember,
		conversation.KindAlreadyOwner, conversation.KindNoOp:
		return http.StatusConflict
	case conversation.KindWrongCredential:
		return http.StatusUnauthorized
	case conversation.KindNotOwner, conversation.KindNotMember, conversation.KindOwnerCannotLeave:
		return http.StatusForbidden
	case conversation.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case conversation.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError answers with the status of err. Internal failures are logged
// and their message is not exposed.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusOf(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
		WriteJSON(w, status, OutError{Error: http.StatusText(status)})
		return
	}
	var e *conversation.Error
	errors.As(err, &e)
	WriteJSON(w, status, OutError{Error: e.Message, Kind: e.Kind.String()})
}

// BadRequest answers 400 with msg.
func BadRequest(w http.ResponseWriter, msg string) {
	WriteJSON(w, http.StatusBadRequest, OutError{Error: msg, Kind: conversation.KindInvalidArgument.String()})
}
