// Package apierr maps service errors onto HTTP responses.
package apierr

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	chatservice "github.com/zhouzirui/z-tavern/callhub/internal/service/chat"
	"github.com/zhouzirui/z-tavern/callhub/internal/service/dialogue"
	"github.com/zhouzirui/z-tavern/callhub/pkg/utils"
)

// Status picks the HTTP status for err.
func Status(err error) int {
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound),
		errors.Is(err, chatservice.ErrCharacterNotFound),
		errors.Is(err, dialogue.ErrCharacterNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatservice.ErrUserRequired),
		errors.Is(err, chatservice.ErrCharacterRequired),
		errors.Is(err, dialogue.ErrEmptyMessage),
		errors.Is(err, dialogue.ErrMessageTooLong):
		return http.StatusBadRequest
	case errors.Is(err, dialogue.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Write responds with err. Internal errors are logged and replaced by a generic message.
func Write(w http.ResponseWriter, err error) {
	status := Status(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("component", "http").Msg("request failed")
		utils.RespondError(w, status, "internal error")
		return
	}
	utils.RespondError(w, status, err.Error())
}
