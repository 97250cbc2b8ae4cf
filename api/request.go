package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"carechat/errors"
)

var validate = validator.New()

// sendMessageRequest is the tagged union for sending TEXT or AUDIO.
// TEXT requires content; AUDIO requires the attachment id produced by a
// prior upload. Cross-field rules are enforced by the service.
type sendMessageRequest struct {
	ReceiverID      string `json:"receiverId" validate:"required"`
	Type            string `json:"type" validate:"required,oneof=TEXT AUDIO"`
	Content         string `json:"content"`
	AudioID         string `json:"audioId"`
	DurationSeconds int    `json:"durationSeconds" validate:"min=0"`
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type reactionRequest struct {
	Reaction string `json:"reaction" validate:"max=64"`
}

type typingRequest struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Typing         bool   `json:"typing"`
}

// decode parses the JSON body into dst and runs its validation tags.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", errors.ErrInvalidArgument)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return nil
}
