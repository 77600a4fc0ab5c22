package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxReplyBytes bounds how much of an upstream response body is read.
const MaxReplyBytes = 1 << 20

// ErrReplyTooLarge is returned when a response body exceeds MaxReplyBytes.
var ErrReplyTooLarge = errors.New("schema: reply exceeds size limit")

// ReadReply reads an upstream response body, refusing anything larger than
// MaxReplyBytes.
func ReadReply(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxReplyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > MaxReplyBytes {
		return nil, ErrReplyTooLarge
	}
	return raw, nil
}

// ErrorMessage extracts the error or message field from a JSON error body,
// falling back to a generic message with the status code.
func ErrorMessage(raw []byte, status int) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return fmt.Sprintf("Request failed (%d)", status)
}
