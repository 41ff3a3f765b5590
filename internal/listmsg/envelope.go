package listmsg

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BTreeMap/ResellerBot/internal/models"
)

// StructuredMarker prefixes replies that carry a structured payload through
// a single string field. Receivers must check for it before treating the
// value as plain text.
const StructuredMarker = "__STRUCTURED_RESPONSE__:"

// Encode serializes a reply for a string-only channel. Text replies are
// returned unchanged.
func Encode(reply models.Reply) (string, error) {
	if reply.Type != models.ReplyTypeList {
		return reply.Text, nil
	}
	data, err := json.Marshal(reply)
	if err != nil {
		return "", fmt.Errorf("failed to marshal structured reply: %w", err)
	}
	return StructuredMarker + string(data), nil
}

// Decode reverses Encode.
func Decode(s string) (models.Reply, error) {
	if !IsStructured(s) {
		return models.TextReply(s), nil
	}
	var reply models.Reply
	if err := json.Unmarshal([]byte(strings.TrimPrefix(s, StructuredMarker)), &reply); err != nil {
		return models.Reply{}, fmt.Errorf("failed to unmarshal structured reply: %w", err)
	}
	return reply, nil
}

// IsStructured reports whether s was produced by Encode from a list reply.
func IsStructured(s string) bool {
	return strings.HasPrefix(s, StructuredMarker)
}
