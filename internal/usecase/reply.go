package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"

	"chat-client/internal/domain"
)

const errorPrefix = "Error: "

// onResponse turns a decoded reply into bot entries. The returned error is
// informational: SERVER_ERROR still yields an entry, EMPTY_REPLY yields none.
func onResponse(reply domain.ChatReply) ([]domain.Entry, error) {
	if present(reply.Response) {
		raw := bytes.TrimSpace(reply.Response)
		if raw[0] != '[' {
			return []domain.Entry{botEntry(contentOf(raw))}, nil
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return onTransportFailure(err.Error()), newError(ErrorTransport, "malformed_response_array", err)
		}
		entries := make([]domain.Entry, 0, len(items))
		for _, item := range items {
			entries = append(entries, botEntry(contentOf(item)))
		}
		return entries, nil
	}

	if present(reply.Error) {
		msg := scalarText(reply.Error)
		return []domain.Entry{botEntry(domain.TextContent(errorPrefix + msg))},
			newError(ErrorServer, "server_reported", errors.New(msg))
	}

	return nil, newError(ErrorEmptyReply, "no_response_or_error", nil)
}

// onTransportFailure renders a failed exchange as one bot entry.
func onTransportFailure(message string) []domain.Entry {
	return []domain.Entry{botEntry(domain.TextContent(errorPrefix + message))}
}

func botEntry(c domain.Content) domain.Entry {
	return domain.Entry{Sender: domain.SenderBot, Content: c}
}

// present reports whether a reply field is set to a truthy value. Absent
// fields, null, false, 0 and "" all count as missing; an empty array or
// object does not.
func present(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch string(raw) {
	case "null", "false", `""`:
		return false
	}
	if f, err := strconv.ParseFloat(string(raw), 64); err == nil {
		return f != 0
	}
	return true
}

// contentOf keeps JSON strings as text and everything else structured.
func contentOf(raw json.RawMessage) domain.Content {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return domain.TextContent(s)
		}
	}
	return domain.StructuredContent(raw)
}

// scalarText renders a reply field for inline use: strings verbatim, other
// values as compact JSON.
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
