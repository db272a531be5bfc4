package gmail

import (
	"encoding/base64"
	"log/slog"
	"strings"

	"google.golang.org/api/gmail/v1"
)

// ParsedMessage is the provider-independent view of one mail message, as
// handed to the notification dispatcher.
type ParsedMessage struct {
	ID              string
	ThreadID        string
	RFC822MessageID string
	Subject         string
	From            string
	FromUser        string
	FromEmail       string
	Date            string
	Body            string
	Snippet         string
}

// ParseMessage converts a raw Gmail message into a ParsedMessage. Pure
// function, no I/O; malformed headers never cause a failure.
func ParseMessage(msg *gmail.Message) *ParsedMessage {
	parsed := &ParsedMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
	}

	if msg.Payload != nil {
		parsed.Subject = findHeader(msg.Payload.Headers, "Subject")
		parsed.From = findHeader(msg.Payload.Headers, "From")
		parsed.Date = findHeader(msg.Payload.Headers, "Date")
		parsed.RFC822MessageID = findHeader(msg.Payload.Headers, "Message-ID")
		parsed.FromUser, parsed.FromEmail = ParseFromHeader(parsed.From)
		parsed.Body = extractBody(msg.Payload)
	}

	return parsed
}

// ParseFromHeader splits a From header into display name and address.
//
// The split point is the *last* '<', so a stray '<' inside the display name
// is absorbed into the name rather than treated as the delimiter. With no
// '<' at all, the whole trimmed string is the address and there is no name.
// With '<' but no closing '>' after it, the name stands and the address is
// empty. One layer of surrounding double quotes is stripped from the name.
func ParseFromHeader(from string) (user, email string) {
	from = strings.TrimSpace(from)
	if from == "" {
		return "", ""
	}

	open := strings.LastIndex(from, "<")
	if open < 0 {
		return "", from
	}

	user = strings.TrimSpace(from[:open])
	if len(user) >= 2 && strings.HasPrefix(user, `"`) && strings.HasSuffix(user, `"`) {
		user = user[1 : len(user)-1]
	}

	rest := from[open+1:]
	end := strings.LastIndex(rest, ">")
	if end < 0 {
		return user, ""
	}

	return user, strings.TrimSpace(rest[:end])
}

// findHeader does a case-insensitive header lookup.
func findHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractBody pulls a displayable text body out of the payload tree.
//
// A direct body payload wins. Otherwise the part tree is searched depth
// first for a text/plain leaf; only if none exists anywhere does the first
// text/html leaf serve as fallback.
func extractBody(payload *gmail.MessagePart) string {
	if payload == nil {
		return ""
	}

	if payload.Body != nil && payload.Body.Data != "" {
		return decodeBodyData(payload.Body.Data)
	}

	if body := findLeaf(payload.Parts, "text/plain"); body != "" {
		return body
	}
	return findLeaf(payload.Parts, "text/html")
}

func findLeaf(parts []*gmail.MessagePart, mimeType string) string {
	for _, part := range parts {
		if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
			if body := decodeBodyData(part.Body.Data); body != "" {
				return body
			}
		}
		if len(part.Parts) > 0 {
			if body := findLeaf(part.Parts, mimeType); body != "" {
				return body
			}
		}
	}
	return ""
}

// decodeBodyData decodes the provider's base64url body encoding. A decode
// failure is logged and yields an empty body, never an error.
func decodeBodyData(data string) string {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(data)
	}
	if err != nil {
		slog.Warn("failed to decode message body", "error", err)
		return ""
	}
	return string(decoded)
}
