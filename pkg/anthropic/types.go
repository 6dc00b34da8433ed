package anthropic

import "strings"

// Roles accepted in Message.Role. Anything other than RoleAssistant is sent
// as a user turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StopMaxTokens is the stop reason of an answer cut off by MaxTokens.
const StopMaxTokens = "max_tokens"

// MessageRequest is one Messages API call.
type MessageRequest struct {
	Model     string
	MaxTokens int64
	System    []SystemBlock
	Messages  []Message
}

// SystemBlock is one block of the system prompt.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl marks a block as a prompt-cache breakpoint. TTL is "5m" or
// "1h"; empty uses the API default.
type CacheControl struct {
	TTL string
}

// Message is a single turn. Its images are sent ahead of the text.
type Message struct {
	Role    string
	Content string
	Images  []Image
}

// Image is an inline image sent as base64.
type Image struct {
	MediaType string
	Data      []byte
}

// MessageResponse is the part of an API answer the extractors read.
type MessageResponse struct {
	Model      string
	Content    []ContentBlock
	StopReason string
	Usage      TokenUsage
}

// ContentBlock is one block of a response.
type ContentBlock struct {
	Type string
	Text string
}

// Text concatenates the text blocks of the response.
func (r *MessageResponse) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// Truncated reports whether the answer hit the token limit.
func (r *MessageResponse) Truncated() bool { return r.StopReason == StopMaxTokens }
