// Package anthropic is a narrow wrapper over anthropic-sdk-go that sends
// text and image prompts through the Messages API.
package anthropic

import (
	"context"
	"encoding/base64"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Client sends one Messages API request.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

type sdkClient struct {
	messages sdk.MessageService
}

// NewClient returns a Client for apiKey. opts are handed to the SDK as-is,
// after the key.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	c := sdk.NewClient(opts...)
	return &sdkClient{messages: c.Messages}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  make([]sdk.MessageParam, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, messageParam(m))
	}
	for _, b := range req.System {
		params.System = append(params.System, systemParam(b))
	}

	msg, err := c.messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return toResponse(msg), nil
}

func messageParam(m Message) sdk.MessageParam {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Images)+1)
	for _, img := range m.Images {
		blocks = append(blocks, sdk.NewImageBlockBase64(img.MediaType, base64.StdEncoding.EncodeToString(img.Data)))
	}
	// The API rejects an empty content list.
	if m.Content != "" || len(blocks) == 0 {
		blocks = append(blocks, sdk.NewTextBlock(m.Content))
	}
	if m.Role == RoleAssistant {
		return sdk.NewAssistantMessage(blocks...)
	}
	return sdk.NewUserMessage(blocks...)
}

func systemParam(b SystemBlock) sdk.TextBlockParam {
	p := sdk.TextBlockParam{Text: b.Text}
	if b.CacheControl != nil {
		p.CacheControl = sdk.NewCacheControlEphemeralParam()
		if b.CacheControl.TTL != "" {
			p.CacheControl.TTL = sdk.CacheControlEphemeralTTL(b.CacheControl.TTL)
		}
	}
	return p
}

func toResponse(msg *sdk.Message) *MessageResponse {
	resp := &MessageResponse{
		Model:      string(msg.Model),
		StopReason: string(msg.StopReason),
		Content:    make([]ContentBlock, 0, len(msg.Content)),
		Usage: TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		},
	}
	for _, b := range msg.Content {
		resp.Content = append(resp.Content, ContentBlock{Type: b.Type, Text: b.Text})
	}
	return resp
}
