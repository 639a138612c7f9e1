package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAPIModel = "claude-sonnet-4-5"

// APIExecutor drives a stage through a single bounded Anthropic API call,
// for stages that are one prompt/response exchange rather than an
// open-ended coding session (Validate, ProcessComment).
type APIExecutor struct {
	api          *anthropic.Client
	defaultModel anthropic.Model
}

// NewAPIExecutor creates an APIExecutor using apiKey.
func NewAPIExecutor(apiKey string) *APIExecutor {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &APIExecutor{api: &client, defaultModel: anthropic.Model(defaultAPIModel)}
}

func (e *APIExecutor) Run(ctx context.Context, req StageRequest) (StageOutcome, error) {
	model := e.defaultModel
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}

	prompt := strings.Join(req.Prompts, "\n\n")
	msg, err := e.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: 4096,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if ctx.Err() != nil {
		return StageOutcome{Status: StatusCancelled}, nil
	}
	if err != nil {
		return StageOutcome{Status: StatusFailure, Err: fmt.Errorf("anthropic API call: %w", err)}, nil
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}

	return StageOutcome{Status: StatusSuccess, SessionRef: msg.ID, Output: text}, nil
}
