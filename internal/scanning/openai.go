package scanning

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAI implements the Scanner interface using the OpenAI chat completions API
type OpenAI struct {
	baseURL string
	model   string
}

// NewOpenAI creates a new OpenAI Scanner instance.
// baseURL may point at any OpenAI-compatible gateway; empty means api.openai.com.
func NewOpenAI(baseURL string, modelName string) (*OpenAI, error) {
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	return &OpenAI{
		baseURL: baseURL,
		model:   modelName,
	}, nil
}

// ScanReceipt sends the instruction and image as a single user message
func (o *OpenAI) ScanReceipt(ctx context.Context, creds Credentials, prompt Prompt) (string, error) {
	if creds.APIKey == "" {
		return "", errors.New("openai api key is required")
	}

	// A client per call keeps the credential scoped to this request
	cfg := openai.DefaultConfig(creds.APIKey)
	if o.baseURL != "" {
		cfg.BaseURL = o.baseURL
	}
	client := openai.NewClientWithConfig(cfg)

	model := o.model
	if creds.Model != "" {
		model = creds.Model
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: prompt.Instruction,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL: prompt.ImageURL,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from openai")
	}

	return resp.Choices[0].Message.Content, nil
}
