package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	model string
}

// NewGemini creates a new Gemini Scanner instance
func NewGemini(modelName string) (*Gemini, error) {
	if modelName == "" {
		modelName = "gemini-2.5-pro"
	}

	return &Gemini{
		model: modelName,
	}, nil
}

// ScanReceipt decodes the image out of the prompt and sends it as inline PNG data
func (g *Gemini) ScanReceipt(ctx context.Context, creds Credentials, prompt Prompt) (string, error) {
	if creds.APIKey == "" {
		return "", errors.New("gemini api key is required")
	}

	imageData, err := decodeImagePayload(prompt.ImageBase64())
	if err != nil {
		return "", err
	}

	// Prepare image data (convert to PNG if needed)
	finalImageData, _, err := convertToPNG(imageData, detectContentType(imageData))
	if err != nil {
		return "", err
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(creds.APIKey))
	if err != nil {
		return "", fmt.Errorf("creating gemini client: %w", err)
	}
	defer client.Close()

	modelName := g.model
	if creds.Model != "" {
		modelName = creds.Model
	}
	model := client.GenerativeModel(modelName)

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	resp, err := model.GenerateContent(ctx,
		genai.ImageData("png", finalImageData),
		genai.Text(prompt.Instruction),
	)
	if err != nil {
		return "", fmt.Errorf("generating content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("no response from gemini")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	return responseText.String(), nil
}
