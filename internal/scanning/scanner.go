package scanning

import "context"

// Credentials identify the caller to the model provider for a single call
type Credentials struct {
	APIKey string
	Model  string // empty means the scanner's default model
}

// Scanner defines the interface for receipt extraction against a multimodal model
type Scanner interface {
	// ScanReceipt sends the prompt to the model and returns the raw text of its reply
	ScanReceipt(ctx context.Context, creds Credentials, prompt Prompt) (string, error)
}
