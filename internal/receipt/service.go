package receipt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zombor/receipt-parser/internal/scanning"
)

var (
	// ErrConfiguration means the credential file is missing or malformed
	ErrConfiguration = errors.New("configuration error")
	// ErrUpstream means the model provider call failed
	ErrUpstream = errors.New("upstream model error")
	// ErrNoLineItems means the model reply produced no usable line items
	ErrNoLineItems = errors.New("could not parse receipt data")
)

// NoLineItemsError records why a reply produced no line items.
// It matches ErrNoLineItems with errors.Is.
type NoLineItemsError struct {
	Outcome scanning.Outcome
	Cause   error // decode error, nil for a valid empty list
}

func (e *NoLineItemsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %v", ErrNoLineItems, e.Outcome, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", ErrNoLineItems, e.Outcome)
}

func (e *NoLineItemsError) Is(target error) bool {
	return target == ErrNoLineItems
}

func (e *NoLineItemsError) Unwrap() error {
	return e.Cause
}

// Service runs the extraction pipeline for one receipt image
type Service struct {
	credentials CredentialSource
	scanner     scanning.Scanner
	timeout     time.Duration
}

// NewService creates a new Service whose model calls are bounded only by the caller's context
func NewService(credentials CredentialSource, scanner scanning.Scanner) *Service {
	return NewServiceWithTimeout(credentials, scanner, 0)
}

// NewServiceWithTimeout creates a new Service that gives up on the model after timeout.
// A zero timeout disables the limit.
func NewServiceWithTimeout(credentials CredentialSource, scanner scanning.Scanner, timeout time.Duration) *Service {
	return &Service{
		credentials: credentials,
		scanner:     scanner,
		timeout:     timeout,
	}
}

// ParseReceipt extracts line items from a base64 encoded receipt image
func (s *Service) ParseReceipt(ctx context.Context, base64Image string) (*Table, error) {
	logger := loggerFromContext(ctx)

	// Credentials are re-read per request
	creds, err := s.credentials.Load()
	if err != nil {
		if !errors.Is(err, ErrConfiguration) {
			err = fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		return nil, err
	}

	prompt := scanning.BuildPrompt(base64Image)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.scanner.ScanReceipt(ctx, creds, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	logger.Debug("Model replied", "duration", time.Since(start), "reply_length", len(text))

	result := scanning.ParseLineItems(text)
	switch result.Outcome {
	case scanning.OutcomeUndecodable:
		logger.Warn("Model reply is not line item JSON",
			"error", result.Err,
			"reply_length", len(text),
		)
		return nil, &NoLineItemsError{Outcome: result.Outcome, Cause: result.Err}
	case scanning.OutcomeEmpty:
		logger.Info("Model reply contained no line items")
		return nil, &NoLineItemsError{Outcome: result.Outcome}
	}

	table := NormalizeLineItems(result.Records)
	logger.Info("Parsed receipt", "line_items", table.Len(), "columns", len(table.Columns))
	return table, nil
}
