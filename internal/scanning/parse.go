package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Outcome tags how a model reply was interpreted
type Outcome int

const (
	// OutcomeItems means at least one line item was decoded
	OutcomeItems Outcome = iota
	// OutcomeEmpty means the reply was a valid but empty list
	OutcomeEmpty
	// OutcomeUndecodable means the reply was not a JSON list of objects
	OutcomeUndecodable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeItems:
		return "items"
	case OutcomeEmpty:
		return "empty"
	case OutcomeUndecodable:
		return "undecodable"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Field is a single key/value pair of a line item, value kept as emitted
type Field struct {
	Name  string
	Value json.RawMessage
}

// Record is one line item in the key order the model produced it.
// Conventionally it carries Quantity, Item and price, but nothing is enforced.
type Record struct {
	Fields []Field
}

// ParseResult is the outcome of coercing a model reply into line items
type ParseResult struct {
	Records []Record
	Outcome Outcome
	Err     error // decode error when Outcome is OutcomeUndecodable
}

// ParseLineItems interprets raw model text as a JSON array of line item objects.
// It never fails: text that cannot be decoded yields OutcomeUndecodable with the
// decode error attached, and the caller decides what to do with it.
func ParseLineItems(text string) ParseResult {
	records, err := decodeRecords(stripCodeFence(text))
	if err != nil {
		return ParseResult{Outcome: OutcomeUndecodable, Err: err}
	}
	if len(records) == 0 {
		return ParseResult{Outcome: OutcomeEmpty}
	}
	return ParseResult{Records: records, Outcome: OutcomeItems}
}

// stripCodeFence removes a markdown code block, whatever its info string
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	_, body, found := strings.Cut(text, "\n")
	if !found {
		// Fence and payload on one line, e.g. ```[...]```
		body = strings.TrimLeft(text, "`")
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}

// decodeRecords accepts either an array of objects or a single object
func decodeRecords(text string) ([]Record, error) {
	dec := json.NewDecoder(strings.NewReader(text))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading json: %w", err)
	}

	var records []Record
	switch tok {
	case json.Delim('['):
		records = make([]Record, 0)
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, fmt.Errorf("reading line item %d: %w", len(records), err)
			}
			if tok != json.Delim('{') {
				return nil, fmt.Errorf("line item %d is not an object", len(records))
			}
			rec, err := decodeObject(dec)
			if err != nil {
				return nil, fmt.Errorf("reading line item %d: %w", len(records), err)
			}
			records = append(records, rec)
		}
		if _, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("closing array: %w", err)
		}
	case json.Delim('{'):
		rec, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("reading line item: %w", err)
		}
		// A bare {} carries no line item
		records = make([]Record, 0, 1)
		if len(rec.Fields) > 0 {
			records = append(records, rec)
		}
	default:
		return nil, fmt.Errorf("expected a JSON array or object, got %v", tok)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}

	return records, nil
}

// decodeObject reads the members of an object whose opening brace was consumed
func decodeObject(dec *json.Decoder) (Record, error) {
	var rec Record
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Record{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, fmt.Errorf("unexpected object key %v", tok)
		}

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return Record{}, fmt.Errorf("field %q: %w", key, err)
		}

		// Last value wins, first position is kept
		if i, seen := index[key]; seen {
			rec.Fields[i].Value = value
			continue
		}
		index[key] = len(rec.Fields)
		rec.Fields = append(rec.Fields, Field{Name: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return Record{}, err
	}
	return rec, nil
}
