package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

const (
	rootMessage       = "Hello from FastAPI!"
	noLineItemsDetail = "Could not parse receipt data"
)

// writeJSON encodes body as the JSON response with the given status
func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeDetail writes an error response with a single detail message
func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, detailResponse{Detail: detail})
}

// handleRoot returns a static liveness message
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: rootMessage})
}

// handleHealth answers container and load balancer probes
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleParseReceipt extracts line items from a base64 receipt image
func (s *Server) handleParseReceipt(w http.ResponseWriter, r *http.Request) {
	logger := loggerFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "Request body is too large")
			return
		}
		logger.Error("Error reading request body", "error", err)
		writeDetail(w, http.StatusBadRequest, "Error reading request body")
		return
	}

	req, problems := decodeParseReceiptRequest(r.Header.Get("Content-Type"), body)
	if len(problems) > 0 {
		logger.Info("Rejected parse request", "problem", problems[0].Type)
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: problems})
		return
	}

	table, err := s.service.ParseReceipt(r.Context(), req.Base64Image)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ParseReceiptResponse{ParsedData: table})
	case errors.Is(err, ErrNoLineItems):
		writeDetail(w, http.StatusBadRequest, noLineItemsDetail)
	case errors.Is(err, ErrConfiguration):
		logger.Error("Error loading credentials", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Receipt parser is not configured")
	case errors.Is(err, ErrUpstream):
		logger.Error("Error calling model", "error", err)
		writeDetail(w, http.StatusBadGateway, "Upstream model request failed")
	default:
		logger.Error("Error parsing receipt", "error", err)
		writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

// decodeParseReceiptRequest validates the request body before any model work.
// The problems it reports mirror what a schema validating framework would say.
func decodeParseReceiptRequest(contentType string, body []byte) (ParseReceiptRequest, []ValidationError) {
	var req ParseReceiptRequest

	if contentType != "" && !isJSONContentType(contentType) {
		return req, []ValidationError{{
			Type: "model_attributes_type",
			Loc:  []any{"body"},
			Msg:  "Input should be a valid dictionary or object to extract fields from",
		}}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return req, []ValidationError{{
			Type: "missing",
			Loc:  []any{"body"},
			Msg:  "Field required",
		}}
	}

	if !json.Valid(body) {
		return req, []ValidationError{{
			Type: "json_invalid",
			Loc:  []any{"body"},
			Msg:  "JSON decode error",
		}}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return req, []ValidationError{{
			Type: "model_attributes_type",
			Loc:  []any{"body"},
			Msg:  "Input should be a valid dictionary or object to extract fields from",
		}}
	}

	raw, ok := fields["base64_image"]
	if !ok {
		return req, []ValidationError{{
			Type: "missing",
			Loc:  []any{"body", "base64_image"},
			Msg:  "Field required",
		}}
	}

	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) || json.Unmarshal(raw, &req.Base64Image) != nil {
		return req, []ValidationError{{
			Type: "string_type",
			Loc:  []any{"body", "base64_image"},
			Msg:  "Input should be a valid string",
		}}
	}

	return req, nil
}
