package receipt

// ParseReceiptRequest is the body of POST /parse_receipt
type ParseReceiptRequest struct {
	Base64Image string `json:"base64_image"`
}

// ParseReceiptResponse carries the normalized line items
type ParseReceiptResponse struct {
	ParsedData *Table `json:"parsed_data"`
}

// messageResponse is the body of the root endpoint
type messageResponse struct {
	Message string `json:"message"`
}

// detailResponse is the body of every error the service reports itself
type detailResponse struct {
	Detail string `json:"detail"`
}

// ValidationError describes why a request body was rejected
type ValidationError struct {
	Type string `json:"type"`
	Loc  []any  `json:"loc"`
	Msg  string `json:"msg"`
}

// validationResponse is the 422 body, one entry per problem
type validationResponse struct {
	Detail []ValidationError `json:"detail"`
}
