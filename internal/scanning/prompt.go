package scanning

import "strings"

// lineItemPrompt asks the model for receipt line items as bare JSON
const lineItemPrompt = "You are being shown receipts from a restaurant. Please correctly parse out all items, quantity and prices in the following receipt shown. " +
	"After parsing the data, You will return the extracted information in a JSON object, using the following schema: " +
	`{ "Quantity": (float), "Item": (string), "price": (float) } ` +
	"Do not include markdown formatting in your response. Do not include any explanatory notes. Do not include newline character, dollar or other symbols, stick to strings and numerical notation. Make sure the JSON object is valid"

// imageURLPrefix labels every payload as JPEG, whatever was actually uploaded
const imageURLPrefix = "data:image/jpeg;base64,"

// Prompt is a multimodal extraction request: an instruction plus one image
type Prompt struct {
	Instruction string
	ImageURL    string // data URI
}

// BuildPrompt wraps a base64 image payload in the line item instruction.
// The payload is not inspected.
func BuildPrompt(base64Image string) Prompt {
	return Prompt{
		Instruction: lineItemPrompt,
		ImageURL:    imageURLPrefix + base64Image,
	}
}

// ImageBase64 returns the base64 payload embedded in the data URI
func (p Prompt) ImageBase64() string {
	return strings.TrimPrefix(p.ImageURL, imageURLPrefix)
}
