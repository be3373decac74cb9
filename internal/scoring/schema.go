// Package scoring talks to the external lead scoring service.
package scoring

import (
	_ "embed"
)

//go:embed schema/analyze_lead_request.json
var requestSchema []byte

// RequestSchema returns the JSON Schema describing the outbound payload.
func RequestSchema() []byte {
	out := make([]byte, len(requestSchema))
	copy(out, requestSchema)
	return out
}
