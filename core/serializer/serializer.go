// Package serializer implements the Serializer Port (spec §4 "Serializer
// Port") — the contract for event decode / response encode that the
// Handler Composer and the Event/Response Features use. Event/response
// envelope types are plug-ins; this package only defines and provides a
// default implementation of the contract.
package serializer

import "encoding/json"

// Serializer decodes raw invocation event bytes into a typed value and
// encodes a typed response value back into bytes.
type Serializer interface {
	Decode(data []byte, v any) error
	Encode(v any) ([]byte, error)
}

// JSON is the default Serializer, implemented on encoding/json — the same
// library the teacher uses throughout core/event and core/command for
// payload marshaling.
type JSON struct {
	// Indent, when non-empty, is used as the indent string for Encode
	// (disabled by the Host Options' ClearOutputFormatting).
	Indent string
}

// Decode implements Serializer.
func (j JSON) Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Encode implements Serializer.
func (j JSON) Encode(v any) ([]byte, error) {
	if j.Indent != "" {
		return json.MarshalIndent(v, "", j.Indent)
	}
	return json.Marshal(v)
}

// NewJSON builds a JSON serializer; pretty indents with two spaces. The
// Host uses pretty output unless its ClearOutputFormatting option is set.
func NewJSON(pretty bool) JSON {
	if pretty {
		return JSON{Indent: "  "}
	}
	return JSON{}
}
