package stokercloud

import (
	"errors"

	"github.com/tidwall/gjson"
)

var errInvalidJSON = errors.New("response body is not valid JSON")

// Document is one JSON document returned verbatim by the service.
type Document struct {
	raw []byte
}

// ParseDocument validates data as JSON and wraps it.
func ParseDocument(data []byte) (Document, error) {
	if !gjson.ValidBytes(data) {
		return Document{}, errInvalidJSON
	}
	return Document{raw: data}, nil
}

// Raw returns the document bytes as received.
func (d Document) Raw() []byte {
	return d.raw
}

// Root returns the parsed top-level value.
func (d Document) Root() gjson.Result {
	return gjson.ParseBytes(d.raw)
}

// Get looks up a gjson path in the document.
func (d Document) Get(path string) gjson.Result {
	return gjson.GetBytes(d.raw, path)
}

// Flatten returns the flattened form of the document.
func (d Document) Flatten() Flat {
	return Flatten(d.Root())
}
