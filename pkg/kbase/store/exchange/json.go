package exchange

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
)

// WriteJSON writes doc as indented UTF-8 JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

// ReadJSON decodes a document written by WriteJSON.
func ReadJSON(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w: %v", internalerr.ErrInvalidInput, err)
	}
	return &doc, nil
}
