package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Source is a loaded text document ready for extraction.
type Source struct {
	Path string
	Name string // base file name, used as rule provenance
	Text string
}

// Validate checks that the source carries text.
func (s *Source) Validate() error {
	if strings.TrimSpace(s.Text) == "" {
		return errors.New("source text is empty")
	}
	return nil
}

// LoadSource reads a text or HTML file. Markup is stripped from .html and
// .htm files.
func LoadSource(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, err
	}

	text := string(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		text, err = HTMLText(bytes.NewReader(data))
		if err != nil {
			return Source{}, fmt.Errorf("parse html %s: %w", path, err)
		}
	}

	src := Source{Path: path, Name: filepath.Base(path), Text: text}
	if err := src.Validate(); err != nil {
		return Source{}, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}
