// Package corpus loads batches of source documents for extraction.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/kbase/pkg/kbase/internalerr"
)

// Document is one text to extract from.
type Document struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Text   string `json:"text"`
}

// Name is the provenance recorded on candidates: the source, else the title.
func (d Document) Name() string {
	if d.Source != "" {
		return d.Source
	}
	return d.Title
}

const maxLine = 16 << 20

// LoadJSONL reads one document per line. Malformed lines and documents
// without text are skipped with a warning.
func LoadJSONL(path string, logger *zap.Logger) ([]Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}
	defer f.Close()

	var docs []Document
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var doc Document
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			logger.Warn("skipping malformed line", zap.String("path", path), zap.Int("line", n), zap.Error(err))
			continue
		}
		if strings.TrimSpace(doc.Text) == "" {
			logger.Warn("skipping document without text", zap.String("path", path), zap.Int("line", n))
			continue
		}
		if doc.Name() == "" {
			doc.Source = fmt.Sprintf("%s:%d", path, n)
		}
		docs = append(docs, doc)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no valid documents found in %s: %w", path, internalerr.ErrInvalidInput)
	}
	return docs, nil
}
