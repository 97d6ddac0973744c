// Package docimport turns uploaded documents into note drafts. PDFs are
// reduced to their plain text; Markdown and text files may carry a YAML
// frontmatter block with the note title and code.
package docimport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"gopkg.in/yaml.v3"
)

// ErrUnsupported is returned for documents that are neither PDF nor UTF-8 text.
var ErrUnsupported = errors.New("unsupported document")

// MaxSize bounds the accepted upload size.
const MaxSize = 10 << 20

// Draft is the note an imported document becomes.
type Draft struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	CodeName    *string `json:"code_name,omitempty"`
}

type frontmatter struct {
	Title string `yaml:"title"`
	Code  string `yaml:"code"`
}

// Extract builds a Draft from a named document.
func Extract(name string, data []byte) (Draft, error) {
	if len(data) > MaxSize {
		return Draft{}, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrUnsupported, len(data), MaxSize)
	}
	title := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if title == "." || title == "" {
		title = "Imported document"
	}

	if strings.EqualFold(filepath.Ext(name), ".pdf") || bytes.HasPrefix(data, []byte("%PDF")) {
		text, err := pdfText(data)
		if err != nil {
			return Draft{}, err
		}
		return Draft{Title: title, Description: text}, nil
	}

	if !utf8.Valid(data) {
		return Draft{}, fmt.Errorf("%w: %s is not UTF-8 text", ErrUnsupported, name)
	}
	return parseText(title, data)
}

func parseText(title string, data []byte) (Draft, error) {
	d := Draft{Title: title}
	if !bytes.HasPrefix(data, []byte("---\n")) && !bytes.HasPrefix(data, []byte("---\r\n")) {
		d.Description = strings.TrimSpace(string(data))
		return d, nil
	}

	rest := data[3:]
	parts := bytes.SplitN(rest, []byte("\n---"), 2)
	if len(parts) == 1 {
		return Draft{}, errors.New("frontmatter started but no closing delimiter found")
	}

	var fm frontmatter
	if err := yaml.Unmarshal(parts[0], &fm); err != nil {
		return Draft{}, fmt.Errorf("parsing frontmatter: %w", err)
	}
	if t := strings.TrimSpace(fm.Title); t != "" {
		d.Title = t
	}
	if c := strings.TrimSpace(fm.Code); c != "" {
		d.CodeName = &c
	}
	d.Description = strings.TrimSpace(string(parts[1]))
	return d, nil
}

func pdfText(data []byte) (text string, err error) {
	// The PDF reader panics on some malformed inputs.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: malformed PDF: %v", ErrUnsupported, p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: reading PDF: %v", ErrUnsupported, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting PDF text: %w", err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("extracting PDF text: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
