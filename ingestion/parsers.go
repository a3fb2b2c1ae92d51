package ingestion

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	pdf "github.com/ledongthuc/pdf"
)

// unit is one parsed span of text with reader-supplied metadata, before
// splitting into chunks.
type unit struct {
	Text     string
	Metadata map[string]string
}

// parseDocument selects a parser by file extension: .pdf and .md have
// dedicated readers, everything else is treated as plain text.
func parseDocument(data []byte, filename string) ([]unit, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return parsePDF(data)
	case ".md":
		return parseMarkdown(data), nil
	default:
		return parsePlainText(data), nil
	}
}

// parsePDF extracts one unit per page, carrying the page number.
func parsePDF(data []byte) ([]unit, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	units := make([]unit, 0, reader.NumPage())
	for num := 1; num <= reader.NumPage(); num++ {
		page := reader.Page(num)
		if page.V.IsNull() {
			continue
		}

		text, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", num, pageErr)
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		units = append(units, unit{
			Text:     text,
			Metadata: map[string]string{"page": strconv.Itoa(num)},
		})
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("pdf contains no extractable text")
	}
	return units, nil
}

// parseMarkdown emits one unit per top-level section (split on # / ##
// headings), keeping the heading as section metadata. Content before the
// first heading becomes its own unit.
func parseMarkdown(data []byte) []unit {
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(content, "\n")

	units := make([]unit, 0)
	var section string
	var buf []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if text == "" {
			return
		}
		meta := map[string]string{}
		if section != "" {
			meta["section"] = section
		}
		units = append(units, unit{Text: text, Metadata: meta})
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") || strings.HasPrefix(trimmed, "## ") {
			flush()
			section = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
		buf = append(buf, line)
	}
	flush()

	return units
}

func parsePlainText(data []byte) []unit {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil
	}
	return []unit{{Text: text, Metadata: map[string]string{}}}
}
