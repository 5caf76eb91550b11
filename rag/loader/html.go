package loader

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/smallnest/pdfqa/rag"
)

var blankLines = regexp.MustCompile(`\n\s*\n+`)

// HTMLLoader loads the visible text of an HTML file.
type HTMLLoader struct {
	filePath string
	selector string
}

// NewHTMLLoader creates a loader for filePath. selector picks the element whose
// text is kept and defaults to "body".
func NewHTMLLoader(filePath, selector string) *HTMLLoader {
	if selector == "" {
		selector = "body"
	}
	return &HTMLLoader{filePath: filePath, selector: selector}
}

// Load parses the file and returns its text as a single document.
func (l *HTMLLoader) Load(ctx context.Context) ([]rag.Document, error) {
	f, err := os.Open(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", l.filePath, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML %s: %w", l.filePath, err)
	}

	doc.Find("script, style, noscript").Remove()

	var parts []string
	doc.Find(l.selector).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	content := blankLines.ReplaceAllString(strings.Join(parts, "\n\n"), "\n\n")

	metadata := map[string]any{
		"source": l.filePath,
		"type":   "html",
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		metadata["title"] = title
	}

	return []rag.Document{{
		ID:       fmt.Sprintf("html_%s", l.filePath),
		Content:  content,
		Metadata: metadata,
	}}, nil
}
