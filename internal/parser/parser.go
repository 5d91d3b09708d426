package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/seanmckee-pacmet/contract-review-2/pkg/logger"
)

// ErrUnparseable marks a document the parser cannot convert to text. The
// pipeline logs it and excludes the document without failing the job.
var ErrUnparseable = errors.New("unparseable document")

// Parser converts a document file into normalized markdown-like text.
// OCR-backed converters (PDF, TIFF) plug in behind this interface; the
// default implementation covers text-native formats.
type Parser interface {
	ParseDocument(ctx context.Context, path string) (string, error)
}

// FileParser reads markdown, plain text, and HTML documents from disk.
type FileParser struct{}

func NewFileParser() *FileParser {
	return &FileParser{}
}

func (p *FileParser) ParseDocument(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".markdown", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnparseable, path, err)
		}
		return string(data), nil
	case ".html", ".htm":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnparseable, path, err)
		}
		text, err := htmlToMarkdownish(string(data))
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrUnparseable, path, err)
		}
		return text, nil
	default:
		logger.Warn("Unsupported document format", zap.String("path", path), zap.String("ext", ext))
		return "", fmt.Errorf("%w: unsupported format %q", ErrUnparseable, ext)
	}
}

var collapseSpaces = regexp.MustCompile(`[ \t]+`)

// htmlToMarkdownish extracts body text, rendering h1-h4 as '#' headers so
// the chunker's header splitter sees the same structure markdown input has.
func htmlToMarkdownish(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	var sb strings.Builder
	doc.Find("h1, h2, h3, h4, p, li, td, th").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(collapseSpaces.ReplaceAllString(s.Text(), " "))
		if text == "" {
			return
		}
		switch goquery.NodeName(s) {
		case "h1":
			sb.WriteString("# " + text + "\n\n")
		case "h2":
			sb.WriteString("## " + text + "\n\n")
		case "h3":
			sb.WriteString("### " + text + "\n\n")
		case "h4":
			sb.WriteString("#### " + text + "\n\n")
		default:
			sb.WriteString(text + "\n\n")
		}
	})

	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", errors.New("no content extracted from HTML")
	}
	return out, nil
}
