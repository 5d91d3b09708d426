package chunker

import (
	"strings"

	"github.com/jdkato/prose/v2"
)

// Config controls chunk sizing. Defaults follow the review pipeline's
// retrieval tuning: 1000-char chunks with 100-char overlap.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:    1000,
		ChunkOverlap: 100,
	}
}

// Chunk is a bounded span of document text carrying the stack of markdown
// header titles it falls under ("Header 1" .. "Header 4").
type Chunk struct {
	Content string
	Headers map[string]string
}

// HeaderPath renders the enclosing header titles in level order.
func (c Chunk) HeaderPath() string {
	var parts []string
	for _, key := range headerKeys {
		if title, ok := c.Headers[key]; ok {
			parts = append(parts, title)
		}
	}
	return strings.Join(parts, " / ")
}

var headerKeys = []string{"Header 1", "Header 2", "Header 3", "Header 4"}

// SplitMarkdown splits markdown-like text on '#' headers first, tagging each
// coarse section with its header trail, then recursively splits any section
// longer than ChunkSize (paragraph, line, sentence, word, character) with
// ChunkOverlap carried between adjacent sub-chunks. Deterministic for a given
// input and config.
func SplitMarkdown(text string, cfg Config) []Chunk {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}

	sections := splitByHeaders(text)

	var chunks []Chunk
	for _, section := range sections {
		if len(section.Content) <= cfg.ChunkSize {
			chunks = append(chunks, section)
			continue
		}
		for _, sub := range cfg.split(section.Content, 0) {
			sub = strings.TrimSpace(sub)
			if sub == "" {
				continue
			}
			chunks = append(chunks, Chunk{Content: sub, Headers: section.Headers})
		}
	}

	return chunks
}

func splitByHeaders(text string) []Chunk {
	headers := map[string]string{}
	var sections []Chunk
	var body strings.Builder

	flush := func() {
		content := strings.TrimSpace(body.String())
		body.Reset()
		if content == "" {
			return
		}
		snapshot := make(map[string]string, len(headers))
		for k, v := range headers {
			snapshot[k] = v
		}
		sections = append(sections, Chunk{Content: content, Headers: snapshot})
	}

	for _, line := range strings.Split(text, "\n") {
		level, title := parseHeader(line)
		if level == 0 {
			body.WriteString(line)
			body.WriteString("\n")
			continue
		}

		flush()

		headers[headerKeys[level-1]] = title
		for l := level + 1; l <= len(headerKeys); l++ {
			delete(headers, headerKeys[l-1])
		}
	}
	flush()

	return sections
}

// parseHeader returns the header level (1-4) and title for a markdown header
// line, or 0 for anything else. Deeper headers than #### are treated as body
// text, matching the four levels the metadata schema records.
func parseHeader(line string) (int, string) {
	trimmed := strings.TrimSpace(line)
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > len(headerKeys) {
		return 0, ""
	}
	rest := trimmed[level:]
	if rest == "" || rest[0] != ' ' {
		return 0, ""
	}
	return level, strings.TrimSpace(rest)
}

// Separator levels for recursive splitting, coarse to fine.
const (
	levelParagraph = iota
	levelLine
	levelSentence
	levelWord
	levelChar
)

func (cfg Config) split(text string, level int) []string {
	if len(text) <= cfg.ChunkSize {
		return []string{text}
	}
	if level >= levelChar {
		return forceSplit(text, cfg.ChunkSize, cfg.ChunkOverlap)
	}

	parts := splitAtLevel(text, level)

	var pieces []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(part) > cfg.ChunkSize {
			pieces = append(pieces, cfg.split(part, level+1)...)
		} else {
			pieces = append(pieces, part)
		}
	}

	return cfg.merge(pieces, joinerForLevel(level))
}

func splitAtLevel(text string, level int) []string {
	switch level {
	case levelParagraph:
		return strings.Split(text, "\n\n")
	case levelLine:
		return strings.Split(text, "\n")
	case levelSentence:
		return splitSentences(text)
	case levelWord:
		return strings.Fields(text)
	default:
		return []string{text}
	}
}

func joinerForLevel(level int) string {
	switch level {
	case levelParagraph:
		return "\n\n"
	case levelLine:
		return "\n"
	default:
		return " "
	}
}

// splitSentences segments text into sentences using the prose tokenizer,
// falling back to period splitting if the document fails to build.
func splitSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return strings.SplitAfter(text, ". ")
	}

	sentences := doc.Sentences()
	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		out = append(out, s.Text)
	}
	return out
}

// merge greedily packs pieces into chunks up to ChunkSize, seeding each new
// chunk with the tail of the previous one to preserve local context across
// boundaries.
func (cfg Config) merge(pieces []string, joiner string) []string {
	var chunks []string
	var current strings.Builder

	for _, piece := range pieces {
		if current.Len() > 0 && current.Len()+len(joiner)+len(piece) > cfg.ChunkSize {
			chunk := current.String()
			chunks = append(chunks, chunk)
			current.Reset()

			seed := tailOverlap(chunk, cfg.ChunkOverlap)
			if seed != "" && len(seed)+len(joiner)+len(piece) <= cfg.ChunkSize {
				current.WriteString(seed)
			}
		}
		if current.Len() > 0 {
			current.WriteString(joiner)
		}
		current.WriteString(piece)
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// tailOverlap returns the last size characters of text, trimmed forward to
// the next word boundary so the overlap never starts mid-word.
func tailOverlap(text string, size int) string {
	if size <= 0 || text == "" {
		return ""
	}
	if size >= len(text) {
		return text
	}

	tail := text[len(text)-size:]
	if idx := strings.IndexAny(tail, " \n"); idx >= 0 {
		return strings.TrimSpace(tail[idx+1:])
	}
	return tail
}

func forceSplit(text string, size, overlap int) []string {
	var chunks []string

	runes := []rune(text)
	if overlap >= size {
		overlap = size / 2
	}

	start := 0
	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}

	return chunks
}
