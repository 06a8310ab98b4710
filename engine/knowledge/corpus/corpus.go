package corpus

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gnoskos/gnoskos/engine/knowledge"
	"github.com/gnoskos/gnoskos/pkg/logger"
)

const (
	DefaultAuthor      = "Jane Austen"
	DefaultStartMarker = "*** START OF"
	DefaultEndMarker   = "*** END OF"
	// DefaultMaxFileSize bounds how much of a corpus file is read into memory.
	DefaultMaxFileSize = 64 << 20
)

// Work names one text inside a concatenated corpus. Marker is the heading
// that opens it.
type Work struct {
	Title  string
	Marker string
}

type Options struct {
	Author      string
	Source      string
	StartMarker string
	EndMarker   string
	Works       []Work
	MaxFileSize int64
}

// DefaultWorks lists the contents of Project Gutenberg's "The Complete Project
// Gutenberg Works of Jane Austen" (pg31100.txt) in file order.
func DefaultWorks() []Work {
	return []Work{
		{Title: "Persuasion", Marker: "PERSUASION"},
		{Title: "Northanger Abbey", Marker: "NORTHANGER ABBEY"},
		{Title: "Mansfield Park", Marker: "MANSFIELD PARK"},
		{Title: "Emma", Marker: "EMMA"},
		{Title: "Lady Susan", Marker: "LADY SUSAN"},
		{Title: "Love and Friendship", Marker: "LOVE AND FREINDSHIP"},
		{Title: "Pride and Prejudice", Marker: "PRIDE AND PREJUDICE"},
		{Title: "Sense and Sensibility", Marker: "SENSE AND SENSIBILITY"},
	}
}

func DefaultOptions() Options {
	return Options{
		Author:      DefaultAuthor,
		StartMarker: DefaultStartMarker,
		EndMarker:   DefaultEndMarker,
		Works:       DefaultWorks(),
		MaxFileSize: DefaultMaxFileSize,
	}
}

// Load reads a .txt or .pdf corpus and segments it into documents. Source
// defaults to the file's base name.
func Load(ctx context.Context, path string, opts Options) ([]knowledge.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Source == "" {
		opts.Source = filepath.Base(path)
	}
	var (
		text string
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = readPDF(ctx, path, opts.maxFileSize())
	default:
		text, err = readText(path, opts.maxFileSize())
	}
	if err != nil {
		return nil, err
	}
	docs := Segment(ctx, text, opts)
	logger.FromContext(ctx).Info("Loaded corpus", "path", path, "documents", len(docs))
	return docs, nil
}

// Segment cuts text into one document per work. The Gutenberg header and
// license trailer are dropped first. Works are located in order, each search
// starting where the previous work ended; a work runs until the next marker
// that is found, or to the end of the text. Works whose marker is missing are
// skipped. With no works configured the whole text becomes one document.
func Segment(ctx context.Context, text string, opts Options) []knowledge.Document {
	log := logger.FromContext(ctx)
	body := trimGutenberg(normalize(text), opts.StartMarker, opts.EndMarker)
	if len(opts.Works) == 0 {
		if strings.TrimSpace(body) == "" {
			return nil
		}
		title := strings.TrimSuffix(opts.Source, filepath.Ext(opts.Source))
		return []knowledge.Document{opts.document(title, strings.TrimSpace(body))}
	}
	docs := make([]knowledge.Document, 0, len(opts.Works))
	lastEnd := 0
	for i, work := range opts.Works {
		rel := strings.Index(body[lastEnd:], work.Marker)
		if work.Marker == "" || rel < 0 {
			log.Warn("Work not found in corpus", "title", work.Title, "marker", work.Marker)
			continue
		}
		start := lastEnd + rel
		end := nextMarker(body, start+len(work.Marker), opts.Works[i+1:])
		content := strings.TrimSpace(body[start:end])
		if content == "" {
			continue
		}
		docs = append(docs, opts.document(work.Title, content))
		lastEnd = end
	}
	return docs
}

func nextMarker(body string, from int, rest []Work) int {
	for _, w := range rest {
		if w.Marker == "" {
			continue
		}
		if j := strings.Index(body[from:], w.Marker); j >= 0 {
			return from + j
		}
	}
	return len(body)
}

func trimGutenberg(text, startMarker, endMarker string) string {
	if startMarker != "" {
		if i := strings.Index(text, startMarker); i >= 0 {
			text = text[i:]
			if nl := strings.IndexByte(text, '\n'); nl >= 0 {
				text = text[nl+1:]
			} else {
				text = ""
			}
		}
	}
	if endMarker != "" {
		if i := strings.Index(text, endMarker); i >= 0 {
			text = text[:i]
		}
	}
	return text
}

func normalize(text string) string {
	text = strings.ToValidUTF8(text, "�")
	return strings.ReplaceAll(text, "\r\n", "\n")
}

func (o Options) document(title, text string) knowledge.Document {
	author := o.Author
	if author == "" {
		author = DefaultAuthor
	}
	return knowledge.Document{Title: title, Author: author, Source: o.Source, Text: text}
}

func (o Options) maxFileSize() int64 {
	if o.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return o.MaxFileSize
}

func readText(path string, limit int64) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("corpus: open %q: %w", path, err)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return "", fmt.Errorf("corpus: read %q: %w", path, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("corpus: file %q exceeds maximum size of %d bytes", path, limit)
	}
	return string(data), nil
}
