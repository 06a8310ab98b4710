package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
)

var (
	errMissingTitle  = errors.New("knowledge: title is required")
	errMissingAuthor = errors.New("knowledge: author is required")
	errMissingSource = errors.New("knowledge: source is required")
	errEmptyText     = errors.New("knowledge: document text is empty")
)

// Document is one logical unit of source text, such as a single novel.
type Document struct {
	Title  string
	Author string
	Source string
	Text   string
}

func (d Document) Validate() error {
	if strings.TrimSpace(d.Text) == "" {
		return fmt.Errorf("%w: %q", errEmptyText, d.Title)
	}
	return d.Metadata().Validate()
}

// Metadata returns the attribution every chunk of d inherits.
func (d Document) Metadata() Metadata {
	return Metadata{Title: d.Title, Author: d.Author, Source: d.Source, Offset: -1}
}

// Metadata is the attribution stored alongside every chunk. Extra carries
// open-ended fields and is flattened into the same JSON object.
type Metadata struct {
	Title      string
	Author     string
	Source     string
	ChunkIndex int
	// Offset is the rune offset of the chunk start in its document, -1 when unknown.
	Offset int
	Extra  map[string]any
}

const (
	keyTitle      = "title"
	keyAuthor     = "author"
	keySource     = "source"
	keyChunkIndex = "chunk_index"
	keyOffset     = "offset"
)

func (m Metadata) Validate() error {
	var errs []error
	if strings.TrimSpace(m.Title) == "" {
		errs = append(errs, errMissingTitle)
	}
	if strings.TrimSpace(m.Author) == "" {
		errs = append(errs, errMissingAuthor)
	}
	if strings.TrimSpace(m.Source) == "" {
		errs = append(errs, errMissingSource)
	}
	return errors.Join(errs...)
}

// Clone returns a copy whose Extra map is not shared with m.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Extra != nil {
		out.Extra = maps.Clone(m.Extra)
	}
	return out
}

// Map returns the flat key/value view used on the wire.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+5)
	for k, v := range m.Extra {
		out[k] = v
	}
	out[keyTitle] = m.Title
	out[keyAuthor] = m.Author
	out[keySource] = m.Source
	out[keyChunkIndex] = m.ChunkIndex
	out[keyOffset] = m.Offset
	return out
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("knowledge: decode metadata: %w", err)
	}
	out := Metadata{Offset: -1}
	for key, value := range raw {
		var err error
		switch key {
		case keyTitle:
			err = json.Unmarshal(value, &out.Title)
		case keyAuthor:
			err = json.Unmarshal(value, &out.Author)
		case keySource:
			err = json.Unmarshal(value, &out.Source)
		case keyChunkIndex:
			err = json.Unmarshal(value, &out.ChunkIndex)
		case keyOffset:
			err = json.Unmarshal(value, &out.Offset)
		default:
			var v any
			err = json.Unmarshal(value, &v)
			if out.Extra == nil {
				out.Extra = make(map[string]any)
			}
			out.Extra[key] = v
		}
		if err != nil {
			return fmt.Errorf("knowledge: decode metadata field %q: %w", key, err)
		}
	}
	*m = out
	return nil
}
