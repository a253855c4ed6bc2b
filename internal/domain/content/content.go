// Package content models message content as it crosses the API boundary.
//
// Three wire shapes are accepted:
//   - a plain string
//   - a two element array of typed parts, e.g. [{"type":"text",...},{"type":"image_url",...}]
//   - a legacy two element array of strings: the question and the extracted document text
//
// Everything else is rejected at Parse time so downstream code never sees raw JSON.
package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the Content variants.
type Kind string

const (
	KindText     Kind = "text"
	KindParts    Kind = "parts"
	KindDocument Kind = "document"
)

// Part types understood by the builder. Unknown part types are carried through unchanged.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
	PartTypeDocument = "document"
)

// StoredDocumentType is the discriminator of a persisted DocumentWithContext.
const StoredDocumentType = "pdf"

// AdditionalContextSeparator joins a document's primary and supplemental text.
const AdditionalContextSeparator = "\n\nAdditional Context:\n"

// ImageURL is the image reference of an image_url part.
type ImageURL struct {
	URL    string `json:"url" bson:"url"`
	Detail string `json:"detail,omitempty" bson:"detail,omitempty"`
}

// Part is one element of a typed parts array.
type Part struct {
	Type     string    `json:"type" bson:"type"`
	Text     string    `json:"text,omitempty" bson:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty" bson:"image_url,omitempty"`
	Content  string    `json:"content,omitempty" bson:"content,omitempty"`
}

// Content is the tagged union carried by every message.
type Content struct {
	Kind         Kind
	Text         string
	Parts        []Part
	Primary      string
	Supplemental string
}

// StoredDocument is the persisted form of a KindDocument content.
type StoredDocument struct {
	Type       string `json:"type" bson:"type"`
	Text       string `json:"text" bson:"text"`
	PDFContent string `json:"pdf_content" bson:"pdf_content"`
}

// MalformedError reports content that matches none of the accepted shapes.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "invalid message format: " + e.Reason
}

// NewText builds a text content.
func NewText(text string) Content {
	return Content{Kind: KindText, Text: text}
}

// NewParts builds a typed parts content.
func NewParts(parts ...Part) Content {
	return Content{Kind: KindParts, Parts: parts}
}

// NewDocument builds a document-with-context content.
func NewDocument(primary, supplemental string) Content {
	return Content{Kind: KindDocument, Primary: primary, Supplemental: supplemental}
}

// Parse discriminates raw wire JSON into a Content.
func Parse(raw json.RawMessage) (Content, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return NewText(""), nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return Content{}, &MalformedError{Reason: err.Error()}
		}
		return NewText(text), nil
	case '[':
		var elements []json.RawMessage
		if err := json.Unmarshal(trimmed, &elements); err != nil {
			return Content{}, &MalformedError{Reason: err.Error()}
		}
		return parseArray(elements)
	default:
		return Content{}, &MalformedError{Reason: "content must be a string or an array"}
	}
}

func parseArray(elements []json.RawMessage) (Content, error) {
	if len(elements) != 2 {
		return Content{}, &MalformedError{Reason: fmt.Sprintf("expected 2 content elements, got %d", len(elements))}
	}

	first := bytes.TrimSpace(elements[0])
	if len(first) > 0 && first[0] == '"' {
		var primary, supplemental string
		if err := json.Unmarshal(first, &primary); err != nil {
			return Content{}, &MalformedError{Reason: err.Error()}
		}
		if err := json.Unmarshal(elements[1], &supplemental); err != nil {
			return Content{}, &MalformedError{Reason: "second element of a document pair must be a string"}
		}
		return NewDocument(primary, supplemental), nil
	}

	parts := make([]Part, 0, len(elements))
	for i, element := range elements {
		part, err := parsePart(element)
		if err != nil {
			return Content{}, &MalformedError{Reason: fmt.Sprintf("element %d: %s", i, err)}
		}
		parts = append(parts, part)
	}
	return NewParts(parts...), nil
}

func parsePart(raw json.RawMessage) (Part, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Part{}, fmt.Errorf("expected a typed part object")
	}
	if _, ok := probe["type"]; !ok {
		return Part{}, fmt.Errorf("part is missing its type")
	}
	var part Part
	if err := json.Unmarshal(raw, &part); err != nil {
		return Part{}, err
	}
	if strings.TrimSpace(part.Type) == "" {
		return Part{}, fmt.Errorf("part is missing its type")
	}
	return part, nil
}

// MarshalJSON renders the wire form: a string, a parts array, or a two element string array.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case KindParts:
		parts := c.Parts
		if parts == nil {
			parts = []Part{}
		}
		return json.Marshal(parts)
	case KindDocument:
		return json.Marshal([]string{c.Primary, c.Supplemental})
	default:
		return json.Marshal(c.Text)
	}
}

// UnmarshalJSON accepts any of the wire forms handled by Parse.
func (c *Content) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DocumentPair returns the primary and supplemental text when the content carries
// an attached document, either as a legacy string pair or as a typed pair ending
// in a document part.
func (c Content) DocumentPair() (string, string, bool) {
	switch c.Kind {
	case KindDocument:
		return c.Primary, c.Supplemental, true
	case KindParts:
		if len(c.Parts) == 2 && c.Parts[1].Type == PartTypeDocument {
			supplemental := c.Parts[1].Content
			if supplemental == "" {
				supplemental = c.Parts[1].Text
			}
			return c.Parts[0].Text, supplemental, true
		}
	}
	return "", "", false
}

// Collapse joins a document pair into the single string sent to the provider.
func Collapse(primary, supplemental string) string {
	return primary + AdditionalContextSeparator + supplemental
}

// PlainText reduces the content to text: images become their caption and
// documents their primary text.
func (c Content) PlainText() string {
	if primary, _, ok := c.DocumentPair(); ok {
		return primary
	}
	switch c.Kind {
	case KindParts:
		for _, part := range c.Parts {
			if part.Type == PartTypeText {
				return part.Text
			}
		}
		return ""
	default:
		return c.Text
	}
}

// Stored returns the value persisted for this content.
func (c Content) Stored() any {
	switch c.Kind {
	case KindParts:
		return c.Parts
	case KindDocument:
		return StoredDocument{Type: StoredDocumentType, Text: c.Primary, PDFContent: c.Supplemental}
	default:
		return c.Text
	}
}

// FromStoredDocument rebuilds a document content from its persisted form.
func FromStoredDocument(doc StoredDocument) (Content, error) {
	if doc.Type != StoredDocumentType {
		return Content{}, &MalformedError{Reason: fmt.Sprintf("unknown stored content type %q", doc.Type)}
	}
	return NewDocument(doc.Text, doc.PDFContent), nil
}
