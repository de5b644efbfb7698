package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"igengage/pkg/models"
)

// Document is the json export layout
type Document struct {
	Post         models.PostSummary   `json:"post"`
	Collected    Counts               `json:"collected"`
	Interactions []models.Interaction `json:"interactions"`
	ExportedAt   time.Time            `json:"exported_at"`
}

// Counts of collected interactions per kind
type Counts struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
}

// JSON writes a Document
type JSON struct{}

func (JSON) Extension() string { return FormatJSON }

func (JSON) Export(w io.Writer, post models.PostSummary, items []models.Interaction) error {
	if items == nil {
		items = []models.Interaction{}
	}
	doc := Document{
		Post: post,
		Collected: Counts{
			Likes:    models.CountKind(items, models.KindLike),
			Comments: models.CountKind(items, models.KindComment),
		},
		Interactions: items,
		ExportedAt:   time.Now().UTC(),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return nil
}

// ReadDocument decodes a json export
func ReadDocument(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	return &doc, nil
}
