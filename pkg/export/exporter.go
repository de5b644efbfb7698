package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"igengage/pkg/models"
)

// Exporter renders a post and its interactions in one output format
type Exporter interface {
	Export(w io.Writer, post models.PostSummary, items []models.Interaction) error
	// Extension is the file extension without the dot
	Extension() string
}

const (
	FormatXLSX = "xlsx"
	FormatTXT  = "txt"
	FormatJSON = "json"
)

var exporters = map[string]Exporter{
	FormatXLSX: XLSX{},
	FormatTXT:  TXT{},
	FormatJSON: JSON{},
}

// ForFormat returns the exporter registered under name
func ForFormat(name string) (Exporter, error) {
	e, ok := exporters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %q (want one of %s)", name, strings.Join(Formats(), ", "))
	}
	return e, nil
}

// Formats lists the supported format names
func Formats() []string {
	names := make([]string, 0, len(exporters))
	for name := range exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
