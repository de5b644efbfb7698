package export

import (
	"bufio"
	"fmt"
	"io"

	"igengage/pkg/models"
)

// TXT writes one username per line
type TXT struct{}

func (TXT) Extension() string { return FormatTXT }

func (TXT) Export(w io.Writer, _ models.PostSummary, items []models.Interaction) error {
	bw := bufio.NewWriter(w)
	for _, it := range items {
		if _, err := fmt.Fprintln(bw, it.Username); err != nil {
			return fmt.Errorf("failed to write username: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush usernames: %w", err)
	}
	return nil
}

// ReadUsernames reads a txt export back, skipping blank lines
func ReadUsernames(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			names = append(names, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usernames: %w", err)
	}
	return names, nil
}
