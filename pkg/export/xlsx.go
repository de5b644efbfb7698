package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"igengage/pkg/models"
)

const (
	SheetName = "Instagram Data"

	// FirstDataRow is the spreadsheet row of the first interaction
	FirstDataRow = 13

	dateLayout = "2006-01-02 15:04:05"
	linkColor  = "0563C1"
	headerFill = "DDDDDD"
)

var columnWidths = map[string]float64{
	"A": 5,
	"B": 10,
	"C": 20,
	"D": 35,
	"E": 50,
}

// XLSX writes a single-sheet workbook
type XLSX struct{}

func (XLSX) Extension() string { return FormatXLSX }

func (XLSX) Export(w io.Writer, post models.PostSummary, items []models.Interaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	s, err := newSheetStyles(f)
	if err != nil {
		return err
	}

	sw := &sheetWriter{f: f, sheet: SheetName}
	sw.summary(post, items, s)
	sw.interactions(items, s)
	for col, width := range columnWidths {
		sw.try(f.SetColWidth(SheetName, col, col, width))
	}
	if sw.err != nil {
		return fmt.Errorf("failed to build workbook: %w", sw.err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

type sheetStyles struct {
	title   int
	bold    int
	section int
	link    int
}

func newSheetStyles(f *excelize.File) (*sheetStyles, error) {
	fill := excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}}
	defs := []*excelize.Style{
		{Font: &excelize.Font{Bold: true, Size: 14}, Alignment: &excelize.Alignment{Horizontal: "center"}},
		{Font: &excelize.Font{Bold: true}},
		{Font: &excelize.Font{Bold: true}, Fill: fill},
		{Font: &excelize.Font{Color: linkColor, Underline: "single"}},
	}

	ids := make([]int, len(defs))
	for i, def := range defs {
		id, err := f.NewStyle(def)
		if err != nil {
			return nil, fmt.Errorf("failed to create style: %w", err)
		}
		ids[i] = id
	}
	return &sheetStyles{title: ids[0], bold: ids[1], section: ids[2], link: ids[3]}, nil
}

// sheetWriter keeps the first error so the layout code reads top to bottom
type sheetWriter struct {
	f     *excelize.File
	sheet string
	err   error
}

func (w *sheetWriter) try(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

func (w *sheetWriter) set(cell string, value interface{}) {
	w.try(w.f.SetCellValue(w.sheet, cell, value))
}

func (w *sheetWriter) style(from, to string, id int) {
	w.try(w.f.SetCellStyle(w.sheet, from, to, id))
}

func (w *sheetWriter) label(cell, text string, style int) {
	w.set(cell, text)
	w.style(cell, cell, style)
}

func (w *sheetWriter) link(cell, url string, style int) {
	if url == "" {
		return
	}
	w.set(cell, url)
	w.try(w.f.SetCellHyperLink(w.sheet, cell, url, "External"))
	w.style(cell, cell, style)
}

func (w *sheetWriter) summary(post models.PostSummary, items []models.Interaction, s *sheetStyles) {
	w.label("A1", "Instagram Post Analysis", s.title)
	w.try(w.f.MergeCell(w.sheet, "A1", "F1"))

	w.label("A3", "Post URL:", s.bold)
	w.link("B3", post.URL, s.link)
	w.try(w.f.MergeCell(w.sheet, "B3", "F3"))

	w.label("A4", "Posted by:", s.bold)
	w.set("B4", post.OwnerUsername)
	w.link("C4", post.OwnerProfileURL, s.link)

	w.label("A5", "Posted on:", s.bold)
	if !post.TakenAt.IsZero() {
		w.set("B5", post.TakenAt.Format(dateLayout))
	}

	counts := []struct {
		label string
		value int
	}{
		{"Total Likes:", post.LikeCount},
		{"Total Comments:", post.CommentCount},
		{"Likes Collected:", models.CountKind(items, models.KindLike)},
		{"Comments Collected:", models.CountKind(items, models.KindComment)},
	}
	for i, c := range counts {
		row := strconv.Itoa(6 + i)
		w.label("A"+row, c.label, s.bold)
		w.set("B"+row, c.value)
	}

	w.label("A11", "INTERACTIONS (LIKES AND COMMENTS)", s.section)
	w.try(w.f.MergeCell(w.sheet, "A11", "F11"))

	for i, h := range []string{"#", "Type", "Username", "Profile URL", "Comment"} {
		cell, err := excelize.CoordinatesToCellName(i+1, FirstDataRow-1)
		if err != nil {
			w.try(err)
			return
		}
		w.label(cell, h, s.section)
	}
}

func (w *sheetWriter) interactions(items []models.Interaction, s *sheetStyles) {
	for i, it := range items {
		row := strconv.Itoa(FirstDataRow + i)
		w.set("A"+row, i+1)
		w.set("B"+row, string(it.Kind))
		w.set("C"+row, it.Username)
		w.link("D"+row, it.ProfileURL, s.link)
		if it.Kind == models.KindComment {
			w.set("E"+row, it.Text)
		}
		if w.err != nil {
			return
		}
	}
}

// ReadXLSXRows returns the interaction rows of an xlsx export. Every row is
// padded to the five data columns.
func ReadXLSXRows(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < FirstDataRow {
		return [][]string{}, nil
	}

	data := make([][]string, 0, len(rows)-FirstDataRow+1)
	for _, row := range rows[FirstDataRow-1:] {
		padded := make([]string, 5)
		copy(padded, row)
		data = append(data, padded)
	}
	return data, nil
}
