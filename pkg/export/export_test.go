package export

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"igengage/pkg/config"
	"igengage/pkg/models"
)

func samplePost() models.PostSummary {
	return models.PostSummary{
		Shortcode:       "ABC123",
		MediaID:         "3141592653",
		OwnerUsername:   "owner",
		OwnerProfileURL: "https://www.instagram.com/owner/",
		TakenAt:         time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC),
		LikeCount:       120,
		CommentCount:    45,
		URL:             "https://www.instagram.com/p/ABC123/",
	}
}

func sampleItems(n int) []models.Interaction {
	items := make([]models.Interaction, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("user_%02d", i)
		it := models.Interaction{
			Kind:       models.KindLike,
			Username:   name,
			ProfileURL: "https://www.instagram.com/" + name + "/",
		}
		if i%3 == 0 {
			it.Kind = models.KindComment
			it.Text = "comment " + name
		}
		items = append(items, it)
	}
	return items
}

func TestXLSXRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 7, 40} {
		t.Run(fmt.Sprintf("%d items", n), func(t *testing.T) {
			items := sampleItems(n)

			var buf bytes.Buffer
			require.NoError(t, XLSX{}.Export(&buf, samplePost(), items))

			rows, err := ReadXLSXRows(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			require.Len(t, rows, len(items))

			for i, row := range rows {
				assert.Equal(t, fmt.Sprint(i+1), row[0])
				assert.Equal(t, string(items[i].Kind), row[1])
				assert.Equal(t, items[i].Username, row[2])
				assert.Equal(t, items[i].ProfileURL, row[3])
				assert.Equal(t, items[i].Text, row[4])
			}
		})
	}
}

func TestXLSXKeepsDuplicates(t *testing.T) {
	items := sampleItems(3)
	items = append(items, items...)

	var buf bytes.Buffer
	require.NoError(t, XLSX{}.Export(&buf, samplePost(), items))

	rows, err := ReadXLSXRows(&buf)
	require.NoError(t, err)
	assert.Len(t, rows, 6)
	assert.Equal(t, rows[0][2], rows[3][2])
}

func TestXLSXSummaryBlock(t *testing.T) {
	items := sampleItems(6)

	var buf bytes.Buffer
	require.NoError(t, XLSX{}.Export(&buf, samplePost(), items))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	cells := map[string]string{
		"A1":  "Instagram Post Analysis",
		"B3":  "https://www.instagram.com/p/ABC123/",
		"B4":  "owner",
		"C4":  "https://www.instagram.com/owner/",
		"B5":  "2024-03-09 14:30:00",
		"B6":  "120",
		"B7":  "45",
		"B8":  "4",
		"B9":  "2",
		"A11": "INTERACTIONS (LIKES AND COMMENTS)",
		"E12": "Comment",
	}
	for cell, want := range cells {
		got, err := f.GetCellValue(SheetName, cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}

	ok, link, err := f.GetCellHyperLink(SheetName, "D13")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, items[0].ProfileURL, link)
}

func TestTXTRoundTrip(t *testing.T) {
	items := sampleItems(9)
	items = append(items, items[0])

	var buf bytes.Buffer
	require.NoError(t, TXT{}.Export(&buf, samplePost(), items))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	assert.Equal(t, models.Usernames(items), lines)

	names, err := ReadUsernames(strings.NewReader(buf.String()))
	require.NoError(t, err)
	assert.Equal(t, models.Usernames(items), names)
}

func TestTXTEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TXT{}.Export(&buf, samplePost(), nil))
	assert.Empty(t, buf.String())
}

func TestJSONRoundTrip(t *testing.T) {
	items := sampleItems(5)

	var buf bytes.Buffer
	require.NoError(t, JSON{}.Export(&buf, samplePost(), items))

	doc, err := ReadDocument(&buf)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", doc.Post.Shortcode)
	assert.Equal(t, items, doc.Interactions)
	assert.Equal(t, Counts{Likes: 3, Comments: 2}, doc.Collected)
	assert.False(t, doc.ExportedAt.IsZero())
}

func TestForFormat(t *testing.T) {
	for _, name := range []string{"xlsx", "TXT", " json "} {
		e, err := ForFormat(name)
		require.NoError(t, err, name)
		assert.Equal(t, strings.ToLower(strings.TrimSpace(name)), e.Extension())
	}

	_, err := ForFormat("csv")
	assert.Error(t, err)
	assert.Equal(t, []string{"json", "txt", "xlsx"}, Formats())
}

func newTestWriter(t *testing.T, fs afero.Fs, format string) *Writer {
	t.Helper()
	clock := func() time.Time { return time.Date(2024, 5, 1, 8, 15, 30, 0, time.UTC) }
	w, err := NewWriter(fs, config.OutputConfig{
		Directory:  "/out/exports",
		Format:     format,
		FilePrefix: "instagram_data",
	}, WithClock(clock))
	require.NoError(t, err)
	return w
}

func TestWriterNamesAndPlacesFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, "txt")
	items := sampleItems(4)

	path, err := w.Write("", samplePost(), items)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out/exports", "instagram_data_ABC123_20240501_081530.txt"), path)

	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(models.Usernames(items), "\n")+"\n", string(data))

	tmp, _ := afero.Exists(fs, path+".tmp")
	assert.False(t, tmp)
}

func TestWriterAvoidsOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newTestWriter(t, fs, "xlsx")

	first, err := w.Write("xlsx", samplePost(), sampleItems(2))
	require.NoError(t, err)
	second, err := w.Write("xlsx", samplePost(), sampleItems(3))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, strings.HasSuffix(second, "_2.xlsx"))

	f, err := fs.Open(second)
	require.NoError(t, err)
	defer f.Close()
	rows, err := ReadXLSXRows(f)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	existing, err := w.Existing("ABC123")
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, existing)

	none, err := w.Existing("OTHER")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWriterRejectsUnknownFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := NewWriter(fs, config.OutputConfig{Directory: "/out", Format: "csv"})
	assert.Error(t, err)

	w := newTestWriter(t, fs, "json")
	_, err = w.Write("pdf", samplePost(), nil)
	assert.Error(t, err)
}
