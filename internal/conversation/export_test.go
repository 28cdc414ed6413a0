package conversation

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedConversation(t *testing.T, s *Store, clock *fakeClock) string {
	t.Helper()
	ctx := context.Background()
	id, err := s.Create(ctx, "Test", "d1")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = s.AppendMessage(ctx, id, NewMessage{Role: RoleUser, Content: "What is total sales?"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = s.AppendMessage(ctx, id, NewMessage{Role: RoleAssistant, Content: "X", ProcessingTime: seconds(1.2)})
	require.NoError(t, err)
	return id
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"json", FormatJSON},
		{"structured", FormatJSON},
		{"markdown", FormatMarkdown},
		{"MD", FormatMarkdown},
		{"csv", FormatCSV},
		{"tabular", FormatCSV},
		{"html", FormatHTML},
		{" hypertext ", FormatHTML},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExportCSV(t *testing.T) {
	s, clock, _ := newTestStore(t)
	id := seedConversation(t, s, clock)

	format, err := ParseFormat("tabular")
	require.NoError(t, err)
	dest := filepath.Join(t.TempDir(), "out.csv")
	path, err := s.Export(context.Background(), id, format, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"ID", "Role", "Content", "Timestamp", "Processing Time"}, rows[0])
	assert.Equal(t, "user", rows[1][1])
	assert.Equal(t, "What is total sales?", rows[1][2])
	assert.Equal(t, "", rows[1][4])
	assert.Equal(t, "assistant", rows[2][1])
	assert.Equal(t, "1.2", rows[2][4])
}

func TestExportMarkdown(t *testing.T) {
	ctx := context.Background()
	s, clock, _ := newTestStore(t)
	id := seedConversation(t, s, clock)
	_, err := s.AppendMessage(ctx, id, NewMessage{Role: RoleAssistant, Content: "see chart", ChartData: map[string]any{"chart_type": "bar"}})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out.md")
	_, err = s.Export(ctx, id, FormatMarkdown, dest)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	want := "# Test\n\n" +
		"Created: 2024-03-01T12:00:00Z\n\n" +
		"## User\n\nWhat is total sales?\n\n" +
		"## Assistant\n\nX\n\n" +
		"*Processed in 1.2 seconds*\n\n" +
		"## Assistant\n\nsee chart\n\n" +
		"*This message includes a chart that cannot be displayed in markdown*\n\n"
	assert.Equal(t, want, string(data))
}

func TestExportJSON(t *testing.T) {
	s, clock, _ := newTestStore(t)
	id := seedConversation(t, s, clock)

	dest := filepath.Join(t.TempDir(), "nested", "out.json")
	_, err := s.Export(context.Background(), id, FormatJSON, dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var c Conversation
	require.NoError(t, json.Unmarshal(data, &c))
	assert.Equal(t, id, c.ID)
	assert.Len(t, c.Messages, 2)
}

func TestExportHTML(t *testing.T) {
	ctx := context.Background()
	s, clock, _ := newTestStore(t)
	id, err := s.Create(ctx, "<b>Sales</b>", "")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = s.AppendMessage(ctx, id, NewMessage{Role: RoleUser, Content: "Show **profit** <script>alert(1)</script>"})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, id, NewMessage{
		Role:           RoleAssistant,
		Content:        "Here it is",
		ProcessingTime: seconds(0.5),
		ChartData:      map[string]any{"chart_type": "base64_image", "image_data": "aGVsbG8="},
	})
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, id, NewMessage{
		Role:      RoleAssistant,
		Content:   "broken chart",
		ChartData: map[string]any{"chart_type": "base64_image", "image_data": "%%%"},
	})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "out.html")
	_, err = s.Export(ctx, id, FormatHTML, dest)
	require.NoError(t, err)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	html := string(data)

	assert.Contains(t, html, "<title>&lt;b&gt;Sales&lt;/b&gt;</title>")
	assert.Contains(t, html, "<div class='user'>")
	assert.Contains(t, html, "<div class='assistant'>")
	assert.Contains(t, html, "<strong>profit</strong>")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "<p><em>Processed in 0.5 seconds</em></p>")
	assert.Contains(t, html, "src='data:image/png;base64,aGVsbG8='")
	assert.Equal(t, 1, strings.Count(html, "<img"))
}

func TestExportDefaultDestination(t *testing.T) {
	exportDir := t.TempDir()
	s, clock, _ := newTestStore(t, WithExportDir(exportDir))
	ctx := context.Background()
	id, err := s.Create(ctx, "Q1 / sales: review", "")
	require.NoError(t, err)

	path, err := s.Export(ctx, id, FormatMarkdown, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(exportDir, "Q1___sales__review_"+clock.Now().Format("20060102150405")+".md"), path)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestExportErrors(t *testing.T) {
	s, clock, _ := newTestStore(t)
	id := seedConversation(t, s, clock)
	ctx := context.Background()

	_, err := s.Export(ctx, id, Format("pdf"), "")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	_, err = s.Export(ctx, "conversation_missing", FormatJSON, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"Test":           "Test",
		"a b/c":          "a_b_c",
		"":               "conversation",
		"..":             "conversation",
		"report-v1.2_ok": "report-v1.2_ok",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeFileName(in), in)
	}
}
