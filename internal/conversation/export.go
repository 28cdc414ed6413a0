package conversation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/lewisedginton/financial_qa/internal/storage"
	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// Format is an export format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatHTML     Format = "html"
)

// ParseFormat accepts a format name or one of its aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json", "structured":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv", "tabular":
		return FormatCSV, nil
	case "html", "hypertext":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Ext is the file extension used for the format.
func (f Format) Ext() string {
	switch f {
	case FormatMarkdown:
		return "md"
	default:
		return string(f)
	}
}

// Export renders conversation id and writes it to dest, returning the path
// written. An empty dest is resolved under the export directory.
func (s *Store) Export(ctx context.Context, id string, format Format, dest string) (path string, err error) {
	start := time.Now()
	defer func() { s.observe("export", start, err) }()

	render, ok := renderers[format]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	c, err := s.readConversation(ctx, id)
	if err != nil {
		return "", err
	}
	data, err := render(c)
	if err != nil {
		return "", fmt.Errorf("render %s export of %q: %w", format, id, err)
	}

	if dest == "" {
		dest = filepath.Join(s.exportDir, fmt.Sprintf("%s_%s.%s", sanitizeFileName(c.Title), s.now().Format(idTimeLayout), format.Ext()))
	}
	out := storage.NewLocalFileProvider(filepath.Dir(dest))
	if err := out.Write(ctx, filepath.Base(dest), data); err != nil {
		return "", fmt.Errorf("write export %s: %w", dest, err)
	}
	s.log.Info("Conversation exported",
		logger.StringField("id", id),
		logger.StringField("format", string(format)),
		logger.StringField("path", dest))
	return dest, nil
}

var renderers = map[Format]func(*Conversation) ([]byte, error){
	FormatJSON:     renderJSON,
	FormatMarkdown: renderMarkdown,
	FormatCSV:      renderCSV,
	FormatHTML:     renderHTML,
}

func sanitizeFileName(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		return "conversation"
	}
	return name
}

func roleTitle(r Role) string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	}
	return string(r)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func renderJSON(c *Conversation) ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

func renderMarkdown(c *Conversation) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", c.Title)
	fmt.Fprintf(&b, "Created: %s\n\n", c.CreatedAt.Format(time.RFC3339))
	for _, m := range c.Messages {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", roleTitle(m.Role), m.Content)
		if m.ProcessingTime != nil {
			fmt.Fprintf(&b, "*Processed in %s seconds*\n\n", formatSeconds(*m.ProcessingTime))
		}
		if len(m.ChartData) > 0 {
			b.WriteString("*This message includes a chart that cannot be displayed in markdown*\n\n")
		}
	}
	return []byte(b.String()), nil
}

func renderCSV(c *Conversation) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"ID", "Role", "Content", "Timestamp", "Processing Time"}); err != nil {
		return nil, err
	}
	for _, m := range c.Messages {
		pt := ""
		if m.ProcessingTime != nil {
			pt = formatSeconds(*m.ProcessingTime)
		}
		row := []string{m.ID, string(m.Role), m.Content, m.Timestamp.Format(time.RFC3339Nano), pt}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var htmlExport = template.Must(template.New("conversation").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
.user { background-color: #e8f4ff; padding: 10px; margin: 10px 0; border-radius: 5px; }
.assistant { background-color: #f8f9fa; padding: 10px; margin: 10px 0; border-radius: 5px; }
.system { background-color: #f0f0f0; padding: 10px; margin: 10px 0; border-radius: 5px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>Created: {{.Created}}</p>
{{range .Messages}}<div class='{{.Class}}'>
<h3>{{.Role}}</h3>
<div>{{.Content}}</div>
{{if .Processing}}<p><em>Processed in {{.Processing}} seconds</em></p>
{{end}}{{if .Chart}}<img src='{{.Chart}}' alt='Chart' style='max-width: 100%;' />
{{end}}</div>
{{end}}</body>
</html>
`))

type htmlMessage struct {
	Class      string
	Role       string
	Content    template.HTML
	Processing string
	Chart      template.URL
}

func renderHTML(c *Conversation) ([]byte, error) {
	msgs := make([]htmlMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		var body bytes.Buffer
		if err := markdown.Convert([]byte(m.Content), &body); err != nil {
			return nil, fmt.Errorf("render message %s: %w", m.ID, err)
		}
		hm := htmlMessage{
			Class: string(m.Role),
			Role:  roleTitle(m.Role),
			// goldmark drops raw HTML unless configured with WithUnsafe.
			Content: template.HTML(body.String()),
			Chart:   chartURL(m.ChartData),
		}
		if m.ProcessingTime != nil {
			hm.Processing = formatSeconds(*m.ProcessingTime)
		}
		msgs = append(msgs, hm)
	}

	var buf bytes.Buffer
	err := htmlExport.Execute(&buf, struct {
		Title    string
		Created  string
		Messages []htmlMessage
	}{c.Title, c.CreatedAt.Format(time.RFC3339), msgs})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func chartURL(chart map[string]any) template.URL {
	if kind, _ := chart["chart_type"].(string); kind != "base64_image" {
		return ""
	}
	data, _ := chart["image_data"].(string)
	if data == "" {
		return ""
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return ""
	}
	return template.URL("data:image/png;base64," + data)
}
