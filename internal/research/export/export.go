package export

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/research/core"
)

// Exporter writes synthesis results to disk in the configured formats.
type Exporter struct {
	outputDir string
	formats   []string
	logger    *log.Logger
}

func New(cfg config.ExportConfig) (*Exporter, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Exporter{
		outputDir: cfg.OutputDir,
		formats:   cfg.Formats,
		logger:    log.New(log.Writer(), "[EXPORT] ", log.LstdFlags),
	}, nil
}

// Export renders the result in every configured format and returns the
// written file paths in format order.
func (e *Exporter) Export(result *core.Result) ([]string, error) {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	base := fmt.Sprintf("%s-%s", slugify(result.Query), result.Report.Metadata.GeneratedAt.Format("20060102-150405"))
	var paths []string
	for _, format := range e.formats {
		var data []byte
		var ext string
		switch format {
		case "markdown":
			data = []byte(Markdown(result))
			ext = "md"
		case "json":
			encoded, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("encode json: %w", err)
			}
			data = encoded
			ext = "json"
		case "html":
			data = []byte(HTML(result))
			ext = "html"
		default:
			return nil, fmt.Errorf("unsupported export format %q", format)
		}

		path := filepath.Join(e.outputDir, base+"."+ext)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		e.logger.Printf("wrote %s", path)
		paths = append(paths, path)
	}
	return paths, nil
}

// Markdown renders the report, bibliography and processing notes as a
// standalone markdown document.
func Markdown(result *core.Result) string {
	var b strings.Builder
	meta := result.Report.Metadata

	fmt.Fprintf(&b, "# %s\n\n", result.Report.Title)
	fmt.Fprintf(&b, "> %d words · %d min read · %d sources · %s citations\n\n",
		meta.WordCount, meta.ReadingMinutes, meta.SourceCount, meta.CitationStyle)

	if result.Report.ExecutiveSummary != "" {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(result.Report.ExecutiveSummary)
		b.WriteString("\n\n")
	}

	for _, section := range result.Report.Sections {
		writeMarkdownSection(&b, section, 2)
	}

	if len(result.Bibliography.Entries) > 0 {
		b.WriteString("## References\n\n")
		for i, entry := range result.Bibliography.Entries {
			fmt.Fprintf(&b, "%d. %s\n", i+1, entry.Formatted)
		}
		b.WriteString("\n")
	}

	if len(result.Warnings) > 0 {
		b.WriteString("## Processing Notes\n\n")
		for _, warning := range result.Warnings {
			fmt.Fprintf(&b, "- %s\n", warning)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeMarkdownSection(b *strings.Builder, section core.Section, depth int) {
	if depth > 5 {
		depth = 5
	}
	fmt.Fprintf(b, "%s %s\n\n", strings.Repeat("#", depth), section.Title)
	if section.Body != "" {
		b.WriteString(section.Body)
		b.WriteString("\n\n")
	}
	for _, sub := range section.Subsections {
		writeMarkdownSection(b, sub, depth+1)
	}
}

// HTML renders a minimal styled document with no scripts.
func HTML(result *core.Result) string {
	var b strings.Builder
	meta := result.Report.Metadata

	b.WriteString("<!doctype html><html><head><meta charset=\"utf-8\">")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
	fmt.Fprintf(&b, "<title>%s</title></head>", template.HTMLEscapeString(result.Report.Title))
	b.WriteString("<body style=\"font-family:system-ui,-apple-system,Segoe UI,Roboto,Helvetica,Arial,sans-serif; color:#111827; max-width:820px; margin:32px auto; padding:0 16px; line-height:1.6\">")

	fmt.Fprintf(&b, "<h1>%s</h1>", template.HTMLEscapeString(result.Report.Title))
	fmt.Fprintf(&b, "<p style=\"color:#6b7280\">%d words · %d min read · %d sources · %s citations</p>",
		meta.WordCount, meta.ReadingMinutes, meta.SourceCount, template.HTMLEscapeString(meta.CitationStyle))

	if result.Report.ExecutiveSummary != "" {
		b.WriteString("<h2>Executive Summary</h2>")
		fmt.Fprintf(&b, "<p>%s</p>", template.HTMLEscapeString(result.Report.ExecutiveSummary))
	}

	for _, section := range result.Report.Sections {
		writeHTMLSection(&b, section, 2)
	}

	if len(result.Bibliography.Entries) > 0 {
		b.WriteString("<h2>References</h2><ol>")
		for _, entry := range result.Bibliography.Entries {
			fmt.Fprintf(&b, "<li>%s</li>", template.HTMLEscapeString(entry.Formatted))
		}
		b.WriteString("</ol>")
	}

	if len(result.Warnings) > 0 {
		b.WriteString("<h2>Processing Notes</h2><ul>")
		for _, warning := range result.Warnings {
			fmt.Fprintf(&b, "<li>%s</li>", template.HTMLEscapeString(warning))
		}
		b.WriteString("</ul>")
	}

	b.WriteString("</body></html>")
	return b.String()
}

func writeHTMLSection(b *strings.Builder, section core.Section, depth int) {
	if depth > 5 {
		depth = 5
	}
	fmt.Fprintf(b, "<h%d>%s</h%d>", depth, template.HTMLEscapeString(section.Title), depth)
	if section.Body != "" {
		fmt.Fprintf(b, "<p>%s</p>", template.HTMLEscapeString(section.Body))
	}
	for _, sub := range section.Subsections {
		writeHTMLSection(b, sub, depth+1)
	}
}

// slugify turns a query into a filesystem-safe file name fragment.
func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 48 {
		slug = strings.Trim(slug[:48], "-")
	}
	if slug == "" {
		slug = "report"
	}
	return slug
}
