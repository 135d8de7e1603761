// Package report formats pipeline results and artifact inventories for
// people: chat captions, CLI text and JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/storage"
)

// Summary contains aggregated figures about stored artifacts.
type Summary struct {
	TotalObjects  int
	TotalBytes    int64
	ObjectsByType map[string]int
	BytesByFolder map[string]int64
	Oldest        time.Time
	Newest        time.Time
}

// GenerateSummary aggregates an artifact listing.
func GenerateSummary(objects []*storage.ObjectInfo) Summary {
	s := Summary{
		ObjectsByType: make(map[string]int),
		BytesByFolder: make(map[string]int64),
	}

	if len(objects) == 0 {
		return s
	}

	s.Oldest = objects[0].CreatedAt
	s.Newest = objects[0].CreatedAt

	for _, o := range objects {
		s.TotalObjects++
		s.TotalBytes += o.Size
		s.ObjectsByType[o.ContentType]++
		s.BytesByFolder[o.Folder] += o.Size

		if o.CreatedAt.Before(s.Oldest) {
			s.Oldest = o.CreatedAt
		}
		if o.CreatedAt.After(s.Newest) {
			s.Newest = o.CreatedAt
		}
	}
	return s
}

// WriteJSON writes v as indented JSON. It serves both Summary and
// *domain.PipelineResult.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("report: encode json: %w", err)
	}
	return nil
}

var funcs = template.FuncMap{
	"bytes": func(n int64) string { return humanize.IBytes(uint64(max(n, 0))) },
	"comma": humanize.Comma,
	"ago":   humanize.Time,
}

const summaryTmpl = `Bubblescope Artifact Summary
----------------------------
Objects:  {{.TotalObjects}} ({{bytes .TotalBytes}})
{{- if .TotalObjects}}
Oldest:   {{.Oldest.Format "2006-01-02 15:04:05"}} ({{ago .Oldest}})
Newest:   {{.Newest.Format "2006-01-02 15:04:05"}} ({{ago .Newest}})
{{- end}}

Folders:
{{- range $folder, $size := .BytesByFolder}}
  {{$folder}}: {{bytes $size}}
{{- else}}
  None
{{- end}}

Content Types:
{{- range $ct, $count := .ObjectsByType}}
  {{$ct}}: {{$count}}
{{- else}}
  None
{{- end}}
`

// WriteText writes a human-readable artifact summary.
func WriteText(w io.Writer, summary Summary) error {
	t, err := template.New("summary").Funcs(funcs).Parse(summaryTmpl)
	if err != nil {
		return fmt.Errorf("report: parse summary template: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: render summary: %w", err)
	}
	return nil
}

const resultTmpl = `Bubblescope Token Report
------------------------
Status:      {{.Status}}
Chain:       {{.Chain.FullName}}
Address:     {{.Address}}
{{- with .TokenData}}
Token:       {{.Name}} ({{.Symbol}})
Price:       ${{.Price.String}}
Market Cap:  ${{comma .MarketCap}}
Volume:      ${{comma .Volume}}
{{- end}}
{{- with .Metrics}}
Score:       {{printf "%.2f" .Score}}
{{- end}}
{{- if .GraphPageURL}}
Graph:       {{.GraphPageURL}}
{{- end}}
{{- if .ScreenshotURL}}
Card:        {{.ScreenshotURL}}
{{- end}}

Failures:
{{- range .Failures}}
  {{.Stage}}: {{.Error}}
{{- else}}
  None
{{- end}}
`

// WriteResult writes a human-readable pipeline result.
func WriteResult(w io.Writer, res *domain.PipelineResult) error {
	if res == nil {
		return fmt.Errorf("report: nil result")
	}
	t, err := template.New("result").Funcs(funcs).Parse(resultTmpl)
	if err != nil {
		return fmt.Errorf("report: parse result template: %w", err)
	}
	if err := t.Execute(w, res); err != nil {
		return fmt.Errorf("report: render result: %w", err)
	}
	return nil
}
