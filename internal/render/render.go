// Package render produces the HTML pages and images published for a token:
// the holder graph page, the summary card, and reduced screenshots.
package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/FranksOps/bubblescope/internal/domain"
)

const (
	GraphTemplate = "bubble_map.html"
	CardTemplate  = "token.html"

	// CardSelector is the element captured for the summary card.
	CardSelector = ".token-card"
)

//go:embed templates/*.html
var embedded embed.FS

const emptyGraph = `{"nodes":[],"links":[]}`

// Renderer executes the page templates.
type Renderer struct {
	tmpl *template.Template
}

// New loads the templates. With an empty dir the embedded templates are
// used; otherwise every *.html file in dir is parsed.
func New(dir string) (*Renderer, error) {
	var fsys fs.FS
	if dir == "" {
		sub, err := fs.Sub(embedded, "templates")
		if err != nil {
			return nil, fmt.Errorf("render: %w: %v", domain.ErrTemplate, err)
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}

	tmpl, err := template.New("").Funcs(funcs).ParseFS(fsys, "*.html")
	if err != nil {
		return nil, fmt.Errorf("render: %w: %v", domain.ErrTemplate, err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

type graphPage struct {
	Title string
	Data  template.JS
}

// RenderGraphPage renders the interactive holder graph. A nil dataset
// renders an empty graph.
func (r *Renderer) RenderGraphPage(dataset domain.BubbleGraphDataset) ([]byte, error) {
	raw := []byte(dataset)
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte(emptyGraph)
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("render: graph dataset is not valid json")
	}

	var meta struct {
		FullName string `json:"full_name"`
		Symbol   string `json:"symbol"`
		Chain    string `json:"chain"`
		Updated  string `json:"dt_update"`
	}
	_ = json.Unmarshal(raw, &meta)

	title := "Holder map"
	if meta.FullName != "" {
		title = fmt.Sprintf("%s (%s) on %s", meta.FullName, meta.Symbol, strings.ToUpper(meta.Chain))
		if meta.Updated != "" {
			title += " - Updated: " + meta.Updated
		}
	}

	// HTMLEscape keeps "</script>" inside string values from closing the tag.
	var safe bytes.Buffer
	json.HTMLEscape(&safe, raw)

	return r.execute(GraphTemplate, graphPage{Title: title, Data: template.JS(safe.String())})
}

type cardPage struct {
	Token   *domain.TokenMarketData
	Metrics *domain.DecentralizationMetrics
}

// RenderSummaryCard renders the token card. metrics may be nil, in which
// case the metrics section is omitted.
func (r *Renderer) RenderSummaryCard(md *domain.TokenMarketData, metrics *domain.DecentralizationMetrics) ([]byte, error) {
	if md == nil {
		return nil, fmt.Errorf("render: summary card needs market data")
	}
	return r.execute(CardTemplate, cardPage{Token: md, Metrics: metrics})
}

func (r *Renderer) execute(name string, data any) ([]byte, error) {
	t := r.tmpl.Lookup(name)
	if t == nil {
		return nil, fmt.Errorf("render: %s: %w", name, domain.ErrTemplate)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render: %s: %w: %v", name, domain.ErrTemplate, err)
	}
	return buf.Bytes(), nil
}

var funcs = template.FuncMap{
	"comma": func(n int64) string {
		return humanize.Comma(n)
	},
	"supply": func(f *float64) string {
		if f == nil {
			return "N/A"
		}
		return humanize.CommafWithDigits(*f, 0)
	},
	"usd": func(d decimal.Decimal) string {
		if d.Abs().LessThan(decimal.NewFromInt(1)) {
			return "$" + d.String()
		}
		return "$" + d.StringFixed(2)
	},
	"pct": func(f float64) string {
		return humanize.FtoaWithDigits(f, 2) + "%"
	},
	"label": func(s string) string {
		return strings.ReplaceAll(strings.TrimPrefix(s, "percent_"), "_", " ")
	},
}
