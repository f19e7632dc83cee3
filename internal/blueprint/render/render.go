// Package render turns a persisted payload into a presentable document.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"blueprint/internal/blueprint"
)

// Theme is the fixed presentation theme recorded on rendered artifacts.
const Theme = "executive-dark"

// Output is one rendered document.
type Output struct {
	Body        []byte
	ContentType string
	Ext         string
}

// Renderer renders the payload of a document.
type Renderer interface {
	Render(ctx context.Context, doc Meta, p blueprint.Payload) (Output, error)
}

// Meta is the document header a renderer prints above the payload.
type Meta struct {
	BlueprintID  string
	EngagementID string
	CustomerName string
}

type HTMLRenderer struct {
	tmpl *template.Template
}

func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{tmpl: template.Must(template.New("blueprint").Funcs(template.FuncMap{
		"percent": func(v float64) string { return fmt.Sprintf("%.0f%%", v) },
		"score":   func(v float64) string { return fmt.Sprintf("%.2f", v) },
		"blockData": formatBlock,
	}).Parse(pageTemplate))}
}

type pageData struct {
	Meta    Meta
	Theme   string
	Payload blueprint.Payload
}

func (r *HTMLRenderer) Render(ctx context.Context, meta Meta, p blueprint.Payload) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	if len(p.Sections) == 0 {
		return Output{}, fmt.Errorf("render %s: payload has no sections", meta.BlueprintID)
	}
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, pageData{Meta: meta, Theme: Theme, Payload: p}); err != nil {
		return Output{}, fmt.Errorf("render %s: %w", meta.BlueprintID, err)
	}
	return Output{Body: buf.Bytes(), ContentType: "text/html; charset=utf-8", Ext: "html"}, nil
}

// formatBlock prints visual block data as compact JSON; renderers without
// chart support fall back to a data table of it.
func formatBlock(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return strings.TrimSpace(string(data))
	}
	return buf.String()
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en" data-theme="{{.Theme}}">
<head>
<meta charset="utf-8">
<title>{{.Payload.ExecutiveTheme}}</title>
<style>
body{background:#0f1420;color:#e8ecf4;font-family:Helvetica,Arial,sans-serif;margin:40px}
h1{font-size:28px;margin-bottom:4px}
h2{border-bottom:1px solid #2c3650;padding-bottom:4px;margin-top:32px}
.metrics{display:flex;gap:24px;margin:24px 0}
.metric{background:#1a2233;padding:12px 16px;border-radius:6px}
.metric b{display:block;font-size:20px}
pre{background:#1a2233;padding:8px;white-space:pre-wrap}
</style>
</head>
<body>
<header>
<h1>{{.Payload.ExecutiveTheme}}</h1>
<p>{{.Meta.CustomerName}} · engagement {{.Meta.EngagementID}} · {{.Meta.BlueprintID}}</p>
</header>
<section class="metrics">
<div class="metric"><b>{{score .Payload.Metrics.RiskScore}}</b>Risk score</div>
<div class="metric"><b>{{score .Payload.Metrics.AutomationConfidence}}</b>Automation confidence</div>
<div class="metric"><b>{{percent .Payload.Metrics.CoveragePercentage}}</b>Coverage</div>
<div class="metric"><b>{{.Payload.Metrics.TimeToValueDays}} days</b>Time to value</div>
<div class="metric"><b>${{.Payload.Metrics.QuantifiedValue}}</b>Quantified value</div>
</section>
<p class="summary">{{.Payload.NarrativeSummary}}</p>
{{range .Payload.Sections}}
<section>
<h2>{{.Title}}</h2>
<p>{{.Summary}}</p>
{{with .Details}}<ul>{{range .}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{with .RecommendedActions}}<h3>Recommended actions</h3><ol>{{range .}}<li>{{.}}</li>{{end}}</ol>{{end}}
{{with .SupportingArtifacts}}<h3>Supporting artifacts</h3><ul>{{range .}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{range .VisualBlocks}}<figure data-type="{{.Type}}"><figcaption>{{.Title}}</figcaption><pre>{{blockData .Data}}</pre></figure>{{end}}
</section>
{{end}}
{{with .Payload.RecommendationCategories}}<footer>Categories: {{range $i, $c := .}}{{if $i}}, {{end}}{{$c}}{{end}}</footer>{{end}}
</body>
</html>
`
