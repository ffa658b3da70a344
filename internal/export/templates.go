package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"nercollab/internal/annotation"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"percent": func(v float64) string {
			return fmt.Sprintf("%.0f%%", v*100)
		},
		"join": strings.Join,
	}

	templateContent, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(templateContent)))
}

const defaultHighlight = "#DDDDDD"

// TemplateData holds data for the review report
type TemplateData struct {
	Title       string
	Description string
	Strategy    string
	ExportDate  time.Time
	Members     []string
	Labels      []TemplateLabel
	Tasks       []TemplateTask
}

type TemplateLabel struct {
	Name  string
	Color string
	Count int
}

type TemplateTask struct {
	ID       string
	Status   string
	Segments []TemplateSegment
	Entities []annotation.Entity
}

// TemplateSegment is a run of task text, highlighted when Label is set.
type TemplateSegment struct {
	Text  string
	Label string
	Color string
}

// ReportData prepares an export for the report template.
func ReportData(bundle *WorkspaceExport) TemplateData {
	colors := make(map[string]string, len(bundle.Workspace.Labels))
	data := TemplateData{
		Title:       bundle.Workspace.Name,
		Description: bundle.Workspace.Description,
		Strategy:    string(bundle.MergeStrategy),
		ExportDate:  bundle.ExportDate,
		Members:     bundle.Workspace.Members,
	}
	counts := make(map[string]int)
	for _, task := range bundle.Tasks {
		for _, e := range task.MergedAnnotations {
			counts[e.EntityType]++
		}
	}
	for _, label := range bundle.Workspace.Labels {
		colors[label.Name] = label.Color
		data.Labels = append(data.Labels, TemplateLabel{Name: label.Name, Color: label.Color, Count: counts[label.Name]})
	}
	for _, task := range bundle.Tasks {
		data.Tasks = append(data.Tasks, TemplateTask{
			ID:       task.ID,
			Status:   task.Status,
			Segments: highlight(task.Text, task.MergedAnnotations, colors),
			Entities: task.MergedAnnotations,
		})
	}
	return data
}

// highlight cuts text into plain and labelled runs. Entities are expected in
// start order; one that overlaps an earlier highlight is left unmarked.
func highlight(text string, entities []annotation.Entity, colors map[string]string) []TemplateSegment {
	runes := []rune(text)
	segments := make([]TemplateSegment, 0, 2*len(entities)+1)
	cursor := 0
	for _, e := range entities {
		if e.Start < cursor || e.End > len(runes) {
			continue
		}
		if e.Start > cursor {
			segments = append(segments, TemplateSegment{Text: string(runes[cursor:e.Start])})
		}
		color, ok := colors[e.EntityType]
		if !ok {
			color = defaultHighlight
		}
		segments = append(segments, TemplateSegment{Text: string(runes[e.Start:e.End]), Label: e.EntityType, Color: color})
		cursor = e.End
	}
	if cursor < len(runes) {
		segments = append(segments, TemplateSegment{Text: string(runes[cursor:])})
	}
	return segments
}

// RenderReportHTML renders the review report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <p>Merge strategy: {{.Strategy}}</p>
  {{range .Tasks}}
  <h2>{{.ID}}</h2>
  <p>{{range .Segments}}{{if .Label}}<mark>{{.Text}}</mark>{{else}}{{.Text}}{{end}}{{end}}</p>
  {{end}}
</body>
</html>`
