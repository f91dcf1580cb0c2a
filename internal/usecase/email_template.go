package usecase

import (
	"bytes"
	"html/template"
	"strings"
)

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.5; color: #222; max-width: 720px; margin: 0 auto; padding: 20px; }
h2 { border-bottom: 2px solid #1f8a4c; padding-bottom: 6px; }
pre { font-family: ui-monospace, Menlo, Consolas, monospace; white-space: pre-wrap; background: #f5f7f6; padding: 12px; border-radius: 6px; }
.footer { margin-top: 24px; color: #777; font-size: 0.9em; }
</style>
</head>
<body>
<p>Hi {{.Username}}, here is your Trackmania update for {{.Date}}.</p>
{{- range .Sections}}
<h2>{{.Title}}</h2>
<pre>{{.Body}}</pre>
{{- end}}
<p class="footer">You receive this email because you set up alerts on Trackmania Alerts.</p>
</body>
</html>`))

type digestSection struct {
	Title string
	Body  string
}

type digestView struct {
	Username string
	Date     string
	Sections []digestSection
}

func renderDigest(view digestView) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeHeader drops control characters so a value cannot open a new
// mail header.
func sanitizeHeader(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
