package dash

import (
	_ "embed"
	"html/template"
	"net/http"
)

//go:embed assets/dash.js
var dashJS []byte

const plotlyScriptURL = "https://cdn.plot.ly/plotly-2.35.2.min.js"

var shellTemplate = template.Must(template.New("shell").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; padding: 1em; font-family: sans-serif; background: {{.Background}}; color: {{.Foreground}}; }
select, input, button { font-size: 1em; }
.dash-graph { min-height: 400px; }
</style>
{{if .Plotly}}<script src="{{.Plotly}}"></script>{{end}}
</head>
<body>
<div id="_dash-app"></div>
<script id="_dash-config" type="application/json">{{.Config}}</script>
<script src="/_dash-assets/dash.js"></script>
</body>
</html>
`))

// shellConfig is handed to dash.js through the page shell.
type shellConfig struct {
	Layout    Component      `json:"layout"`
	Callbacks []callbackSpec `json:"callbacks"`
	Token     string         `json:"token"`
}

type shellData struct {
	Title      string
	Background template.CSS
	Foreground template.CSS
	Plotly     string
	Config     shellConfig
}

func (a *App) handleIndex(w http.ResponseWriter, r *http.Request) {
	token, err := a.tokens.Issue()
	if err != nil {
		a.logger.Error("Failed to issue session token", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := shellData{
		Title:      a.title,
		Background: template.CSS(a.background),
		Foreground: template.CSS(a.foreground),
		Plotly:     a.plotlyURL,
		Config: shellConfig{
			Layout:    a.layout,
			Callbacks: a.callbackSpecs(),
			Token:     token,
		},
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if err := shellTemplate.Execute(w, data); err != nil {
		a.logger.Error("Failed to render page shell", "error", err)
	}
}

func (a *App) handleScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript")
	w.Write(dashJS)
}
