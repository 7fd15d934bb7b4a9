package dash

// Trace is one plotly.js data series.
type Trace struct {
	Type string `json:"type"`
	Mode string `json:"mode,omitempty"`
	Name string `json:"name,omitempty"`
	X    []any  `json:"x"`
	Y    []any  `json:"y"`
}

// Figure is a plotly.js figure, the value of a Graph's "figure" property.
type Figure struct {
	Data   []Trace        `json:"data"`
	Layout map[string]any `json:"layout,omitempty"`
}

// LineFigure plots y against x as a single line series.
func LineFigure(x, y []any, xTitle, yTitle string) Figure {
	return Figure{
		Data: []Trace{{Type: "scatter", Mode: "lines", X: x, Y: y}},
		Layout: map[string]any{
			"xaxis": map[string]any{"title": map[string]any{"text": xTitle}},
			"yaxis": map[string]any{"title": map[string]any{"text": yTitle}},
		},
	}
}
