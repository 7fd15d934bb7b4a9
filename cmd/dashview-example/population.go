package main

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/tomyedwab/dashview/dash"
)

//go:embed population.csv
var populationCSV []byte

const defaultCountry = "United States"

type sample struct {
	year int
	pop  int64
}

// PopulationApp plots population over time for a selected country.
type PopulationApp struct {
	countries []string
	series    map[string][]sample
}

// NewPopulationApp loads the bundled dataset.
func NewPopulationApp() (*PopulationApp, error) {
	return loadPopulation(bytes.NewReader(populationCSV))
}

func loadPopulation(r io.Reader) (*PopulationApp, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) != 3 || header[0] != "country" || header[1] != "year" || header[2] != "pop" {
		return nil, fmt.Errorf("unexpected header %v", header)
	}

	app := &PopulationApp{series: make(map[string][]sample)}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		year, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, fmt.Errorf("invalid year %q: %w", record[1], err)
		}
		pop, err := strconv.ParseInt(record[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid population %q: %w", record[2], err)
		}
		country := record[0]
		if _, ok := app.series[country]; !ok {
			app.countries = append(app.countries, country)
		}
		app.series[country] = append(app.series[country], sample{year: year, pop: pop})
	}
	return app, nil
}

func (a *PopulationApp) Title() string {
	return "Population Growth"
}

func (a *PopulationApp) BuildLayout() dash.Component {
	return dash.Div(
		dash.H1("Population Growth").WithStyle(map[string]string{"textAlign": "center"}),
		dash.Dropdown("dropdown-selection", a.countries, defaultCountry),
		dash.Graph("graph-content"),
	)
}

func (a *PopulationApp) BuildCallbacks() []dash.Callback {
	return []dash.Callback{
		dash.NewCallback(
			dash.NewOutput("graph-content", "figure"),
			dash.NewInput("dropdown-selection", "value"),
			a.updateGraph,
		),
	}
}

func (a *PopulationApp) updateGraph(ctx context.Context, value any) (any, error) {
	country, _ := value.(string)
	samples, ok := a.series[country]
	if !ok {
		return nil, fmt.Errorf("unknown country %q", country)
	}
	x := make([]any, len(samples))
	y := make([]any, len(samples))
	for i, s := range samples {
		x[i] = s.year
		y[i] = s.pop
	}
	fig := dash.LineFigure(x, y, "year", "pop")
	fig.Data[0].Name = country
	return fig, nil
}
