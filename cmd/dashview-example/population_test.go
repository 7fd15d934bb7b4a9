package main

import (
	"context"
	"strings"
	"testing"

	"github.com/tomyedwab/dashview/dash"
)

func TestBundledDataset(t *testing.T) {
	app, err := NewPopulationApp()
	if err != nil {
		t.Fatalf("NewPopulationApp failed: %v", err)
	}
	if len(app.countries) == 0 || app.countries[0] != defaultCountry {
		t.Fatalf("Expected %s first, got %v", defaultCountry, app.countries)
	}
	for _, country := range app.countries {
		samples := app.series[country]
		for i := 1; i < len(samples); i++ {
			if samples[i].year <= samples[i-1].year {
				t.Errorf("%s: years not increasing at %d", country, samples[i].year)
			}
		}
	}
}

func TestLoadPopulationRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"empty", ""},
		{"header", "name,when,count\n"},
		{"year", "country,year,pop\nChile,soon,10\n"},
		{"pop", "country,year,pop\nChile,1952,many\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := loadPopulation(strings.NewReader(tt.csv)); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestUpdateGraph(t *testing.T) {
	app, err := loadPopulation(strings.NewReader("country,year,pop\nChile,1952,6377619\nChile,1957,7048426\n"))
	if err != nil {
		t.Fatalf("loadPopulation failed: %v", err)
	}

	out, err := app.updateGraph(context.Background(), "Chile")
	if err != nil {
		t.Fatalf("updateGraph failed: %v", err)
	}
	fig := out.(dash.Figure)
	if len(fig.Data) != 1 || fig.Data[0].Name != "Chile" || len(fig.Data[0].X) != 2 {
		t.Fatalf("Unexpected figure %+v", fig)
	}
	if fig.Data[0].X[1] != 1957 || fig.Data[0].Y[1] != int64(7048426) {
		t.Errorf("Unexpected points %v %v", fig.Data[0].X, fig.Data[0].Y)
	}

	if _, err := app.updateGraph(context.Background(), "Atlantis"); err == nil {
		t.Error("Expected error for unknown country")
	}
}

func TestLayoutWiring(t *testing.T) {
	app, _ := NewPopulationApp()
	_, err := dash.New(app.Title(), app.BuildLayout(), app.BuildCallbacks(), dash.Options{})
	if err != nil {
		t.Fatalf("dash.New rejected the example app: %v", err)
	}
	ids := app.BuildLayout().IDs()
	if len(ids) != 2 || ids[0] != "dropdown-selection" || ids[1] != "graph-content" {
		t.Errorf("Unexpected ids %v", ids)
	}
}
