package results

import (
	"github.com/geolyze/geolyze_server/internal/model"
)

// Projector splits a completed job's result payload into the named
// datasets each visualization surface renders. A missing plot is a
// normal outcome and projects to an empty placeholder, never an error.

// Well-known plot keys produced by the analysis engine.
const (
	PlotUMAP    = "umap"
	PlotHeatmap = "heatmap"
	PlotVolcano = "volcano"
	PlotQC      = "qc"
)

// SurfaceKeys the plots the results view renders, in tab order.
var SurfaceKeys = []string{PlotUMAP, PlotHeatmap, PlotVolcano, PlotQC}

// Plot one dataset: a sequence of trace records plus an optional
// layout/styling record.
type Plot struct {
	Data   []interface{}          `json:"data"`
	Layout map[string]interface{} `json:"layout,omitempty"`
	Empty  bool                   `json:"empty,omitempty"`
}

// Placeholder the explicit empty state for a surface whose plot is
// absent from the payload.
func Placeholder() *Plot {
	return &Plot{Data: []interface{}{}, Empty: true}
}

// Project extracts the surface datasets from a result payload. The
// payload maps plot name -> {data, layout}; unknown names are ignored,
// missing names yield placeholders.
func Project(resultData model.JSONMap) map[string]*Plot {
	plots, _ := resultData["plots"].(map[string]interface{})
	if plots == nil {
		// Older payloads keep plot entries at the top level.
		plots = resultData
	}

	out := make(map[string]*Plot, len(SurfaceKeys))
	for _, key := range SurfaceKeys {
		out[key] = extract(plots[key])
	}
	return out
}

func extract(raw interface{}) *Plot {
	entry, ok := raw.(map[string]interface{})
	if !ok {
		return Placeholder()
	}

	plot := &Plot{Data: []interface{}{}}
	if data, ok := entry["data"].([]interface{}); ok {
		plot.Data = data
	}
	if layout, ok := entry["layout"].(map[string]interface{}); ok {
		plot.Layout = layout
	}
	if len(plot.Data) == 0 && plot.Layout == nil {
		return Placeholder()
	}
	return plot
}

// WithLayout returns a copy of the plot with the override merged on
// top of its layout. The stored plot is never mutated; a surface may
// apply its own sizing without corrupting the payload for others.
func (p *Plot) WithLayout(override map[string]interface{}) *Plot {
	merged := make(map[string]interface{}, len(p.Layout)+len(override))
	for k, v := range p.Layout {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return &Plot{Data: p.Data, Layout: merged, Empty: p.Empty}
}
