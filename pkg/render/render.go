// Package render draws a catalogue as an SVG map: one polyline per line,
// line labels at the terminals, then stop markers and stop labels.
package render

import (
	"math"
	"strings"

	"github.com/paulmach/orb"

	"transit_router/pkg/catalogue"
	"transit_router/pkg/geo"
)

// Settings control the map layout. Offsets are [dx, dy] in pixels.
type Settings struct {
	Width             float64    `json:"width" validate:"gt=0"`
	Height            float64    `json:"height" validate:"gt=0"`
	Padding           float64    `json:"padding" validate:"gte=0"`
	LineWidth         float64    `json:"line_width" validate:"gt=0"`
	StopRadius        float64    `json:"stop_radius" validate:"gt=0"`
	BusLabelFontSize  int        `json:"bus_label_font_size" validate:"gt=0"`
	BusLabelOffset    [2]float64 `json:"bus_label_offset"`
	StopLabelFontSize int        `json:"stop_label_font_size" validate:"gt=0"`
	StopLabelOffset   [2]float64 `json:"stop_label_offset"`
	UnderlayerColor   Color      `json:"underlayer_color"`
	UnderlayerWidth   float64    `json:"underlayer_width" validate:"gte=0"`
	ColorPalette      []Color    `json:"color_palette" validate:"min=1"`
}

const epsilon = 1e-6

// projector maps coordinates onto the canvas, keeping the aspect ratio.
type projector struct {
	padding float64
	minLng  float64
	maxLat  float64
	zoom    float64
}

func newProjector(points orb.MultiPoint, width, height, padding float64) projector {
	p := projector{padding: padding}
	if len(points) == 0 {
		return p
	}
	b := points.Bound()
	p.minLng = b.Left()
	p.maxLat = b.Top()

	var zoomW, zoomH float64
	hasW := math.Abs(b.Right()-b.Left()) >= epsilon
	hasH := math.Abs(b.Top()-b.Bottom()) >= epsilon
	if hasW {
		zoomW = (width - 2*padding) / (b.Right() - b.Left())
	}
	if hasH {
		zoomH = (height - 2*padding) / (b.Top() - b.Bottom())
	}
	switch {
	case hasW && hasH:
		p.zoom = math.Min(zoomW, zoomH)
	case hasW:
		p.zoom = zoomW
	case hasH:
		p.zoom = zoomH
	}
	return p
}

func (p projector) project(c geo.Coordinates) orb.Point {
	return orb.Point{
		(c.Lng-p.minLng)*p.zoom + p.padding,
		(p.maxLat-c.Lat)*p.zoom + p.padding,
	}
}

// Map renders the catalogue. Lines are drawn in name order and stops without
// any line are left out. The output is deterministic for a given catalogue.
func Map(cat *catalogue.Catalogue, s Settings) string {
	lines := cat.SortedLines()
	stops := cat.ServedStops()

	points := make(orb.MultiPoint, 0, len(stops))
	for _, id := range stops {
		c := cat.Stop(id).Coordinates
		points = append(points, orb.Point{c.Lng, c.Lat})
	}
	proj := newProjector(points, s.Width, s.Height, s.Padding)

	var doc document
	doc.begin()
	color := 0
	for _, lid := range lines {
		line := cat.Line(lid)
		if len(line.Stops) == 0 {
			continue
		}
		pts := make([]orb.Point, 0, 2*len(line.Stops))
		for _, sid := range line.Stops {
			pts = append(pts, proj.project(cat.Stop(sid).Coordinates))
		}
		if !line.IsRoundtrip {
			for i := len(line.Stops) - 2; i >= 0; i-- {
				pts = append(pts, pts[i])
			}
		}
		doc.polyline(pts, s.paletteColor(color), s.LineWidth)
		color++
	}

	color = 0
	for _, lid := range lines {
		line := cat.Line(lid)
		if len(line.Stops) == 0 {
			continue
		}
		fill := s.paletteColor(color)
		color++
		first, last := line.Stops[0], line.Stops[len(line.Stops)-1]
		ends := []catalogue.StopID{first}
		if !line.IsRoundtrip && first != last {
			ends = append(ends, last)
		}
		for _, sid := range ends {
			l := label{
				at:       proj.project(cat.Stop(sid).Coordinates),
				offset:   s.BusLabelOffset,
				fontSize: s.BusLabelFontSize,
				bold:     true,
				text:     line.Name,
			}
			doc.text(l, s.UnderlayerColor, s.UnderlayerColor, s.UnderlayerWidth)
			doc.text(l, fill, "", 0)
		}
	}

	for _, sid := range stops {
		doc.circle(proj.project(cat.Stop(sid).Coordinates), s.StopRadius, "white")
	}

	for _, sid := range stops {
		st := cat.Stop(sid)
		l := label{
			at:       proj.project(st.Coordinates),
			offset:   s.StopLabelOffset,
			fontSize: s.StopLabelFontSize,
			text:     st.Name,
		}
		doc.text(l, s.UnderlayerColor, s.UnderlayerColor, s.UnderlayerWidth)
		doc.text(l, "black", "", 0)
	}

	doc.end()
	return doc.String()
}

// paletteColor cycles through the palette; an empty palette yields no paint.
func (s Settings) paletteColor(i int) Color {
	if len(s.ColorPalette) == 0 {
		return ""
	}
	return s.ColorPalette[i%len(s.ColorPalette)]
}

type label struct {
	at       orb.Point
	offset   [2]float64
	fontSize int
	bold     bool
	text     string
}

// document accumulates SVG elements.
type document struct {
	strings.Builder
}

func (d *document) begin() {
	d.WriteString(`<?xml version="1.0" encoding="UTF-8" ?>` + "\n")
	d.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" version="1.1">` + "\n")
}

func (d *document) end() {
	d.WriteString("</svg>\n")
}

func (d *document) polyline(pts []orb.Point, stroke Color, width float64) {
	d.WriteString(`<polyline points="`)
	for i, p := range pts {
		if i > 0 {
			d.WriteByte(' ')
		}
		d.WriteString(num(p[0]) + "," + num(p[1]))
	}
	d.WriteString(`" fill="none" stroke="` + stroke.String() + `" stroke-width="` + num(width) + `"`)
	d.WriteString(` stroke-linecap="round" stroke-linejoin="round"/>` + "\n")
}

func (d *document) circle(at orb.Point, r float64, fill Color) {
	d.WriteString(`<circle cx="` + num(at[0]) + `" cy="` + num(at[1]) + `" r="` + num(r) + `" fill="` + fill.String() + `"/>` + "\n")
}

// text writes a label. A non-empty stroke turns it into an underlayer.
func (d *document) text(l label, fill, stroke Color, strokeWidth float64) {
	d.WriteString(`<text fill="` + fill.String() + `"`)
	if stroke != "" {
		d.WriteString(` stroke="` + stroke.String() + `" stroke-width="` + num(strokeWidth) + `"`)
		d.WriteString(` stroke-linecap="round" stroke-linejoin="round"`)
	}
	d.WriteString(` x="` + num(l.at[0]) + `" y="` + num(l.at[1]) + `"`)
	d.WriteString(` dx="` + num(l.offset[0]) + `" dy="` + num(l.offset[1]) + `"`)
	d.WriteString(` font-size="` + num(float64(l.fontSize)) + `" font-family="Verdana"`)
	if l.bold {
		d.WriteString(` font-weight="bold"`)
	}
	d.WriteString(">" + escape(l.text) + "</text>\n")
}

var escaper = strings.NewReplacer(
	`"`, "&quot;",
	"'", "&apos;",
	"<", "&lt;",
	">", "&gt;",
	"&", "&amp;",
)

func escape(s string) string { return escaper.Replace(s) }
