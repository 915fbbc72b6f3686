package dashboard

import (
	"bytes"
	"fmt"
	"html"
	"time"

	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

const (
	chartWidth   = 1000
	panelHeight  = 180
	panelGap     = 40
	marginLeft   = 90
	marginRight  = 20
	marginTop    = 30
	marginBottom = 40
	plotWidth    = chartWidth - marginLeft - marginRight
)

type series struct {
	value  func(telemetry.SensorReading) *float64
	color  string
	bands  []threshold // when set, the line is coloured by band
	top    string      // colour above the last threshold
	dashed bool
}

type threshold struct {
	at    float64
	label string
	color string
}

type panel struct {
	title      string
	min, max   float64
	autoMax    bool // extend max to the data
	series     []series
	thresholds []threshold
}

var (
	tvocThresholds = []threshold{
		{400, "Normal", "green"},
		{2200, "Bad", "yellow"},
		{3000, "Serious", "red"},
	}
	eco2Thresholds = []threshold{
		{400, "Excellent", "green"},
		{600, "Good", "blue"},
		{800, "Fair", "magenta"},
		{1000, "Poor", "yellow"},
		{1500, "Bad", "red"},
	}
)

func panels() []panel {
	return []panel{
		{
			title: "AQI", min: 0, max: 5,
			series: []series{{value: aqiValue, color: "red"}},
		},
		{
			title: "TVOC (ppb)", min: 0, max: 3500, autoMax: true,
			series:     []series{{value: tvocValue, bands: tvocThresholds, top: "white"}},
			thresholds: tvocThresholds,
		},
		{
			title: "eCO2 (ppm)", min: 300, max: 1600,
			series:     []series{{value: eco2Value, bands: eco2Thresholds, top: "white"}},
			thresholds: eco2Thresholds,
		},
		{
			title: "Indoor Temperature (F)", min: 40, max: 90,
			series: []series{{value: indoorTemp, color: "magenta"}},
		},
		{
			title: "Humidity (%) & Outside Temp", min: 0, max: 100,
			series: []series{
				{value: outdoorTemp, color: "magenta", dashed: true},
				{value: indoorHumidity, color: "blue"},
				{value: outdoorHumidity, color: "blue", dashed: true},
			},
		},
	}
}

func aqiValue(r telemetry.SensorReading) *float64 {
	if r.AQI == nil {
		return nil
	}
	v := float64(*r.AQI)
	return &v
}
func tvocValue(r telemetry.SensorReading) *float64       { return r.TVOC }
func eco2Value(r telemetry.SensorReading) *float64       { return r.ECO2 }
func indoorTemp(r telemetry.SensorReading) *float64      { return r.IndoorTemp }
func indoorHumidity(r telemetry.SensorReading) *float64  { return r.IndoorHumidity }
func outdoorTemp(r telemetry.SensorReading) *float64     { return r.OutdoorTemp }
func outdoorHumidity(r telemetry.SensorReading) *float64 { return r.OutdoorHumidity }

// Chart draws the five-panel history chart as SVG. Readings must be in time
// order. An unknown value breaks the line instead of plotting as zero.
func Chart(readings []telemetry.SensorReading) []byte {
	ps := panels()
	height := marginTop + len(ps)*(panelHeight+panelGap) + marginBottom

	var start, end time.Time
	if len(readings) > 0 {
		start, end = readings[0].Timestamp, readings[len(readings)-1].Timestamp
	}
	if !end.After(start) {
		end = start.Add(time.Minute)
	}
	span := end.Sub(start).Seconds()
	timeToX := func(t time.Time) float64 {
		return marginLeft + t.Sub(start).Seconds()/span*plotWidth
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<svg xmlns=\"http://www.w3.org/2000/svg\" width=\"%d\" height=\"%d\" font-family=\"sans-serif\" font-size=\"12\">\n", chartWidth, height)
	fmt.Fprintf(&buf, "<rect width=\"%d\" height=\"%d\" fill=\"black\"/>\n", chartWidth, height)

	for i, p := range ps {
		top := float64(marginTop + i*(panelHeight+panelGap))
		lo, hi := p.min, p.max
		if p.autoMax {
			for _, r := range readings {
				if v := p.series[0].value(r); v != nil && *v > hi {
					hi = *v
				}
			}
		}
		valueToY := func(v float64) float64 {
			v = max(lo, min(hi, v))
			return top + panelHeight - (v-lo)/(hi-lo)*panelHeight
		}

		fmt.Fprintf(&buf, "<g class=\"panel\" id=\"panel-%d\">\n", i)
		fmt.Fprintf(&buf, "<text x=\"%d\" y=\"%.0f\" fill=\"white\" font-weight=\"bold\">%s</text>\n", marginLeft, top-8, html.EscapeString(p.title))
		fmt.Fprintf(&buf, "<rect x=\"%d\" y=\"%.0f\" width=\"%d\" height=\"%d\" fill=\"none\" stroke=\"#333333\"/>\n", marginLeft, top, plotWidth, panelHeight)
		writeGrid(&buf, top, lo, hi, valueToY)

		for _, t := range p.thresholds {
			if t.at < lo || t.at > hi {
				continue
			}
			y := valueToY(t.at)
			fmt.Fprintf(&buf, "<line x1=\"%d\" y1=\"%.1f\" x2=\"%d\" y2=\"%.1f\" stroke=\"%s\" stroke-dasharray=\"6 4\"/>\n", marginLeft, y, marginLeft+plotWidth, y, t.color)
			fmt.Fprintf(&buf, "<text x=\"%d\" y=\"%.1f\" fill=\"%s\" text-anchor=\"end\">%s</text>\n", marginLeft-6, y+4, t.color, t.label)
		}

		for _, s := range p.series {
			for _, seg := range segments(readings, s) {
				writePolyline(&buf, seg, s.dashed, timeToX, valueToY)
			}
		}
		buf.WriteString("</g>\n")
	}

	writeTimeAxis(&buf, height, start, end, timeToX)
	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

type point struct {
	t time.Time
	v float64
}

type segment struct {
	color  string
	points []point
}

// segments splits a series into polylines. A new polyline starts at every
// unknown value and, for banded series, at every band change; a band change
// keeps the previous point so the line stays connected.
func segments(readings []telemetry.SensorReading, s series) []segment {
	var (
		out []segment
		cur *segment
	)
	for _, r := range readings {
		v := s.value(r)
		if v == nil {
			cur = nil
			continue
		}
		color := s.color
		if s.bands != nil {
			color = bandColor(*v, s.bands, s.top)
		}
		p := point{r.Timestamp, *v}

		switch {
		case cur == nil:
			out = append(out, segment{color: color})
		case cur.color != color:
			prev := cur.points[len(cur.points)-1]
			out = append(out, segment{color: color, points: []point{prev}})
		}
		cur = &out[len(out)-1]
		cur.points = append(cur.points, p)
	}
	return out
}

// bandColor colours v by how many thresholds it exceeds.
func bandColor(v float64, bands []threshold, top string) string {
	n := 0
	for _, b := range bands {
		if v > b.at {
			n++
		}
	}
	if n == len(bands) {
		return top
	}
	return bands[n].color
}

func writePolyline(buf *bytes.Buffer, seg segment, dashed bool, x func(time.Time) float64, y func(float64) float64) {
	if len(seg.points) == 1 {
		p := seg.points[0]
		fmt.Fprintf(buf, "<circle cx=\"%.1f\" cy=\"%.1f\" r=\"2\" fill=\"%s\"/>\n", x(p.t), y(p.v), seg.color)
		return
	}
	buf.WriteString("<polyline fill=\"none\" stroke-width=\"2\"")
	fmt.Fprintf(buf, " stroke=\"%s\"", seg.color)
	if dashed {
		buf.WriteString(" stroke-dasharray=\"8 4\"")
	}
	buf.WriteString(" points=\"")
	for i, p := range seg.points {
		if i > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(buf, "%.1f,%.1f", x(p.t), y(p.v))
	}
	buf.WriteString("\"/>\n")
}

func writeGrid(buf *bytes.Buffer, top, lo, hi float64, y func(float64) float64) {
	const lines = 4
	buf.WriteString("<g stroke=\"#333333\" stroke-width=\"1\">\n")
	for i := 1; i < lines; i++ {
		yy := top + float64(i)*panelHeight/lines
		fmt.Fprintf(buf, "<line x1=\"%d\" y1=\"%.1f\" x2=\"%d\" y2=\"%.1f\"/>\n", marginLeft, yy, marginLeft+plotWidth, yy)
	}
	buf.WriteString("</g>\n")
	// Axis bounds, inside the plot's right edge.
	fmt.Fprintf(buf, "<text x=\"%d\" y=\"%.1f\" fill=\"#aaaaaa\" text-anchor=\"end\">%g</text>\n", marginLeft+plotWidth-4, y(hi)+12, hi)
	fmt.Fprintf(buf, "<text x=\"%d\" y=\"%.1f\" fill=\"#aaaaaa\" text-anchor=\"end\">%g</text>\n", marginLeft+plotWidth-4, y(lo)-4, lo)
}

func writeTimeAxis(buf *bytes.Buffer, height int, start, end time.Time, x func(time.Time) float64) {
	const ticks = 5
	y := height - marginBottom/2
	step := end.Sub(start) / ticks
	for i := 0; i <= ticks; i++ {
		t := start.Add(time.Duration(i) * step)
		anchor := "middle"
		switch i {
		case 0:
			anchor = "start"
		case ticks:
			anchor = "end"
		}
		fmt.Fprintf(buf, "<text x=\"%.1f\" y=\"%d\" fill=\"white\" text-anchor=\"%s\">%s</text>\n", x(t), y, anchor, t.Local().Format("01-02 15:04"))
	}
}
