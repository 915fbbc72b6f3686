package dashboard

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/i474232898/airquality-monitor/internal/classify"
	"github.com/i474232898/airquality-monitor/internal/telemetry"
)

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta http-equiv="refresh" content="60">
<title>Air Quality Monitoring Dashboard</title>
<style>
body { background-color: #000000; color: #ffffff; margin: 0; padding: 0; font-family: sans-serif; }
header { text-align: center; padding: 16px; line-height: 1.6; }
h1 { font-size: 1.4em; margin: 0 0 8px 0; }
main { text-align: center; }
</style>
</head>
<body>
<header>
<h1>Air Quality Monitoring Dashboard</h1>
{{- if .HasReading}}
<div>Current Time: {{.Time}}</div>
<div>Temperature: {{.Temperature}}°F ({{.TemperatureLabel}})</div>
<div>Humidity: {{.Humidity}}% ({{.HumidityLabel}})</div>
<div>AQI: {{.AQI}} ({{.AQILabel}})</div>
<div>TVOC: {{.TVOC}} ppb ({{.TVOCLabel}})</div>
<div>eCO2: {{.ECO2}} ppm ({{.ECO2Label}})</div>
{{- else}}
<div>No readings yet</div>
{{- end}}
</header>
<main><img src="/chart.svg?v={{.Version}}" alt="Air quality history"></main>
</body>
</html>
`))

type pageData struct {
	HasReading bool
	Version    int64

	Time                           string
	Temperature, TemperatureLabel  string
	Humidity, HumidityLabel        string
	AQI, AQILabel                  string
	TVOC, TVOCLabel                string
	ECO2, ECO2Label                string
}

const invalidLabel = "Invalid"

func newPageData(latest telemetry.SensorReading, ok bool, c classify.Classification, cerr error, renderedAt time.Time) pageData {
	d := pageData{HasReading: ok, Version: renderedAt.Unix()}
	if !ok {
		return d
	}
	if cerr != nil {
		c = classify.Classification{
			AQI: invalidLabel, TVOC: invalidLabel, ECO2: invalidLabel,
			Temperature: invalidLabel, Humidity: invalidLabel,
		}
	}

	d.Time = latest.Timestamp.Local().Format("2006-01-02 15:04:05")
	d.Temperature, d.TemperatureLabel = formatFloat(latest.IndoorTemp, "%.1f"), string(c.Temperature)
	d.Humidity, d.HumidityLabel = formatFloat(latest.IndoorHumidity, "%.1f"), string(c.Humidity)
	d.AQILabel = string(c.AQI)
	d.AQI = "n/a"
	if latest.AQI != nil {
		d.AQI = fmt.Sprint(*latest.AQI)
	}
	d.TVOC, d.TVOCLabel = formatFloat(latest.TVOC, "%.0f"), string(c.TVOC)
	d.ECO2, d.ECO2Label = formatFloat(latest.ECO2, "%.0f"), string(c.ECO2)
	return d
}

func formatFloat(v *float64, format string) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *v)
}

func renderPage(d pageData) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), nil
}
