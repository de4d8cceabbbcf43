package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"image"
	"image/png"
	"strings"
)

type reportData struct {
	Title       string
	GeneratedAt string
	Container   containerSection
	Acquisition acquisitionSection
	Motion      *motionSection
	Traces      *tracesSection
	DeltaF      *deltafSection
}

type containerSection struct {
	Path      string
	Size      string
	Recording string
	Source    string
	CreatedAt string
	FrameRate string
}

type acquisitionSection struct {
	Shape      string
	Dtype      string
	Timestamps bool
	PixelAttrs []attrRow
}

type attrRow struct {
	Key   string
	Value string
}

type motionSection struct {
	Strategy       string
	Displacement   string
	ProcessingTime string
	Tool           string
	MeanMagnitude  string
	MaxMagnitude   string
	StdMagnitude   string
	Sparkline      string
	Projection     template.URL
}

type tracesSection struct {
	Samples int
	Rows    []traceRow
}

type traceRow struct {
	ROI  int
	Mean string
	Std  string
	Min  string
	Max  string
}

type deltafSection struct {
	Method     string
	Percentile string
	Window     string
	WindowMode string
}

const (
	sparkWidth  = 480
	sparkHeight = 64
	sparkPad    = 4
)

// sparkline turns a magnitude series into SVG polyline points, keeping peaks
// when the series is longer than the plot is wide.
func sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	if len(values) > sparkWidth {
		stride := (len(values) + sparkWidth - 1) / sparkWidth
		reduced := make([]float64, 0, sparkWidth)
		for i := 0; i < len(values); i += stride {
			end := i + stride
			if end > len(values) {
				end = len(values)
			}
			peak := values[i]
			for _, v := range values[i+1 : end] {
				if v > peak {
					peak = v
				}
			}
			reduced = append(reduced, peak)
		}
		values = reduced
	}

	top := values[0]
	for _, v := range values[1:] {
		if v > top {
			top = v
		}
	}
	if top <= 0 {
		top = 1
	}
	plotWidth := float64(sparkWidth - 2*sparkPad)
	plotHeight := float64(sparkHeight - 2*sparkPad)
	step := 0.0
	if len(values) > 1 {
		step = plotWidth / float64(len(values)-1)
	}

	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(' ')
		}
		x := float64(sparkPad) + float64(i)*step
		y := float64(sparkPad) + (1-v/top)*plotHeight
		fmt.Fprintf(&b, "%.1f,%.1f", x, y)
	}
	return b.String()
}

// grayPNG renders a (Y,X) plane as an inline PNG data URI, scaled to the
// plane's own intensity range.
func grayPNG(values []float64, height, width int) (template.URL, error) {
	if len(values) != height*width || height < 1 || width < 1 {
		return "", fmt.Errorf("plane has %d values for %dx%d", len(values), height, width)
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i, v := range values {
		img.Pix[i] = uint8((v - lo) * scale)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

var reportTemplate = template.Must(template.New("report").Parse(reportHTML))

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2em auto; max-width: 56em; color: #222; }
h1 { font-size: 1.4em; }
h2 { font-size: 1.1em; margin-top: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.3em 0.8em; text-align: right; }
th { background: #f0f0f0; }
td:first-child, th:first-child { text-align: left; }
svg { background: #fafafa; border: 1px solid #ddd; }
img.projection { image-rendering: pixelated; width: 256px; border: 1px solid #ddd; }
.meta { color: #666; font-size: 0.9em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Generated {{.GeneratedAt}} from {{.Container.Path}}{{if .Container.Size}} ({{.Container.Size}}){{end}}</p>

<h2>Acquisition</h2>
<table>
{{if .Container.Recording}}<tr><td>Recording</td><td>{{.Container.Recording}}</td></tr>
{{end}}{{if .Container.Source}}<tr><td>Source</td><td>{{.Container.Source}}</td></tr>
{{end}}{{if .Container.CreatedAt}}<tr><td>Converted</td><td>{{.Container.CreatedAt}}</td></tr>
{{end}}<tr><td>Stack</td><td>{{.Acquisition.Shape}} ({{.Acquisition.Dtype}})</td></tr>
<tr><td>Frame rate</td><td>{{.Container.FrameRate}}</td></tr>
<tr><td>Timestamps</td><td>{{if .Acquisition.Timestamps}}present{{else}}absent{{end}}</td></tr>
{{range .Acquisition.PixelAttrs}}<tr><td>{{.Key}}</td><td>{{.Value}}</td></tr>
{{end}}</table>

{{if .Motion}}<h2>Motion correction</h2>
<table>
<tr><td>Strategy</td><td>{{.Motion.Strategy}}</td></tr>
{{if .Motion.Displacement}}<tr><td>Max displacement</td><td>{{.Motion.Displacement}}</td></tr>
{{end}}{{if .Motion.ProcessingTime}}<tr><td>Processing time</td><td>{{.Motion.ProcessingTime}}</td></tr>
{{end}}{{if .Motion.Tool}}<tr><td>Tool</td><td>{{.Motion.Tool}}</td></tr>
{{end}}<tr><td>Mean displacement</td><td>{{.Motion.MeanMagnitude}} px</td></tr>
<tr><td>Max displacement seen</td><td>{{.Motion.MaxMagnitude}} px</td></tr>
<tr><td>Displacement std</td><td>{{.Motion.StdMagnitude}} px</td></tr>
</table>
<p>Per-frame displacement magnitude:</p>
<svg width="480" height="64" viewBox="0 0 480 64" role="img">
<polyline points="{{.Motion.Sparkline}}" fill="none" stroke="#336699" stroke-width="1"/>
</svg>
{{if .Motion.Projection}}<p>Mean intensity projection:</p>
<img class="projection" src="{{.Motion.Projection}}" alt="mean intensity projection">
{{end}}{{end}}
{{if .Traces}}<h2>Extracted traces ({{.Traces.Samples}} samples)</h2>
<table>
<tr><th>ROI</th><th>Mean</th><th>Std</th><th>Min</th><th>Max</th></tr>
{{range .Traces.Rows}}<tr><td>roi_{{printf "%02d" .ROI}}</td><td>{{.Mean}}</td><td>{{.Std}}</td><td>{{.Min}}</td><td>{{.Max}}</td></tr>
{{end}}</table>
{{end}}
{{if .DeltaF}}<h2>&Delta;F/F&#8320;</h2>
<table>
<tr><td>Method</td><td>{{.DeltaF.Method}}</td></tr>
{{if .DeltaF.Percentile}}<tr><td>Percentile</td><td>{{.DeltaF.Percentile}}</td></tr>
{{end}}{{if .DeltaF.Window}}<tr><td>Window</td><td>{{.DeltaF.Window}}</td></tr>
{{end}}{{if .DeltaF.WindowMode}}<tr><td>Window mode</td><td>{{.DeltaF.WindowMode}}</td></tr>
{{end}}</table>
{{end}}</body>
</html>
`
