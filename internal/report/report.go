// Package report renders a static HTML summary of one container: acquisition
// metadata, motion-correction quality, per-ROI trace statistics and the
// baseline settings used.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"twop/internal/config"
	"twop/internal/container"
	"twop/internal/logging"
	"twop/internal/services"
)

type Reporter struct {
	cfg    *config.Config
	logger *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) *Reporter {
	return &Reporter{cfg: cfg, logger: logging.NewComponentLogger(logger, "report")}
}

// Report writes <stem>_report.html into outputDir (the container's directory
// when empty). The container is opened read-only and never modified.
func (r *Reporter) Report(ctx context.Context, containerPath, outputDir string) error {
	logger := logging.WithContext(ctx, r.logger)

	box, err := container.OpenReadOnly(containerPath)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "report", "open container", "cannot open container", err)
	}
	defer box.Close()

	data, err := r.collect(ctx, box, containerPath)
	if err != nil {
		return err
	}

	if outputDir == "" {
		outputDir = filepath.Dir(containerPath)
	}
	outputPath := filepath.Join(outputDir, stem(containerPath)+"_report.html")
	file, err := os.Create(outputPath)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "report", "write report", "cannot create output file", err)
	}
	if err := reportTemplate.Execute(file, data); err != nil {
		file.Close()
		return services.Wrap(services.ErrContainerState, "report", "write report", outputPath, err)
	}
	if err := file.Close(); err != nil {
		return services.Wrap(services.ErrContainerState, "report", "write report", outputPath, err)
	}

	logger.Info("report written", logging.String("output", outputPath))
	return nil
}

func (r *Reporter) collect(ctx context.Context, box *container.Container, path string) (*reportData, error) {
	data := &reportData{
		Title:       stem(path),
		GeneratedAt: time.Now().UTC().Format("2006-01-02 15:04 MST"),
	}

	if err := r.collectContainer(ctx, box, path, data); err != nil {
		return nil, err
	}
	if err := r.collectAcquisition(ctx, box, data); err != nil {
		return nil, err
	}
	if err := r.collectMotion(ctx, box, data); err != nil {
		return nil, err
	}
	if err := r.collectTraces(ctx, box, data); err != nil {
		return nil, err
	}
	if err := r.collectDeltaF(ctx, box, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (r *Reporter) collectContainer(ctx context.Context, box *container.Container, path string, data *reportData) error {
	data.Container.Path = path
	if fi, err := os.Stat(path); err == nil {
		data.Container.Size = humanize.IBytes(uint64(fi.Size()))
	}
	data.Container.Recording, _, _ = box.AttrString(ctx, container.RootGroup, container.AttrRecordingID)
	data.Container.Source, _, _ = box.AttrString(ctx, container.RootGroup, container.AttrSource)
	data.Container.CreatedAt, _, _ = box.AttrString(ctx, container.RootGroup, container.AttrCreatedAt)
	if rate, ok, _ := box.AttrFloat(ctx, container.RootGroup, container.AttrFrameRate); ok && rate > 0 {
		data.Container.FrameRate = fmt.Sprintf("%.2f Hz", rate)
	} else {
		data.Container.FrameRate = "unknown"
	}
	return nil
}

func (r *Reporter) collectAcquisition(ctx context.Context, box *container.Container, data *reportData) error {
	info, err := box.Stat(ctx, container.DatasetImaging)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "report", "read acquisition",
			"container holds no acquisition data; run convert first", err)
	}
	dims := make([]string, len(info.Shape))
	for i, d := range info.Shape {
		dims[i] = strconv.Itoa(d)
	}
	data.Acquisition.Shape = strings.Join(dims, " x ")
	data.Acquisition.Dtype = string(info.Dtype)
	data.Acquisition.Timestamps, err = box.HasDataset(ctx, container.DatasetTimestamps)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "report", "read acquisition", "cannot check timestamps", err)
	}

	attrs, err := box.Attrs(ctx, container.DatasetImaging)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "report", "read acquisition", "cannot read imaging attributes", err)
	}
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		data.Acquisition.PixelAttrs = append(data.Acquisition.PixelAttrs, attrRow{Key: key, Value: formatAttr(attrs[key])})
	}
	return nil
}

func (r *Reporter) collectMotion(ctx context.Context, box *container.Container, data *reportData) error {
	has, err := box.HasDataset(ctx, container.DatasetDisplacements)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "report", "read motion", "cannot check displacements", err)
	}
	if !has {
		return nil
	}

	displacements, shape, err := box.ReadInt64(ctx, container.DatasetDisplacements)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "report", "read motion", container.DatasetDisplacements, err)
	}
	if len(shape) != 2 || shape[1] != 2 || shape[0] < 1 {
		return services.Wrap(services.ErrShapeMismatch, "report", "read motion",
			fmt.Sprintf("displacements have shape %v, expected (frames, 2)", shape), nil)
	}

	magnitudes := make([]float64, shape[0])
	for t := 0; t < shape[0]; t++ {
		magnitudes[t] = math.Hypot(float64(displacements[t*2]), float64(displacements[t*2+1]))
	}

	section := &motionSection{
		MeanMagnitude: fmt.Sprintf("%.2f", stat.Mean(magnitudes, nil)),
		MaxMagnitude:  fmt.Sprintf("%.2f", floats.Max(magnitudes)),
		Sparkline:     sparkline(magnitudes),
	}
	if len(magnitudes) > 1 {
		section.StdMagnitude = fmt.Sprintf("%.2f", stat.StdDev(magnitudes, nil))
	} else {
		section.StdMagnitude = "0.00"
	}
	section.Strategy, _, _ = box.AttrString(ctx, container.GroupMotion, container.AttrStrategy)
	section.ProcessingTime, _, _ = box.AttrString(ctx, container.GroupMotion, container.AttrProcessingTime)
	section.Tool, _, _ = box.AttrString(ctx, container.GroupMotion, container.AttrTool)
	if bounds, ok, _ := box.Attr(ctx, container.GroupMotion, container.AttrMaxDisplacement); ok {
		section.Displacement = formatDisplacement(bounds)
	}

	if has, err = box.HasDataset(ctx, container.DatasetMeanProjection); err == nil && has {
		plane, pshape, err := box.ReadFloat64(ctx, container.DatasetMeanProjection)
		if err == nil && len(pshape) == 2 {
			if uri, err := grayPNG(plane, pshape[0], pshape[1]); err == nil {
				section.Projection = uri
			}
		}
	}

	data.Motion = section
	return nil
}

func (r *Reporter) collectTraces(ctx context.Context, box *container.Container, data *reportData) error {
	has, err := box.HasDataset(ctx, container.DatasetTraces)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "report", "read traces", "cannot check traces", err)
	}
	if !has {
		return nil
	}

	traces, shape, err := box.ReadFloat64(ctx, container.DatasetTraces)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "report", "read traces", container.DatasetTraces, err)
	}
	if len(shape) != 2 || shape[0] < 1 || shape[1] < 1 {
		return services.Wrap(services.ErrShapeMismatch, "report", "read traces",
			fmt.Sprintf("traces have shape %v, expected (rois, samples)", shape), nil)
	}

	section := &tracesSection{Samples: shape[1]}
	for roi := 0; roi < shape[0]; roi++ {
		xs := traces[roi*shape[1] : (roi+1)*shape[1]]
		row := traceRow{
			ROI:  roi,
			Mean: fmt.Sprintf("%.2f", stat.Mean(xs, nil)),
			Min:  fmt.Sprintf("%.2f", floats.Min(xs)),
			Max:  fmt.Sprintf("%.2f", floats.Max(xs)),
		}
		if len(xs) > 1 {
			row.Std = fmt.Sprintf("%.2f", stat.StdDev(xs, nil))
		} else {
			row.Std = "0.00"
		}
		section.Rows = append(section.Rows, row)
	}
	data.Traces = section
	return nil
}

func (r *Reporter) collectDeltaF(ctx context.Context, box *container.Container, data *reportData) error {
	has, err := box.HasDataset(ctx, container.DatasetDeltaF)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "report", "read deltaf", "cannot check deltaf traces", err)
	}
	if !has {
		return nil
	}

	section := &deltafSection{}
	section.Method, _, _ = box.AttrString(ctx, container.GroupDeltaF, container.AttrMethod)
	section.WindowMode, _, _ = box.AttrString(ctx, container.GroupDeltaF, container.AttrWindowMode)
	if p, ok, _ := box.AttrFloat(ctx, container.GroupDeltaF, container.AttrPercentile); ok && section.Method == "percentile" {
		section.Percentile = strconv.FormatFloat(p, 'g', -1, 64)
	}
	if w, ok, _ := box.AttrFloat(ctx, container.GroupDeltaF, container.AttrWindow); ok {
		if w == 0 {
			section.Window = "whole trace"
		} else {
			section.Window = fmt.Sprintf("%d frames", int(w))
		}
	}
	data.DeltaF = section
	return nil
}

func formatAttr(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatAttr(item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(v)
	}
}

func formatDisplacement(value any) string {
	bounds, ok := value.([]any)
	if !ok || len(bounds) == 0 {
		return formatAttr(value)
	}
	parts := make([]string, len(bounds))
	for i, b := range bounds {
		parts[i] = formatAttr(b)
	}
	return strings.Join(parts, " x ") + " px"
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
