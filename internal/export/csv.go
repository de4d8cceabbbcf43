package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/emer/etable/v2/etable"
	"github.com/emer/etable/v2/etensor"

	"twop/internal/config"
	"twop/internal/container"
	"twop/internal/logging"
	"twop/internal/services"
)

// CSVExporter flattens a trace matrix into a tab-separated table, one row per
// sample with a leading time column.
type CSVExporter struct {
	cfg    *config.Config
	logger *slog.Logger
	source string
}

func NewCSV(cfg *config.Config, logger *slog.Logger, source string) *CSVExporter {
	return &CSVExporter{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "export"),
		source: source,
	}
}

// Export writes <stem>_<source>.tsv into outputDir (the container's directory
// when empty).
func (e *CSVExporter) Export(ctx context.Context, containerPath, outputDir string) error {
	logger := logging.WithContext(ctx, e.logger)

	dataset, err := container.TraceSource(e.source)
	if err != nil {
		return services.Wrap(services.ErrSettingsInvalid, "export", "select source", "invalid trace source", err)
	}

	box, err := container.OpenReadOnly(containerPath)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "export", "open container", "cannot open container", err)
	}
	defer box.Close()

	traces, shape, err := box.ReadFloat64(ctx, dataset)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "export", "read traces",
			fmt.Sprintf("container holds no %s dataset; run that stage first", dataset), err)
	}
	if len(shape) != 2 {
		return services.Wrap(services.ErrShapeMismatch, "export", "read traces",
			fmt.Sprintf("%s has shape %v, expected (rois, samples)", dataset, shape), nil)
	}
	rois, samples := shape[0], shape[1]

	times, unit, err := e.timeColumn(ctx, box, samples)
	if err != nil {
		return err
	}

	sch := etable.Schema{{"time", etensor.FLOAT64, nil, nil}}
	for roi := 0; roi < rois; roi++ {
		sch = append(sch, etable.Column{fmt.Sprintf("roi_%02d", roi), etensor.FLOAT64, nil, nil})
	}
	dt := &etable.Table{}
	dt.SetMetaData("name", stem(containerPath))
	dt.SetMetaData("precision", "17")
	dt.SetFromSchema(sch, samples)
	for i := 0; i < samples; i++ {
		dt.SetCellFloat("time", i, times[i])
		for roi := 0; roi < rois; roi++ {
			dt.SetCellFloat(fmt.Sprintf("roi_%02d", roi), i, traces[roi*samples+i])
		}
	}

	if outputDir == "" {
		outputDir = filepath.Dir(containerPath)
	}
	outputPath := filepath.Join(outputDir, fmt.Sprintf("%s_%s.tsv", stem(containerPath), e.source))
	file, err := os.Create(outputPath)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "export", "write table", "cannot create output file", err)
	}
	if err := dt.WriteCSV(file, etable.Tab, etable.Headers); err != nil {
		file.Close()
		return services.Wrap(services.ErrContainerState, "export", "write table", outputPath, err)
	}
	if err := file.Close(); err != nil {
		return services.Wrap(services.ErrContainerState, "export", "write table", outputPath, err)
	}

	logger.Info("trace table exported",
		logging.String("source", e.source),
		logging.Int("rois", rois),
		logging.Int("samples", samples),
		logging.String("time_unit", unit),
		logging.String("output", outputPath),
	)
	return nil
}

// timeColumn prefers recorded timestamps, then the frame rate, then plain
// frame indices.
func (e *CSVExporter) timeColumn(ctx context.Context, box *container.Container, samples int) ([]float64, string, error) {
	logger := e.logger

	has, err := box.HasDataset(ctx, container.DatasetTimestamps)
	if err != nil {
		return nil, "", services.Wrap(services.ErrContainerState, "export", "read timestamps", "cannot check timestamps", err)
	}
	if has {
		stamps, shape, err := box.ReadFloat64(ctx, container.DatasetTimestamps)
		if err != nil {
			return nil, "", services.Wrap(services.ErrContainerState, "export", "read timestamps", container.DatasetTimestamps, err)
		}
		if len(shape) == 1 && shape[0] == samples {
			times := make([]float64, samples)
			for i, ms := range stamps {
				times[i] = ms / 1000.0
			}
			return times, "s", nil
		}
		logger.Warn("timestamp count does not match trace length, falling back to frame rate",
			logging.Int("timestamps", len(stamps)),
			logging.Int("samples", samples),
		)
	}

	times := make([]float64, samples)
	if rate, ok, err := box.AttrFloat(ctx, container.RootGroup, container.AttrFrameRate); err == nil && ok && rate > 0 {
		for i := range times {
			times[i] = float64(i) / rate
		}
		return times, "s", nil
	}
	for i := range times {
		times[i] = float64(i)
	}
	return times, "frames", nil
}
