// Package export serializes finished containers into interchange formats.
// Exports never mutate the container; every open is read-only.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"twop/internal/config"
	"twop/internal/container"
	"twop/internal/logging"
	"twop/internal/npyio"
	"twop/internal/services"
	"twop/internal/services/nwbexport"
)

// NWBExporter hands a container to the external NWB writer as a manifest
// plus one npy file per dataset.
type NWBExporter struct {
	cfg    *config.Config
	logger *slog.Logger
	client nwbexport.Client
}

func NewNWB(cfg *config.Config, logger *slog.Logger) *NWBExporter {
	client := nwbexport.NewCLI(nwbexport.WithBinary(cfg.Tools.NWBExport))
	return NewNWBWithClient(cfg, logger, client)
}

func NewNWBWithClient(cfg *config.Config, logger *slog.Logger, client nwbexport.Client) *NWBExporter {
	return &NWBExporter{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "export"),
		client: client,
	}
}

type manifest struct {
	Container string            `json:"container"`
	Recording map[string]any    `json:"recording"`
	Groups    []manifestGroup   `json:"groups,omitempty"`
	Datasets  []manifestDataset `json:"datasets"`
}

type manifestGroup struct {
	Name  string         `json:"name"`
	Attrs map[string]any `json:"attrs"`
}

type manifestDataset struct {
	Path  string         `json:"path"`
	Dtype string         `json:"dtype"`
	Shape []int          `json:"shape"`
	File  string         `json:"file"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Export writes <stem>.nwb into outputDir (the container's directory when
// empty).
func (e *NWBExporter) Export(ctx context.Context, containerPath, outputDir string) error {
	logger := logging.WithContext(ctx, e.logger)

	box, err := container.OpenReadOnly(containerPath)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "export", "open container", "cannot open container", err)
	}
	defer box.Close()

	infos, err := box.List(ctx)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "export", "list datasets", "cannot enumerate container", err)
	}
	if len(infos) == 0 {
		return services.Wrap(services.ErrContainerState, "export", "list datasets", "container holds no datasets", nil)
	}

	workDir, err := os.MkdirTemp(e.cfg.Paths.WorkDir, "nwb-*")
	if err != nil {
		return services.Wrap(services.ErrContainerState, "export", "prepare work dir", "cannot create scratch directory", err)
	}
	defer os.RemoveAll(workDir)

	doc := manifest{Container: containerPath}
	doc.Recording, err = box.Attrs(ctx, container.RootGroup)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "export", "read attributes", "cannot read recording attributes", err)
	}

	groups, err := box.Groups(ctx)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "export", "read attributes", "cannot list groups", err)
	}
	for _, group := range groups {
		attrs, err := box.Attrs(ctx, group)
		if err != nil {
			return services.Wrap(services.ErrContainerState, "export", "read attributes", group, err)
		}
		if len(attrs) == 0 {
			continue
		}
		doc.Groups = append(doc.Groups, manifestGroup{Name: group, Attrs: attrs})
	}

	for _, info := range infos {
		file := filepath.Join(workDir, strings.ReplaceAll(info.Path, "/", "__")+".npy")
		if err := e.dumpDataset(ctx, box, info, file); err != nil {
			return err
		}
		attrs, err := box.Attrs(ctx, info.Path)
		if err != nil {
			return services.Wrap(services.ErrContainerState, "export", "read attributes", info.Path, err)
		}
		doc.Datasets = append(doc.Datasets, manifestDataset{
			Path:  info.Path,
			Dtype: string(info.Dtype),
			Shape: info.Shape,
			File:  file,
			Attrs: attrs,
		})
	}

	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrContainerState, "export", "write manifest", "cannot encode manifest", err)
	}
	manifestPath := filepath.Join(workDir, "manifest.json")
	if err := os.WriteFile(manifestPath, encoded, 0o644); err != nil {
		return services.Wrap(services.ErrContainerState, "export", "write manifest", "cannot write manifest", err)
	}

	if outputDir == "" {
		outputDir = filepath.Dir(containerPath)
	}
	outputPath := filepath.Join(outputDir, stem(containerPath)+".nwb")
	err = e.client.Export(ctx, manifestPath, outputPath, func(update nwbexport.ProgressUpdate) {
		logger.Debug("nwb export progress",
			logging.Float64("percent", update.Percent),
			logging.String("tool_stage", update.Stage),
		)
	})
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "export", "run nwb writer", "export failed", err)
	}

	logger.Info("nwb export complete",
		logging.Int("datasets", len(doc.Datasets)),
		logging.String("output", outputPath),
	)
	return nil
}

func (e *NWBExporter) dumpDataset(ctx context.Context, box *container.Container, info container.DatasetInfo, file string) error {
	var err error
	switch info.Dtype {
	case container.Uint8:
		var values []uint8
		var shape []int
		if values, shape, err = box.ReadUint8(ctx, info.Path); err == nil {
			err = npyio.WriteUint8(file, shape, values)
		}
	case container.Uint16:
		var values []uint16
		var shape []int
		if values, shape, err = box.ReadUint16(ctx, info.Path); err == nil {
			err = npyio.WriteUint16(file, shape, values)
		}
	case container.Int64:
		var values []int64
		var shape []int
		if values, shape, err = box.ReadInt64(ctx, info.Path); err == nil {
			err = npyio.WriteInt64(file, shape, values)
		}
	case container.Float64:
		var values []float64
		var shape []int
		if values, shape, err = box.ReadFloat64(ctx, info.Path); err == nil {
			err = npyio.WriteFloat64(file, shape, values)
		}
	default:
		err = fmt.Errorf("unsupported dtype %q", info.Dtype)
	}
	if err != nil {
		return services.Wrap(services.ErrContainerState, "export", "dump dataset", info.Path, err)
	}
	return nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
