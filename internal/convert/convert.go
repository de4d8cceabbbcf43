// Package convert turns vendor raw recordings into containers.
//
// A recording arrives as a flat little-endian uint16 stream plus an INI
// sidecar carrying acquisition metadata. The frame geometry comes from OME-XML
// embedded in the INI or from a sibling XML file. Conversion validates the
// stream against that geometry, then writes the imaging stack, the INI
// attributes, and optional per-frame timestamps into a fresh container in one
// transaction. The container appears at its final path only after a complete
// write.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"twop/internal/config"
	"twop/internal/container"
	"twop/internal/inifile"
	"twop/internal/logging"
	"twop/internal/omexml"
	"twop/internal/pathfind"
	"twop/internal/rawfile"
	"twop/internal/services"
	"twop/internal/stage"
)

// OMEKey is the INI key holding embedded OME-XML.
const OMEKey = "ome.xml.string"

// FrameRateKey is the INI key holding the acquisition rate in Hz.
const FrameRateKey = "frame.rate"

// FrameCountKey is the INI key holding the configured frame count.
const FrameCountKey = "frame.count"

// Options adjust a conversion batch.
type Options struct {
	// OutputDir receives the containers. Empty writes next to each raw file.
	OutputDir string
	// Force replaces containers that already exist.
	Force bool
	// GenerateTimestamps derives per-frame timestamps from session notes files.
	GenerateTimestamps bool
	// INIPath overrides sidecar discovery. Only meaningful when converting a
	// single file.
	INIPath string
	// XMLPath overrides OME-XML discovery and takes precedence over the
	// embedded ome.xml.string key.
	XMLPath string
}

// Converter implements the conversion stage.
type Converter struct {
	cfg    *config.Config
	logger *slog.Logger
	opts   Options
}

// New constructs a Converter.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Converter {
	return &Converter{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "convert"),
		opts:   opts,
	}
}

// Discover lists raw recordings under root, honoring the configured suffix
// rule and the include/exclude filters.
func (c *Converter) Discover(root, include, exclude string, recursive bool) ([]string, error) {
	paths, err := pathfind.Find(root, []string{".raw"}, include, exclude, recursive, c.cfg.Convert.StrictSuffix)
	if err != nil {
		return nil, services.Wrap(services.ErrSettingsInvalid, "convert", "discover inputs", "cannot collect raw files", err)
	}
	return paths, nil
}

// Convert processes one raw recording into a container.
func (c *Converter) Convert(ctx context.Context, rawPath string) error {
	logger := logging.WithContext(ctx, c.logger)

	containerPath, err := c.containerPath(rawPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(containerPath); err == nil {
		if !c.opts.Force {
			return fmt.Errorf("%w: container %s already exists", stage.ErrSkip, containerPath)
		}
		logger.Info("replacing existing container", logging.String("container", containerPath))
		if err := container.Remove(containerPath); err != nil {
			return services.Wrap(services.ErrContainerState, "convert", "replace container", "cannot remove existing container", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrContainerState, "convert", "stat container", "cannot stat output path", err)
	}

	meta, ini, err := c.loadMetadata(rawPath)
	if err != nil {
		return err
	}

	shape := meta.FrameShape()
	expected := meta.PixelCount()
	if err := rawfile.Validate(rawPath, expected); err != nil {
		if errors.Is(err, rawfile.ErrSizeMismatch) {
			return services.Wrap(services.ErrShapeMismatch, "convert", "validate raw stream",
				fmt.Sprintf("raw data does not fill the %v frame geometry", shape), err)
		}
		return services.Wrap(services.ErrContainerState, "convert", "validate raw stream", "cannot read raw file", err)
	}

	if err := c.checkFreeSpace(filepath.Dir(containerPath), int64(expected)*2); err != nil {
		return err
	}

	values, err := rawfile.Read(rawPath, expected)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "convert", "read raw stream", "cannot read raw file", err)
	}

	timestamps := c.timestampsFor(logger, rawPath, ini, meta.SizeT)

	rate, rateOK := ini.Float(FrameRateKey)
	if !rateOK || rate <= 0 {
		logger.Warn("ini lacks a usable frame rate, spike inference will be unavailable",
			logging.String("key", FrameRateKey))
	}

	staging := containerPath + ".partial"
	container.Remove(staging)
	box, err := container.Create(staging)
	if err != nil {
		return services.Wrap(services.ErrContainerState, "convert", "create container", "cannot create staging container", err)
	}

	writeErr := box.WriteStage(ctx, container.StageWrite{
		Stage:  "convert",
		Groups: []string{container.GroupAcquisition},
	}, func(w *container.StageWriter) error {
		if err := w.PutUint16(container.DatasetImaging, shape, values); err != nil {
			return err
		}
		for _, key := range ini.Keys() {
			if key == OMEKey {
				continue
			}
			value, _ := ini.Get(key)
			if err := w.SetAttr(container.DatasetImaging, key, value); err != nil {
				return err
			}
		}
		if len(timestamps) > 0 {
			if err := w.PutFloat64(container.DatasetTimestamps, []int{len(timestamps)}, timestamps); err != nil {
				return err
			}
			if err := w.SetAttr(container.DatasetTimestamps, "units", "ms"); err != nil {
				return err
			}
		}
		if err := w.SetAttr(container.RootGroup, container.AttrRecordingID, uuid.NewString()); err != nil {
			return err
		}
		source := rawPath
		if abs, err := filepath.Abs(rawPath); err == nil {
			source = abs
		}
		if err := w.SetAttr(container.RootGroup, container.AttrSource, source); err != nil {
			return err
		}
		if err := w.SetAttr(container.RootGroup, container.AttrCreatedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return err
		}
		if rateOK && rate > 0 {
			if err := w.SetAttr(container.RootGroup, container.AttrFrameRate, rate); err != nil {
				return err
			}
		}
		return nil
	})
	closeErr := box.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		container.Remove(staging)
		return services.Wrap(services.ErrContainerState, "convert", "write acquisition", "container write failed", writeErr)
	}

	if err := os.Rename(staging, containerPath); err != nil {
		container.Remove(staging)
		return services.Wrap(services.ErrContainerState, "convert", "publish container", "cannot move container into place", err)
	}
	os.Remove(staging + ".lock")

	logger.Info("conversion complete",
		logging.String("container", containerPath),
		logging.Int("frames", meta.SizeT),
		logging.Bool("timestamps", len(timestamps) > 0),
	)
	return nil
}

func (c *Converter) containerPath(rawPath string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(rawPath), filepath.Ext(rawPath))
	dir := filepath.Dir(rawPath)
	if c.opts.OutputDir != "" {
		dir = c.opts.OutputDir
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			parent := filepath.Dir(dir)
			if _, parentErr := os.Stat(parent); parentErr != nil {
				return "", services.Wrap(services.ErrSettingsInvalid, "convert", "prepare output",
					fmt.Sprintf("parent of output directory %s does not exist", dir), parentErr)
			}
			if mkErr := os.Mkdir(dir, 0o755); mkErr != nil {
				return "", services.Wrap(services.ErrContainerState, "convert", "prepare output", "cannot create output directory", mkErr)
			}
		} else if err != nil {
			return "", services.Wrap(services.ErrContainerState, "convert", "prepare output", "cannot stat output directory", err)
		}
	}
	return filepath.Join(dir, stem+container.Ext), nil
}

func (c *Converter) loadMetadata(rawPath string) (*omexml.Metadata, *inifile.File, error) {
	iniPath := c.opts.INIPath
	if iniPath == "" {
		iniPath = withExt(rawPath, ".ini")
	}
	if _, err := os.Stat(iniPath); err != nil {
		return nil, nil, services.Wrap(services.ErrMetadataMissing, "convert", "locate metadata",
			fmt.Sprintf("no INI sidecar at %s", iniPath), err)
	}
	ini, err := inifile.Load(iniPath, c.cfg.Convert.INIEncoding)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrMetadataMissing, "convert", "parse ini", "INI sidecar unreadable", err)
	}

	payload, err := c.omePayload(iniPath, ini)
	if err != nil {
		return nil, nil, err
	}
	meta, err := omexml.Parse(payload)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrMetadataMissing, "convert", "parse ome-xml", "OME-XML metadata invalid", err)
	}
	return meta, ini, nil
}

func (c *Converter) omePayload(iniPath string, ini *inifile.File) ([]byte, error) {
	if c.opts.XMLPath != "" {
		data, err := os.ReadFile(c.opts.XMLPath)
		if err != nil {
			return nil, services.Wrap(services.ErrMetadataMissing, "convert", "locate metadata",
				fmt.Sprintf("cannot read OME-XML at %s", c.opts.XMLPath), err)
		}
		return data, nil
	}
	if text, ok := ini.String(OMEKey); ok {
		return []byte(text), nil
	}
	omePath := omeSibling(iniPath)
	data, err := os.ReadFile(omePath)
	if err != nil {
		return nil, services.Wrap(services.ErrMetadataMissing, "convert", "locate metadata",
			fmt.Sprintf("INI has no %s key and no OME sidecar at %s", OMEKey, omePath), err)
	}
	return data, nil
}

// timestampsFor derives per-frame timestamps from the notes file next to the
// raw recording. Timestamps are optional: any problem is logged and the
// dataset is simply omitted.
func (c *Converter) timestampsFor(logger *slog.Logger, rawPath string, ini *inifile.File, frames int) []float64 {
	if !c.opts.GenerateTimestamps {
		return nil
	}
	notesPath := withExt(rawPath, ".notes.txt")
	if _, err := os.Stat(notesPath); err != nil {
		logger.Warn("no notes file, skipping timestamps", logging.String("notes", notesPath))
		return nil
	}
	entries, err := ParseNotes(notesPath)
	if err != nil {
		logger.Warn("notes file unreadable, skipping timestamps", logging.Error(err))
		return nil
	}
	frameCount, ok := ini.Int(FrameCountKey)
	if !ok || frameCount <= 0 {
		logger.Warn("ini lacks a usable frame count, skipping timestamps",
			logging.String("key", FrameCountKey))
		return nil
	}
	timestamps, err := Timestamps(entries, filepath.Base(rawPath), int(frameCount), frames)
	if err != nil {
		logger.Warn("cannot derive timestamps from notes", logging.Error(err))
		return nil
	}
	return timestamps
}

func (c *Converter) checkFreeSpace(dir string, payloadBytes int64) error {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return services.Wrap(services.ErrContainerState, "convert", "preflight", "cannot stat output filesystem", err)
	}
	free := int64(stat.Bavail) * int64(stat.Bsize)
	need := payloadBytes + int64(c.cfg.Convert.MinFreeGiB)<<30
	if free < need {
		return services.Wrap(services.ErrContainerState, "convert", "preflight",
			fmt.Sprintf("not enough free space in %s: %d bytes free, %d required", dir, free, need), nil)
	}
	return nil
}

// withExt swaps the final extension of path for ext.
func withExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// omeSibling maps rec_XYT_001.ini to rec_OME_001.xml, following how the
// microscope names its sidecar pair.
func omeSibling(iniPath string) string {
	stem := strings.TrimSuffix(filepath.Base(iniPath), filepath.Ext(iniPath))
	return filepath.Join(filepath.Dir(iniPath), strings.ReplaceAll(stem, "XYT", "OME")+".xml")
}

