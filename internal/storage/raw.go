package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"silk-catalog/internal/domain"
	"silk-catalog/internal/media"

	"go.uber.org/zap"
)

// Rendition is the pair of live-zone images produced from one raw photo
type Rendition struct {
	Source    string          `json:"source"`
	HD        domain.MediaRef `json:"image_hd"`
	Thumbnail domain.MediaRef `json:"image_thumb"`
}

// RawImporter turns photos dropped into the raw staging folder into
// square-cropped HD and thumbnail renditions in the live zone.
type RawImporter struct {
	rawDir    string
	liveDir   string
	hd        media.Policy
	thumbnail media.Policy
	logger    *zap.Logger
}

// NewRawImporter creates the raw staging folder if needed
func NewRawImporter(rawDir, mediaRoot string, hd, thumbnail media.Policy, logger *zap.Logger) (*RawImporter, error) {
	for _, p := range []media.Policy{hd, thumbnail} {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	liveDir := filepath.Join(mediaRoot, filepath.FromSlash(domain.LiveDir))
	for _, dir := range []string{rawDir, liveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return &RawImporter{
		rawDir:    rawDir,
		liveDir:   liveDir,
		hd:        hd,
		thumbnail: thumbnail,
		logger:    logger,
	}, nil
}

// Pending lists raw photos that have no HD rendition yet
func (ri *RawImporter) Pending() ([]string, error) {
	entries, err := os.ReadDir(ri.rawDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw folder: %w", err)
	}

	var pending []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
		default:
			continue
		}
		if _, err := os.Stat(filepath.Join(ri.liveDir, ri.hdName(entry.Name()))); err == nil {
			continue
		}
		pending = append(pending, entry.Name())
	}

	sort.Strings(pending)
	return pending, nil
}

// ImportAll renders every pending photo. A photo that fails to decode is
// logged and skipped.
func (ri *RawImporter) ImportAll(ctx context.Context) ([]Rendition, error) {
	pending, err := ri.Pending()
	if err != nil {
		return nil, err
	}

	var out []Rendition
	for _, name := range pending {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		r, err := ri.Import(name)
		if err != nil {
			ri.logger.Warn("Skipping raw photo", zap.String("file", name), zap.Error(err))
			continue
		}
		out = append(out, r)
	}

	return out, nil
}

// Import renders a single raw photo
func (ri *RawImporter) Import(name string) (Rendition, error) {
	data, err := os.ReadFile(filepath.Join(ri.rawDir, filepath.Base(name)))
	if err != nil {
		return Rendition{}, fmt.Errorf("failed to read raw photo: %w", err)
	}

	hdName := ri.hdName(name)
	if err := ri.render(data, ri.hd, hdName); err != nil {
		return Rendition{}, err
	}

	thumbName := ri.baseName(name) + "_thumb" + ri.thumbnail.Ext()
	if err := ri.render(data, ri.thumbnail, thumbName); err != nil {
		return Rendition{}, err
	}

	ri.logger.Info("Imported raw photo",
		zap.String("file", name),
		zap.String("hd", hdName),
		zap.String("thumb", thumbName),
	)

	return Rendition{
		Source:    name,
		HD:        domain.NewMediaRef(domain.ZoneLive, hdName),
		Thumbnail: domain.NewMediaRef(domain.ZoneLive, thumbName),
	}, nil
}

func (ri *RawImporter) render(data []byte, policy media.Policy, filename string) error {
	out, err := media.Normalize(data, media.KindImage, 0, policy)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(ri.liveDir, filename), out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	return nil
}

func (ri *RawImporter) baseName(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (ri *RawImporter) hdName(name string) string {
	return ri.baseName(name) + "_hd" + ri.hd.Ext()
}
