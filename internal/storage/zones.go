package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"silk-catalog/internal/domain"
	"silk-catalog/internal/media"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MediaStore moves media files between the buffer, live and trash zones
type MediaStore interface {
	Stage(ctx context.Context, data []byte, filename string, kind media.Kind, rotation int) (domain.MediaRef, error)
	Finalize(ref domain.MediaRef, baseName string) (domain.MediaRef, error)
	Trash(ref domain.MediaRef) (domain.MediaRef, error)
	Untrash(ref domain.MediaRef) (domain.MediaRef, error)
	Purge(ref domain.MediaRef) error
	ClearBuffer() (int, error)
	Exists(ref domain.MediaRef) bool
}

type fileMediaStore struct {
	root   string
	policy media.Policy
	logger *zap.Logger
	now    func() time.Time
}

// NewMediaStore creates the zone directories below root if needed.
// Staged images are normalized with policy.
func NewMediaStore(root string, policy media.Policy, logger *zap.Logger) (MediaStore, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	s := &fileMediaStore{
		root:   root,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}

	for _, zone := range []domain.Zone{domain.ZoneLive, domain.ZoneBuffer, domain.ZoneTrash} {
		if err := os.MkdirAll(s.zoneDir(zone), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s zone: %w", zone, err)
		}
	}

	return s, nil
}

func (s *fileMediaStore) zoneDir(zone domain.Zone) string {
	switch zone {
	case domain.ZoneBuffer:
		return filepath.Join(s.root, filepath.FromSlash(domain.BufferDir))
	case domain.ZoneTrash:
		return filepath.Join(s.root, filepath.FromSlash(domain.TrashDir))
	default:
		return filepath.Join(s.root, filepath.FromSlash(domain.LiveDir))
	}
}

func (s *fileMediaStore) locate(zone domain.Zone, filename string) string {
	return filepath.Join(s.zoneDir(zone), filename)
}

// Stage normalizes an upload and writes it into the buffer under a fresh
// temporary name. Video is stored verbatim with its own extension.
func (s *fileMediaStore) Stage(ctx context.Context, data []byte, filename string, kind media.Kind, rotation int) (domain.MediaRef, error) {
	if err := ctx.Err(); err != nil {
		return domain.MediaRef{}, err
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if kind == media.KindVideo {
		if ext == "" {
			ext = ".mp4"
		}
	} else {
		normalized, err := media.Normalize(data, kind, rotation, s.policy)
		if err != nil {
			return domain.MediaRef{}, err
		}
		data = normalized
		ext = s.policy.Ext()
	}

	tempName := fmt.Sprintf("temp_%d_%s%s", s.now().Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:6], ext)
	if err := os.WriteFile(s.locate(domain.ZoneBuffer, tempName), data, 0o644); err != nil {
		return domain.MediaRef{}, fmt.Errorf("failed to write buffer file: %w", err)
	}

	s.logger.Debug("Staged upload",
		zap.String("file", tempName),
		zap.String("kind", string(kind)),
		zap.Int("bytes", len(data)),
	)

	return domain.NewMediaRef(domain.ZoneBuffer, tempName), nil
}

// Finalize promotes a buffer file to baseName+ext in the live zone,
// replacing any file of that name. Refs outside the buffer are returned as is.
func (s *fileMediaStore) Finalize(ref domain.MediaRef, baseName string) (domain.MediaRef, error) {
	if ref.Zone != domain.ZoneBuffer {
		return ref, nil
	}

	target := baseName + ref.Ext()
	return s.move(ref, domain.ZoneLive, target)
}

// Trash moves a buffer or live file into the trash keeping its filename
func (s *fileMediaStore) Trash(ref domain.MediaRef) (domain.MediaRef, error) {
	if ref.Zone != domain.ZoneBuffer && ref.Zone != domain.ZoneLive {
		return ref, nil
	}
	return s.move(ref, domain.ZoneTrash, ref.Filename())
}

// Untrash moves a trashed file back into the live zone
func (s *fileMediaStore) Untrash(ref domain.MediaRef) (domain.MediaRef, error) {
	if ref.Zone != domain.ZoneTrash {
		return ref, nil
	}
	return s.move(ref, domain.ZoneLive, ref.Filename())
}

// move renames ref into zone as filename. A missing source is not an error:
// if the target already exists the earlier move completed and the new ref
// is returned, otherwise ref passes through unchanged.
func (s *fileMediaStore) move(ref domain.MediaRef, zone domain.Zone, filename string) (domain.MediaRef, error) {
	src := s.locate(ref.Zone, ref.Filename())
	dst := s.locate(zone, filename)
	moved := domain.NewMediaRef(zone, filename)

	if _, err := os.Stat(src); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return ref, fmt.Errorf("failed to stat %s: %w", ref.Path, err)
		}
		if _, err := os.Stat(dst); err == nil {
			return moved, nil
		}
		s.logger.Warn("Media file missing, keeping reference",
			zap.String("ref", ref.Path),
			zap.String("zone", string(zone)),
		)
		return ref, nil
	}

	if src == dst {
		return moved, nil
	}

	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ref, fmt.Errorf("failed to replace %s: %w", moved.Path, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return ref, fmt.Errorf("failed to move %s to %s: %w", ref.Path, moved.Path, err)
	}

	s.logger.Debug("Moved media",
		zap.String("from", ref.Path),
		zap.String("to", moved.Path),
	)

	return moved, nil
}

// Purge deletes the file behind ref. Missing files are ignored.
func (s *fileMediaStore) Purge(ref domain.MediaRef) error {
	if ref.Zone == domain.ZoneForeign {
		return nil
	}

	if err := os.Remove(s.locate(ref.Zone, ref.Filename())); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to purge %s: %w", ref.Path, err)
	}
	return nil
}

// ClearBuffer removes every file in the buffer zone and returns the count
func (s *fileMediaStore) ClearBuffer() (int, error) {
	entries, err := os.ReadDir(s.zoneDir(domain.ZoneBuffer))
	if err != nil {
		return 0, fmt.Errorf("failed to list buffer: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(s.locate(domain.ZoneBuffer, entry.Name())); err != nil {
			s.logger.Warn("Failed to remove buffer file", zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		removed++
	}

	return removed, nil
}

// Exists reports whether the file behind ref is present
func (s *fileMediaStore) Exists(ref domain.MediaRef) bool {
	if ref.Zone == domain.ZoneForeign {
		return false
	}
	_, err := os.Stat(s.locate(ref.Zone, ref.Filename()))
	return err == nil
}
