package domain

import (
	"encoding/json"
	"path"
)

// Zone is the physical storage area a media file currently lives in
type Zone string

const (
	ZoneBuffer  Zone = "buffer"
	ZoneLive    Zone = "live"
	ZoneTrash   Zone = "trash"
	ZoneForeign Zone = "foreign"
)

// Directory components of each zone in the public URL space. These are
// persisted inside bucket documents, so they never change with the
// physical media root.
const (
	LiveDir   = "images"
	BufferDir = "images/buffer"
	TrashDir  = "images/trash"
)

// MediaRef names a stored file plus the zone it lives in.
// It is persisted as its bare relative path.
type MediaRef struct {
	Path string
	Zone Zone
}

// NewMediaRef builds a ref for filename inside zone
func NewMediaRef(zone Zone, filename string) MediaRef {
	switch zone {
	case ZoneBuffer:
		return MediaRef{Path: path.Join(BufferDir, filename), Zone: zone}
	case ZoneTrash:
		return MediaRef{Path: path.Join(TrashDir, filename), Zone: zone}
	case ZoneLive:
		return MediaRef{Path: path.Join(LiveDir, filename), Zone: zone}
	}
	return MediaRef{Path: filename, Zone: ZoneForeign}
}

// ParseMediaRef tags a stored path with its zone by exact directory match
func ParseMediaRef(p string) MediaRef {
	switch path.Dir(p) {
	case BufferDir:
		return MediaRef{Path: p, Zone: ZoneBuffer}
	case TrashDir:
		return MediaRef{Path: p, Zone: ZoneTrash}
	case LiveDir:
		return MediaRef{Path: p, Zone: ZoneLive}
	}
	return MediaRef{Path: p, Zone: ZoneForeign}
}

// Filename returns the last path element
func (r MediaRef) Filename() string {
	return path.Base(r.Path)
}

// Ext returns the filename extension including the dot
func (r MediaRef) Ext() string {
	return path.Ext(r.Path)
}

func (r MediaRef) String() string {
	return r.Path
}

func (r MediaRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Path)
}

func (r *MediaRef) UnmarshalJSON(data []byte) error {
	var p string
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ParseMediaRef(p)
	return nil
}
