package types

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// EntryKind classifies a filesystem node.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
	KindSymlink   EntryKind = "symlink"
	KindOther     EntryKind = "other"
)

// KindOf maps a file mode to its EntryKind without following symlinks.
func KindOf(mode fs.FileMode) EntryKind {
	switch {
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	case mode.IsDir():
		return KindDirectory
	case mode.IsRegular():
		return KindFile
	default:
		return KindOther
	}
}

// Entry is one filesystem node seen during a pass.
type Entry struct {
	Path     string      `json:"path"`
	Segments []string    `json:"segments"` // relative to the root, root itself has none
	Name     string      `json:"name"`
	Mode     fs.FileMode `json:"mode"`
	Kind     EntryKind   `json:"kind"`
}

// NewEntry builds an Entry for path below root.
func NewEntry(root, path string, info fs.FileInfo) Entry {
	var segments []string
	if rel, err := filepath.Rel(root, path); err == nil && rel != "." {
		segments = strings.Split(rel, string(filepath.Separator))
	}
	return Entry{
		Path:     path,
		Segments: segments,
		Name:     info.Name(),
		Mode:     info.Mode(),
		Kind:     KindOf(info.Mode()),
	}
}

// IsDir reports whether the entry is a directory
func (e Entry) IsDir() bool { return e.Kind == KindDirectory }

// PermChange records a permission normalisation.
type PermChange struct {
	Old fs.FileMode `json:"old"`
	New fs.FileMode `json:"new"`
}

// MarshalJSON renders modes as octal strings.
func (p PermChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Old string `json:"old"`
		New string `json:"new"`
	}{Old: octal(p.Old), New: octal(p.New)})
}

func octal(m fs.FileMode) string {
	return fmt.Sprintf("%04o", uint32(m.Perm()))
}

// EventType defines the kinds of events a pass emits
type EventType string

const (
	EventRenamed     EventType = "renamed"
	EventPermChanged EventType = "perm_changed"
	EventUnlocked    EventType = "unlocked"
	EventExcluded    EventType = "excluded"
	EventFailed      EventType = "failed"
)

// Event represents a remediation action with metadata
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Path      string    `json:"path"`
	Target    string    `json:"target,omitempty"`
	Error     string    `json:"error,omitempty"`
}
