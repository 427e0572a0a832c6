// MODUL: artifact/location
// ZWECK: Rollen und Fundorte der Dateien eines kompilierten Modells
// INPUT: Dateipfade oder benannte Speicher-Buffer
// OUTPUT: Location, Blob (gemappte oder geladene Bytes)
// NEBENEFFEKTE: Read-only mmap von Dateien (unix)
// ABHAENGIGKEITEN: golang.org/x/sys/unix (mmap_unix.go)
// HINWEISE: Ein Blob muss geschlossen werden, sobald die Engine die Bytes nicht mehr braucht

package artifact

import (
	"fmt"
	"os"
	"path/filepath"
)

// Role is the part an artifact file plays for its engine.
type Role int

const (
	RoleGraph Role = iota
	RoleWeights
	RoleLibrary
	RoleMetadata
	RoleRelayExec
	RoleSkeleton
	RoleModelFile
	RoleVersion
)

// Roles lists every role in declaration order.
func Roles() []Role {
	return []Role{RoleGraph, RoleWeights, RoleLibrary, RoleMetadata, RoleRelayExec, RoleSkeleton, RoleModelFile, RoleVersion}
}

func (r Role) String() string {
	switch r {
	case RoleGraph:
		return "graph-descriptor"
	case RoleWeights:
		return "weights"
	case RoleLibrary:
		return "compiled-library"
	case RoleMetadata:
		return "metadata"
	case RoleRelayExec:
		return "relay-executable"
	case RoleSkeleton:
		return "skeleton-library"
	case RoleModelFile:
		return "model-file"
	case RoleVersion:
		return "version"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles() {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown artifact role %q", s)
}

// Location is either a path on disk or a named in-memory buffer.
type Location struct {
	Role Role
	Path string

	Name string
	Data []byte
}

func (l Location) InMemory() bool {
	return l.Path == ""
}

// Label is the file name used for classification and messages.
func (l Location) Label() string {
	if l.Path != "" {
		return filepath.Base(l.Path)
	}
	return l.Name
}

// Load returns the location's bytes. Files are memory-mapped where the
// platform allows it.
func (l Location) Load() (*Blob, error) {
	if l.InMemory() {
		return &Blob{data: l.Data}, nil
	}

	f, err := os.Open(l.Path)
	if err != nil {
		return nil, &ResolveError{Op: "load", Path: l.Path, Err: err}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, &ResolveError{Op: "load", Path: l.Path, Err: err}
	}
	if fi.Size() == 0 {
		return &Blob{}, nil
	}

	data, err := mmapFile(f, fi.Size())
	if err != nil {
		return nil, &ResolveError{Op: "load", Path: l.Path, Err: err}
	}
	return &Blob{data: data, unmap: munmapFile}, nil
}

// ReadAll returns a private copy of the location's bytes.
func (l Location) ReadAll() ([]byte, error) {
	if l.InMemory() {
		return append([]byte(nil), l.Data...), nil
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, &ResolveError{Op: "read", Path: l.Path, Err: err}
	}
	return data, nil
}

// Blob holds loaded artifact bytes.
type Blob struct {
	data  []byte
	unmap func([]byte) error
}

func (b *Blob) Bytes() []byte {
	return b.data
}

// Close releases the mapping. The bytes must not be used afterwards.
func (b *Blob) Close() error {
	if b == nil || b.unmap == nil {
		return nil
	}
	data, unmap := b.data, b.unmap
	b.data, b.unmap = nil, nil
	return unmap(data)
}
