// MODUL: alloc
// ZWECK: Optionale Ueberschreibung der Allokations-Primitive der numerischen Engine
// INPUT: Vier Funktionen (malloc, realloc, free, aligned alloc)
// OUTPUT: Allocator, der an Engines mit AllocatorUser-Erweiterungspunkt gereicht wird
// NEBENEFFEKTE: Keine (expliziter Konfigurations-Objekt statt globaler Statics)
// ABHAENGIGKEITEN: sync, unsafe (stdlib)
// HINWEISE: Alles-oder-nichts: nur mit allen vier Funktionen wird umgeleitet, sonst Go-Defaults.
//           Aenderungen sind gesperrt, solange Modelle den Allocator halten

// Package alloc holds the allocator override handed to numeric-tensor engines.
package alloc

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

var (
	// ErrPartial is returned by Register when some but not all primitives are given.
	ErrPartial = errors.New("alloc: allocator override is partially registered")

	// ErrInUse is returned when the override is mutated while models hold it.
	ErrInUse = errors.New("alloc: allocator override is in use by loaded models")

	ErrAlignment = errors.New("alloc: alignment must be a positive power of two")
)

// Funcs is the quadruple of allocation primitives.
type Funcs struct {
	Malloc       func(size int) []byte
	Realloc      func(buf []byte, size int) []byte
	Free         func(buf []byte)
	AlignedAlloc func(alignment, size int) []byte
}

func (f Funcs) count() int {
	n := 0
	if f.Malloc != nil {
		n++
	}
	if f.Realloc != nil {
		n++
	}
	if f.Free != nil {
		n++
	}
	if f.AlignedAlloc != nil {
		n++
	}
	return n
}

// State reports how many primitives are registered.
type State int

const (
	StateNone State = iota
	StatePartial
	StateAll
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StatePartial:
		return "partial"
	case StateAll:
		return "all"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Allocator routes engine allocations through registered primitives once
// all four are set. Until then, and for the zero value or a nil *Allocator,
// the Go runtime allocates.
type Allocator struct {
	mu    sync.RWMutex
	funcs Funcs
	users int
}

func New() *Allocator {
	return &Allocator{}
}

// Register installs all four primitives at once. Partial sets are rejected
// and leave the current registration untouched.
func (a *Allocator) Register(f Funcs) error {
	if f.count() != 4 {
		return ErrPartial
	}
	return a.update(func(cur *Funcs) { *cur = f })
}

func (a *Allocator) SetMalloc(fn func(size int) []byte) error {
	return a.update(func(cur *Funcs) { cur.Malloc = fn })
}

func (a *Allocator) SetRealloc(fn func(buf []byte, size int) []byte) error {
	return a.update(func(cur *Funcs) { cur.Realloc = fn })
}

func (a *Allocator) SetFree(fn func(buf []byte)) error {
	return a.update(func(cur *Funcs) { cur.Free = fn })
}

func (a *Allocator) SetAlignedAlloc(fn func(alignment, size int) []byte) error {
	return a.update(func(cur *Funcs) { cur.AlignedAlloc = fn })
}

// Reset unregisters every primitive, restoring default behaviour.
func (a *Allocator) Reset() error {
	return a.update(func(cur *Funcs) { *cur = Funcs{} })
}

func (a *Allocator) update(fn func(*Funcs)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.users > 0 {
		return ErrInUse
	}
	fn(&a.funcs)
	return nil
}

func (a *Allocator) State() State {
	if a == nil {
		return StateNone
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	switch a.funcs.count() {
	case 0:
		return StateNone
	case 4:
		return StateAll
	default:
		return StatePartial
	}
}

func (a *Allocator) AllSet() bool {
	return a.State() == StateAll
}

func (a *Allocator) AnySet() bool {
	return a.State() != StateNone
}

// Acquire pins the current registration for the lifetime of a model.
func (a *Allocator) Acquire() {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.users++
}

func (a *Allocator) Release() {
	if a == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.users > 0 {
		a.users--
	}
}

// snapshot returns the registered funcs, or ok=false when defaults apply.
func (a *Allocator) snapshot() (Funcs, bool) {
	if a == nil {
		return Funcs{}, false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.funcs.count() != 4 {
		return Funcs{}, false
	}
	return a.funcs, true
}

func (a *Allocator) Malloc(size int) []byte {
	if f, ok := a.snapshot(); ok {
		return f.Malloc(size)
	}
	return make([]byte, size)
}

func (a *Allocator) Realloc(buf []byte, size int) []byte {
	if f, ok := a.snapshot(); ok {
		return f.Realloc(buf, size)
	}

	if size <= cap(buf) {
		return buf[:size]
	}
	grown := make([]byte, size)
	copy(grown, buf)
	return grown
}

// Free is a no-op under the Go defaults.
func (a *Allocator) Free(buf []byte) {
	if f, ok := a.snapshot(); ok {
		f.Free(buf)
	}
}

func (a *Allocator) AlignedAlloc(alignment, size int) ([]byte, error) {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, ErrAlignment
	}

	if f, ok := a.snapshot(); ok {
		return f.AlignedAlloc(alignment, size), nil
	}

	buf := make([]byte, size+alignment)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	off := int((uintptr(alignment) - addr%uintptr(alignment)) % uintptr(alignment))
	return buf[off : off+size : off+size], nil
}
