package alloc

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls map[string]int
}

func (r *recorder) funcs() Funcs {
	r.calls = make(map[string]int)
	return Funcs{
		Malloc: func(size int) []byte {
			r.calls["malloc"]++
			return make([]byte, size)
		},
		Realloc: func(buf []byte, size int) []byte {
			r.calls["realloc"]++
			out := make([]byte, size)
			copy(out, buf)
			return out
		},
		Free: func([]byte) {
			r.calls["free"]++
		},
		AlignedAlloc: func(alignment, size int) []byte {
			r.calls["aligned"]++
			return make([]byte, size)
		},
	}
}

func TestPartialRegistrationKeepsDefaults(t *testing.T) {
	a := New()
	var r recorder
	f := r.funcs()

	require.NoError(t, a.SetMalloc(f.Malloc))
	require.NoError(t, a.SetFree(f.Free))

	assert.False(t, a.AllSet())
	assert.True(t, a.AnySet())
	assert.Equal(t, StatePartial, a.State())

	buf := a.Malloc(16)
	assert.Len(t, buf, 16)
	buf = a.Realloc(buf, 32)
	assert.Len(t, buf, 32)
	a.Free(buf)
	_, err := a.AlignedAlloc(8, 16)
	require.NoError(t, err)
	assert.Empty(t, r.calls, "partial registration must not route allocations")

	require.NoError(t, a.SetRealloc(f.Realloc))
	require.NoError(t, a.SetAlignedAlloc(f.AlignedAlloc))
	require.True(t, a.AllSet())
	a.Malloc(16)
	assert.Equal(t, 1, r.calls["malloc"], "the fourth primitive switches routing on")
}

func TestRegisterRejectsPartialSet(t *testing.T) {
	a := New()
	var r recorder
	f := r.funcs()
	f.AlignedAlloc = nil

	assert.ErrorIs(t, a.Register(f), ErrPartial)
	assert.Equal(t, StateNone, a.State())
}

func TestRegisteredFuncsAreUsed(t *testing.T) {
	a := New()
	var r recorder
	require.NoError(t, a.Register(r.funcs()))
	require.True(t, a.AllSet())

	buf := a.Malloc(8)
	buf = a.Realloc(buf, 32)
	assert.Len(t, buf, 32)
	a.Free(buf)
	_, err := a.AlignedAlloc(64, 128)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"malloc": 1, "realloc": 1, "free": 1, "aligned": 1}, r.calls)
}

func TestDefaultAlignedAlloc(t *testing.T) {
	a := New()
	for _, alignment := range []int{1, 8, 64, 4096} {
		buf, err := a.AlignedAlloc(alignment, 100)
		require.NoError(t, err)
		assert.Len(t, buf, 100)
		addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
		assert.Zero(t, addr%uintptr(alignment), "alignment %d", alignment)
	}

	_, err := a.AlignedAlloc(3, 10)
	assert.ErrorIs(t, err, ErrAlignment)
}

func TestMutationWhileAcquired(t *testing.T) {
	a := New()
	var r recorder
	require.NoError(t, a.Register(r.funcs()))
	a.Acquire()

	err := a.Reset()
	assert.True(t, errors.Is(err, ErrInUse))
	assert.True(t, a.AllSet())

	a.Release()
	require.NoError(t, a.Reset())
	assert.Equal(t, StateNone, a.State())
}

func TestAcquirePartialBlocksMutation(t *testing.T) {
	a := New()
	require.NoError(t, a.SetRealloc(func(buf []byte, size int) []byte { return buf }))
	a.Acquire()
	assert.ErrorIs(t, a.SetFree(func([]byte) {}), ErrInUse)
	assert.Equal(t, StatePartial, a.State())
}

func TestNilAllocator(t *testing.T) {
	var a *Allocator
	assert.Equal(t, StateNone, a.State())
	a.Acquire()
	a.Release()

	assert.Len(t, a.Malloc(4), 4)
}
