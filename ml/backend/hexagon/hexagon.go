//go:build hexagon && cgo

// MODUL: hexagon
// ZWECK: DSP-Engine ueber die dynamisch geladene Modell-Library (_hexagon_model.so)
// INPUT: Modell-Library (Rolle compiled-library), optional Skeleton-Library (Rolle skeleton-library)
// OUTPUT: ml.Engine mit genau einem Eingang und einem Ausgang
// NEBENEFFEKTE: dlopen pro Modell, setzt ADSP_LIBRARY_PATH auf das Skeleton-Verzeichnis
// ABHAENGIGKEITEN: libdl
// HINWEISE: Ein- und Ausgabepuffer gehoeren der Runtime; Close() MUSS aufgerufen werden

package hexagon

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

#define HX_MAX_DIMS 8

typedef int (*hx_init_fn)(int*, uint8_t**, uint8_t**, int);
typedef int (*hx_exec_fn)(int, uint8_t*);
typedef void (*hx_close_fn)(int);
typedef int (*hx_log_fn)(int, unsigned char*, uint32_t);
typedef int (*hx_spec_fn)(int, char**, int*, int*, int*, int*);

typedef struct {
	void* lib;
	hx_init_fn init;
	hx_exec_fn exec;
	hx_close_fn close;
	hx_log_fn log;
	hx_spec_fn input_spec;
	hx_spec_fn output_spec;
} hx_lib;

static hx_lib* hx_open(const char* path, int* rc) {
	void* lib = dlopen(path, RTLD_NOW | RTLD_LOCAL);
	if (lib == NULL) {
		*rc = -1;
		return NULL;
	}

	hx_lib* l = (hx_lib*)calloc(1, sizeof(hx_lib));
	l->lib = lib;
	l->init = (hx_init_fn)dlsym(lib, "dlr_hexagon_model_init");
	l->exec = (hx_exec_fn)dlsym(lib, "dlr_hexagon_model_exec");
	l->close = (hx_close_fn)dlsym(lib, "dlr_hexagon_model_close");
	l->log = (hx_log_fn)dlsym(lib, "dlr_hexagon_nn_getlog");
	l->input_spec = (hx_spec_fn)dlsym(lib, "dlr_hexagon_input_spec");
	l->output_spec = (hx_spec_fn)dlsym(lib, "dlr_hexagon_output_spec");
	if (!l->init || !l->exec || !l->close || !l->log || !l->input_spec || !l->output_spec) {
		dlclose(lib);
		free(l);
		*rc = -2;
		return NULL;
	}
	*rc = 0;
	return l;
}

static const char* hx_dlerror(void) {
	const char* msg = dlerror();
	return msg ? msg : "unknown dlopen error";
}

static int hx_init(hx_lib* l, int* handle, uint8_t** in, uint8_t** out, int debug) {
	return l->init(handle, in, out, debug);
}

static int hx_exec(hx_lib* l, int handle, uint8_t* in) {
	return l->exec(handle, in);
}

static int hx_log(hx_lib* l, int handle, unsigned char* buf, uint32_t len) {
	return l->log(handle, buf, len);
}

static int hx_spec(hx_lib* l, int output, char** name, int* dim, int* shape, int* length, int* bytes) {
	hx_spec_fn fn = output ? l->output_spec : l->input_spec;
	return fn(0, name, dim, shape, length, bytes);
}

static void hx_free(hx_lib* l, int handle, int initialized) {
	if (initialized) {
		l->close(handle);
	}
	dlclose(l->lib);
	free(l);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"unsafe"

	"github.com/edgerun/edgerun/ml"
)

const logSize = 2048

// Available reports whether this build can load DSP models.
func Available() bool {
	return true
}

// envMu serializes ADSP_LIBRARY_PATH updates from concurrent loads.
var envMu sync.Mutex

// Model is a loaded DSP model. It has one input and one output whose
// buffers are allocated by the runtime at init.
type Model struct {
	mu     sync.Mutex
	lib    *C.hx_lib
	handle C.int

	in, out *C.uint8_t

	input, output ml.TensorDescriptor
	inSize        int
	outSize       int
}

// Load opens the model library at path. skeletonDir, when set, is exported
// as ADSP_LIBRARY_PATH so the DSP side finds its skeleton library.
func Load(path, skeletonDir string) (*Model, error) {
	if skeletonDir != "" {
		envMu.Lock()
		err := os.Setenv("ADSP_LIBRARY_PATH", skeletonDir)
		envMu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	var rc C.int
	lib := C.hx_open(cpath, &rc)
	switch rc {
	case 0:
	case -1:
		return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, path, C.GoString(C.hx_dlerror()))
	default:
		return nil, fmt.Errorf("%w: %s does not export the model API", ErrUnavailable, path)
	}

	m := &Model{lib: lib}
	input, inSize, err := m.spec(0)
	if err != nil {
		C.hx_free(lib, 0, 0)
		return nil, err
	}
	output, outSize, err := m.spec(1)
	if err != nil {
		C.hx_free(lib, 0, 0)
		return nil, err
	}

	if C.hx_init(lib, &m.handle, &m.in, &m.out, 0) != 0 {
		C.hx_free(lib, 0, 0)
		return nil, &Error{Op: "init", Err: errors.New("model init failed")}
	}

	m.input, m.inSize = input, inSize
	m.output, m.outSize = output, outSize
	return m, nil
}

func (m *Model) spec(output int) (ml.TensorDescriptor, int, error) {
	var name *C.char
	var dim, length, bytes C.int
	shape := make([]C.int, C.HX_MAX_DIMS)
	if C.hx_spec(m.lib, C.int(output), &name, &dim, &shape[0], &length, &bytes) != 0 {
		return ml.TensorDescriptor{}, 0, &Error{Op: "spec", Err: fmt.Errorf("tensor %d not described", output)}
	}
	if dim < 0 || int(dim) > len(shape) {
		return ml.TensorDescriptor{}, 0, &Error{Op: "spec", Err: fmt.Errorf("%w: rank %d", ml.ErrUnsupported, dim)}
	}

	d := ml.TensorDescriptor{Name: C.GoString(name), Shape: make(ml.Shape, int(dim))}
	for i := range d.Shape {
		d.Shape[i] = int64(shape[i])
	}
	switch bytes {
	case 1:
		d.Type = ml.DTypeU8
	case 4:
		d.Type = ml.DTypeF32
	default:
		return ml.TensorDescriptor{}, 0, &Error{Op: "spec", Err: fmt.Errorf("%w: %d byte elements", ml.ErrUnsupported, bytes)}
	}
	return d, int(length) * int(bytes), nil
}

func (m *Model) lastError(op string, rc C.int) error {
	buf := make([]byte, logSize)
	msg := fmt.Sprintf("status %d", int(rc))
	if C.hx_log(m.lib, m.handle, (*C.uchar)(unsafe.Pointer(&buf[0])), C.uint32_t(len(buf))) == 0 {
		if text := strings.TrimRight(string(buf), "\x00 \n"); text != "" {
			msg += ": " + text
		}
	}
	return &Error{Op: op, Err: errors.New(msg)}
}

func (m *Model) Inputs() []ml.TensorDescriptor {
	return []ml.TensorDescriptor{m.input}
}

func (m *Model) Outputs() []ml.TensorDescriptor {
	return []ml.TensorDescriptor{m.output}
}

// SetInput copies data into the runtime-owned input buffer.
func (m *Model) SetInput(index int, shape ml.Shape, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lib == nil {
		return ErrClosed
	}
	if index != 0 {
		return fmt.Errorf("%w: index %d", ml.ErrUnknownInput, index)
	}
	if len(data) != m.inSize {
		return fmt.Errorf("%w: input needs %d bytes, got %d", ml.ErrSizeMismatch, m.inSize, len(data))
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(m.in)), m.inSize), data)
	return nil
}

func (m *Model) Input(index int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lib == nil {
		return nil, ErrClosed
	}
	if index != 0 {
		return nil, fmt.Errorf("%w: index %d", ml.ErrUnknownInput, index)
	}
	return C.GoBytes(unsafe.Pointer(m.in), C.int(m.inSize)), nil
}

func (m *Model) Run() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lib == nil {
		return ErrClosed
	}
	if rc := C.hx_exec(m.lib, m.handle, m.in); rc != 0 {
		return m.lastError("exec", rc)
	}
	return nil
}

// Output returns the runtime-owned output buffer without copying.
func (m *Model) Output(index int) (ml.Shape, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lib == nil {
		return nil, nil, ErrClosed
	}
	if index != 0 {
		return nil, nil, fmt.Errorf("output index %d out of range", index)
	}
	return m.output.Shape.Clone(), unsafe.Slice((*byte)(unsafe.Pointer(m.out)), m.outSize), nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lib == nil {
		return nil
	}
	C.hx_free(m.lib, m.handle, 1)
	m.lib = nil
	m.in, m.out = nil, nil
	return nil
}
