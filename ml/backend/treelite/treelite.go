//go:build treelite && cgo

// MODUL: treelite
// ZWECK: Predictor der Tree-Engine ueber die dynamisch geladene Treelite-Runtime
// INPUT: Kompilierte Modell-Library (Rolle compiled-library), CSR-Batches
// OUTPUT: Scores (Zeilen x Output-Gruppen) als float32
// NEBENEFFEKTE: dlopen der Runtime beim ersten Laden, native Handles pro Predictor
// ABHAENGIGKEITEN: libdl, envconfig (EDGERUN_TREELITE_LIBRARY)
// HINWEISE: Nur float32-Blattwerte werden unterstuetzt; Close() MUSS aufgerufen werden

package treelite

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>

typedef void* tl_handle;

typedef int (*tl_predictor_load_fn)(const char*, int, tl_handle*);
typedef int (*tl_predictor_free_fn)(tl_handle);
typedef int (*tl_query_size_fn)(tl_handle, size_t*);
typedef int (*tl_query_string_fn)(tl_handle, const char**);
typedef int (*tl_dmatrix_csr_fn)(const void*, const char*, const uint32_t*, const size_t*, size_t, size_t, tl_handle*);
typedef int (*tl_dmatrix_free_fn)(tl_handle);
typedef int (*tl_predict_fn)(tl_handle, tl_handle, int, int, void*, size_t*);
typedef const char* (*tl_last_error_fn)(void);

static void* tl_lib;
static tl_predictor_load_fn tl_predictor_load;
static tl_predictor_free_fn tl_predictor_free;
static tl_query_size_fn tl_num_feature;
static tl_query_size_fn tl_num_class;
static tl_query_string_fn tl_leaf_type;
static tl_dmatrix_csr_fn tl_dmatrix_csr;
static tl_dmatrix_free_fn tl_dmatrix_free;
static tl_predict_fn tl_predict;
static tl_last_error_fn tl_last_error;

static int tl_open(const char* path) {
	tl_lib = dlopen(path, RTLD_NOW | RTLD_LOCAL);
	if (tl_lib == NULL) {
		return -1;
	}
	tl_predictor_load = (tl_predictor_load_fn)dlsym(tl_lib, "TreelitePredictorLoad");
	tl_predictor_free = (tl_predictor_free_fn)dlsym(tl_lib, "TreelitePredictorFree");
	tl_num_feature = (tl_query_size_fn)dlsym(tl_lib, "TreelitePredictorQueryNumFeature");
	tl_num_class = (tl_query_size_fn)dlsym(tl_lib, "TreelitePredictorQueryNumClass");
	tl_leaf_type = (tl_query_string_fn)dlsym(tl_lib, "TreelitePredictorQueryLeafOutputType");
	tl_dmatrix_csr = (tl_dmatrix_csr_fn)dlsym(tl_lib, "TreeliteDMatrixCreateFromCSR");
	tl_dmatrix_free = (tl_dmatrix_free_fn)dlsym(tl_lib, "TreeliteDMatrixFree");
	tl_predict = (tl_predict_fn)dlsym(tl_lib, "TreelitePredictorPredictBatch");
	tl_last_error = (tl_last_error_fn)dlsym(tl_lib, "TreeliteGetLastError");
	if (!tl_predictor_load || !tl_predictor_free || !tl_num_feature || !tl_num_class ||
		!tl_leaf_type || !tl_dmatrix_csr || !tl_dmatrix_free || !tl_predict || !tl_last_error) {
		return -2;
	}
	return 0;
}

static const char* tl_dlerror(void) {
	const char* msg = dlerror();
	return msg ? msg : "unknown dlopen error";
}

static const char* tl_error(void) {
	return tl_last_error();
}

static int tl_load(const char* path, int nthread, tl_handle* out) {
	return tl_predictor_load(path, nthread, out);
}

static int tl_free(tl_handle h) {
	return tl_predictor_free(h);
}

static int tl_query(tl_handle h, size_t* num_feature, size_t* num_class, const char** leaf_type) {
	if (tl_num_feature(h, num_feature) != 0) return -1;
	if (tl_num_class(h, num_class) != 0) return -1;
	return tl_leaf_type(h, leaf_type);
}

static int tl_predict_csr(tl_handle h, const float* data, const uint32_t* col_ind, const size_t* row_ptr,
		size_t num_row, size_t num_col, float* out, size_t* out_size) {
	tl_handle dmat;
	int rc = tl_dmatrix_csr(data, "float32", col_ind, row_ptr, num_row, num_col, &dmat);
	if (rc != 0) {
		return rc;
	}
	rc = tl_predict(h, dmat, 0, 0, out, out_size);
	tl_dmatrix_free(dmat);
	return rc;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/edgerun/edgerun/envconfig"
	"github.com/edgerun/edgerun/ml"
)

var (
	openOnce sync.Once
	openErr  error
)

// defaultLibrary is the runtime soname searched when EDGERUN_TREELITE_LIBRARY
// is unset.
func defaultLibrary() string {
	switch runtime.GOOS {
	case "darwin":
		return "libtreelite_runtime.dylib"
	default:
		return "libtreelite_runtime.so"
	}
}

// Available reports whether the predictor runtime could be loaded.
func Available() bool {
	return openRuntime() == nil
}

func openRuntime() error {
	openOnce.Do(func() {
		path := envconfig.TreeliteLibrary()
		if path == "" {
			path = defaultLibrary()
		}

		cpath := C.CString(path)
		defer C.free(unsafe.Pointer(cpath))

		switch C.tl_open(cpath) {
		case 0:
		case -1:
			openErr = fmt.Errorf("%w: %s: %s", ErrUnavailable, path, C.GoString(C.tl_dlerror()))
		default:
			openErr = fmt.Errorf("%w: %s does not export the predictor API", ErrUnavailable, path)
		}
	})
	return openErr
}

func lastError(op string) error {
	return &Error{Op: op, Err: errors.New(C.GoString(C.tl_error()))}
}

// Predictor is a loaded compiled tree model.
type Predictor struct {
	mu      sync.Mutex
	path    string
	threads int
	handle  C.tl_handle

	numFeature int
	numClass   int
}

// Load loads the compiled model library at path using threads worker
// threads. threads <= 0 lets the runtime decide.
func Load(path string, threads int) (*Predictor, error) {
	if err := openRuntime(); err != nil {
		return nil, err
	}

	p := &Predictor{path: path}
	if err := p.load(threads); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Predictor) load(threads int) error {
	cpath := C.CString(p.path)
	defer C.free(unsafe.Pointer(cpath))

	var h C.tl_handle
	if C.tl_load(cpath, C.int(threads), &h) != 0 {
		return lastError("load")
	}

	var numFeature, numClass C.size_t
	var leafType *C.char
	if C.tl_query(h, &numFeature, &numClass, &leafType) != 0 {
		err := lastError("query")
		C.tl_free(h)
		return err
	}
	if lt := C.GoString(leafType); lt != "float32" {
		C.tl_free(h)
		return &Error{Op: "load", Err: fmt.Errorf("%w: leaf output type %s", ml.ErrUnsupported, lt)}
	}

	p.handle = h
	p.threads = threads
	p.numFeature = int(numFeature)
	p.numClass = int(numClass)
	return nil
}

func (p *Predictor) NumFeature() int {
	return p.numFeature
}

func (p *Predictor) NumOutputGroup() int {
	return p.numClass
}

// Predict scores batch into out. The batch is copied into C memory for the
// duration of the call.
func (p *Predictor) Predict(batch *ml.CSRBatch, out []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return ErrClosed
	}
	if len(out) != batch.NumRow*p.numClass {
		return fmt.Errorf("%w: output has %d values, want %d", ml.ErrSizeMismatch, len(out), batch.NumRow*p.numClass)
	}
	if batch.NumRow == 0 {
		return nil
	}

	nnz := len(batch.Data)
	data := (*C.float)(cmalloc(max(nnz, 1) * int(C.sizeof_float)))
	defer C.free(unsafe.Pointer(data))
	colInd := (*C.uint32_t)(cmalloc(max(nnz, 1) * int(C.sizeof_uint32_t)))
	defer C.free(unsafe.Pointer(colInd))
	rowPtr := (*C.size_t)(cmalloc(len(batch.RowPtr) * int(C.sizeof_size_t)))
	defer C.free(unsafe.Pointer(rowPtr))
	result := (*C.float)(cmalloc(len(out) * int(C.sizeof_float)))
	defer C.free(unsafe.Pointer(result))

	copy(unsafe.Slice((*float32)(unsafe.Pointer(data)), nnz), batch.Data)
	copy(unsafe.Slice((*uint32)(unsafe.Pointer(colInd)), nnz), batch.ColInd)
	rows := unsafe.Slice((*C.size_t)(rowPtr), len(batch.RowPtr))
	for i, v := range batch.RowPtr {
		rows[i] = C.size_t(v)
	}

	var size C.size_t
	if C.tl_predict_csr(p.handle, data, colInd, rowPtr, C.size_t(batch.NumRow), C.size_t(batch.NumCol), result, &size) != 0 {
		return lastError("predict")
	}
	if int(size) != len(out) {
		return &Error{Op: "predict", Err: fmt.Errorf("%w: runtime wrote %d values, want %d", ml.ErrSizeMismatch, size, len(out))}
	}

	copy(out, unsafe.Slice((*float32)(unsafe.Pointer(result)), len(out)))
	return nil
}

// SetThreadCount reloads the model with n worker threads. The runtime fixes
// its pool at load time.
func (p *Predictor) SetThreadCount(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return ErrClosed
	}
	if n == p.threads {
		return nil
	}

	old := p.handle
	if err := p.load(n); err != nil {
		return err
	}
	C.tl_free(old)
	return nil
}

func (p *Predictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return nil
	}
	rc := C.tl_free(p.handle)
	p.handle = nil
	if rc != 0 {
		return lastError("close")
	}
	return nil
}

func cmalloc(n int) unsafe.Pointer {
	return C.malloc(C.size_t(n))
}
