// Package server - Modell- und Tensor-Handler
// Beinhaltet: Create/List/Show/Delete, SetInput, Run, Outputs, LastError
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/edgerun/edgerun/api"
	"github.com/edgerun/edgerun/fs/artifact"
	"github.com/edgerun/edgerun/fs/metadata"
	"github.com/edgerun/edgerun/ml"
	"github.com/edgerun/edgerun/model"
	"github.com/edgerun/edgerun/runner"
	"github.com/edgerun/edgerun/transform"
)

// maxInputBytes limits a single input upload.
const maxInputBytes = 1 << 30

// statusFor maps runtime errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, runner.ErrUnknownHandle), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, runner.ErrTooManyModels), errors.Is(err, runner.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, ml.ErrUnsupported), errors.Is(err, model.ErrNoEngine):
		return http.StatusNotImplemented
	case errors.Is(err, artifact.ErrNoModelFiles),
		errors.Is(err, artifact.ErrMissingRole),
		errors.Is(err, artifact.ErrAmbiguous),
		errors.Is(err, artifact.ErrManifest),
		errors.Is(err, metadata.ErrInvalid),
		errors.Is(err, ml.ErrUnknownInput),
		errors.Is(err, ml.ErrDimMismatch),
		errors.Is(err, ml.ErrShapeMismatch),
		errors.Is(err, ml.ErrTypeMismatch),
		errors.Is(err, ml.ErrSizeMismatch),
		errors.Is(err, ml.ErrTooManyColumns),
		errors.Is(err, model.ErrNoMetadata),
		errors.Is(err, model.ErrUnknownOutput),
		errors.Is(err, model.ErrStageCount),
		errors.Is(err, transform.ErrParse),
		errors.Is(err, transform.ErrColumns),
		errors.Is(err, runner.ErrPanic):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func tensors(ds []ml.TensorDescriptor) []api.Tensor {
	out := make([]api.Tensor, len(ds))
	for i, d := range ds {
		out[i] = api.Tensor{Name: d.Name, DType: d.Type.String(), Shape: d.Shape, Size: d.Size()}
	}
	return out
}

func modelResponse(info runner.Info) api.ModelResponse {
	return api.ModelResponse{
		ID:          string(info.Handle),
		Backend:     info.Backend.String(),
		Source:      info.Source,
		CreatedAt:   info.Created,
		Inputs:      tensors(info.Inputs),
		Outputs:     tensors(info.Outputs),
		Weights:     tensors(info.Weights),
		OutputNames: info.OutputNames,
	}
}

// CreateHandler verarbeitet POST /api/models
func (s *Server) CreateHandler(c *gin.Context) {
	var req api.CreateRequest
	if err := c.ShouldBindJSON(&req); errors.Is(err, io.EOF) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing request body"})
		return
	} else if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if (len(req.Paths) == 0) == (len(req.Elements) == 0) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "exactly one of paths or elements is required"})
		return
	}

	var h runner.Handle
	var err error
	if len(req.Paths) > 0 {
		h, err = s.rt.Create(c.Request.Context(), req.Paths, req.Device, req.DeviceID)
	} else {
		elems := make([]artifact.Location, len(req.Elements))
		for i, e := range req.Elements {
			role, err := artifact.ParseRole(e.Role)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("element %d: %v", i, err)})
				return
			}
			elems[i] = artifact.Location{Role: role, Name: e.Name, Data: e.Data}
		}
		h, err = s.rt.CreateFromElements(c.Request.Context(), elems, req.Device, req.DeviceID)
	}
	if err != nil {
		abort(c, err)
		return
	}
	s.metrics.SetModelsLoaded(s.rt.Len())

	backend, err := s.rt.BackendName(h)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, api.CreateResponse{ID: string(h), Backend: backend})
}

// ListHandler verarbeitet GET /api/models
func (s *Server) ListHandler(c *gin.Context) {
	infos := s.rt.List()
	models := make([]api.ModelResponse, len(infos))
	for i, info := range infos {
		models[i] = modelResponse(info)
	}
	c.JSON(http.StatusOK, api.ListResponse{Models: models})
}

// ShowHandler verarbeitet GET /api/models/:id
func (s *Server) ShowHandler(c *gin.Context) {
	info, err := s.rt.Describe(runner.Handle(c.Param("id")))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, modelResponse(info))
}

// DeleteHandler verarbeitet DELETE /api/models/:id
func (s *Server) DeleteHandler(c *gin.Context) {
	if err := s.rt.Delete(runner.Handle(c.Param("id"))); err != nil {
		abort(c, err)
		return
	}
	s.metrics.SetModelsLoaded(s.rt.Len())
	c.Status(http.StatusOK)
}

// SetInputHandler verarbeitet POST /api/models/:id/inputs/:name?shape=1,3
// Der Body enthaelt die Rohdaten (row-major) bzw. JSON fuer String-Eingaenge.
func (s *Server) SetInputHandler(c *gin.Context) {
	shape, err := ml.ParseShape(c.Query("shape"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid shape %q", c.Query("shape"))})
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxInputBytes))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}

	if err := s.rt.SetInput(runner.Handle(c.Param("id")), c.Param("name"), shape, data); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusOK)
}

// RunHandler verarbeitet POST /api/models/:id/run
func (s *Server) RunHandler(c *gin.Context) {
	h := runner.Handle(c.Param("id"))

	start := time.Now()
	if err := s.rt.Run(c.Request.Context(), h); err != nil {
		abort(c, err)
		return
	}
	elapsed := time.Since(start)

	info, err := s.rt.Describe(h)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, api.RunResponse{Duration: elapsed, Outputs: tensors(info.Outputs)})
}

// OutputHandler verarbeitet GET /api/models/:id/outputs/:index
// und liefert die Rohdaten mit Shape und Datentyp in den Headern.
func (s *Server) OutputHandler(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid output index %q", c.Param("index"))})
		return
	}

	d, data, err := s.rt.ReadOutput(runner.Handle(c.Param("id")), index)
	if err != nil {
		abort(c, err)
		return
	}

	c.Header(api.HeaderShape, api.FormatShape(d.Shape))
	c.Header(api.HeaderDType, d.Type.String())
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// OutputsHandler verarbeitet GET /api/models/:id/outputs
// und liefert alle Ausgaben dekodiert, in Ausgabe-Reihenfolge.
func (s *Server) OutputsHandler(c *gin.Context) {
	h := runner.Handle(c.Param("id"))
	info, err := s.rt.Describe(h)
	if err != nil {
		abort(c, err)
		return
	}

	outputs := orderedmap.New[string, api.Output](orderedmap.WithCapacity[string, api.Output](len(info.Outputs)))
	for i := range info.Outputs {
		d, data, err := s.rt.ReadOutput(h, i)
		if err != nil {
			abort(c, err)
			return
		}

		name := d.Name
		if _, dup := outputs.Get(name); name == "" || dup {
			name = fmt.Sprintf("output_%d", i)
		}
		outputs.Set(name, api.Output{DType: d.Type.String(), Shape: d.Shape, Values: decodeValues(d.Type, data)})
	}

	c.JSON(http.StatusOK, outputs)
}

// decodeValues turns raw tensor bytes into JSON-friendly values.
// Non-finite floats become null.
func decodeValues(t ml.DType, data []byte) any {
	switch t {
	case ml.DTypeF32:
		values := ml.BytesFloat32(data)
		out := make([]*float64, len(values))
		for i, v := range values {
			if f := float64(v); !math.IsNaN(f) && !math.IsInf(f, 0) {
				out[i] = &f
			}
		}
		return out
	case ml.DTypeString:
		if json.Valid(data) {
			return json.RawMessage(data)
		}
		return string(data)
	default:
		return base64.StdEncoding.EncodeToString(data)
	}
}

// LastErrorHandler verarbeitet GET /api/last-error
func (s *Server) LastErrorHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.LastErrorResponse{Error: s.rt.LastError()})
}
