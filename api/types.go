// types.go - API-Typen fuer Modelle, Tensoren und Ausgaben
// Enthaelt: StatusError, Tensor, Element, Create/Model/List/Run/Output Typen
package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Response headers describing raw tensor bodies.
const (
	HeaderShape = "X-Edgerun-Shape"
	HeaderDType = "X-Edgerun-Dtype"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the edgerun server logs for details"
	}
}

// Tensor beschreibt einen Ein- oder Ausgabe-Tensor
type Tensor struct {
	Name  string  `json:"name"`
	DType string  `json:"dtype"`
	Shape []int64 `json:"shape"`

	// Size is the byte size, or -1 while the shape has unknown dimensions.
	Size int64 `json:"size"`
}

// Element is an artifact file passed by content. Role uses the labels
// of the resolver (graph-descriptor, weights, compiled-library, ...).
type Element struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
	Data []byte `json:"data"`
}

// CreateRequest loads a model either from server-side paths or from
// elements sent by content.
type CreateRequest struct {
	Paths    []string  `json:"paths,omitempty"`
	Elements []Element `json:"elements,omitempty"`
	Device   string    `json:"device,omitempty"`
	DeviceID int       `json:"device_id,omitempty"`
}

// CreateResponse ist die Antwort auf eine Create-Anfrage
type CreateResponse struct {
	ID      string `json:"id"`
	Backend string `json:"backend"`
}

// ModelResponse beschreibt ein geladenes Modell
type ModelResponse struct {
	ID          string    `json:"id"`
	Backend     string    `json:"backend"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	Inputs      []Tensor  `json:"inputs"`
	Outputs     []Tensor  `json:"outputs"`
	Weights     []Tensor  `json:"weights,omitempty"`
	OutputNames bool      `json:"output_names"`
}

// ListResponse ist die Antwort auf eine List-Anfrage
type ListResponse struct {
	Models []ModelResponse `json:"models"`
}

// RunResponse ist die Antwort auf eine Run-Anfrage
type RunResponse struct {
	Duration time.Duration `json:"duration"`
	Outputs  []Tensor      `json:"outputs"`
}

// Output is a decoded output tensor. Values holds float numbers for
// numeric tensors, the decoded JSON for string tensors and base64 text
// for anything else.
type Output struct {
	DType  string  `json:"dtype"`
	Shape  []int64 `json:"shape"`
	Values any     `json:"values"`
}

// OutputsResponse maps output names to values in output order.
type OutputsResponse = orderedmap.OrderedMap[string, Output]

// LastErrorResponse ist die Antwort auf /api/last-error
type LastErrorResponse struct {
	Error string `json:"error"`
}

// FormatShape renders a shape as a comma separated list ("-1,3").
func FormatShape(shape []int64) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return strings.Join(parts, ",")
}
