// Package api - API-Methoden des Clients.
// Dieses Modul enthaelt alle Modell- und Tensor-Methoden.

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/edgerun/edgerun/ml"
)

// Create loads a model on the server.
func (c *Client) Create(ctx context.Context, req *CreateRequest) (*CreateResponse, error) {
	var resp CreateResponse
	if err := c.do(ctx, http.MethodPost, "/api/models", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List lists loaded models.
func (c *Client) List(ctx context.Context) (*ListResponse, error) {
	var lr ListResponse
	if err := c.do(ctx, http.MethodGet, "/api/models", nil, &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}

// Show describes a loaded model.
func (c *Client) Show(ctx context.Context, id string) (*ModelResponse, error) {
	var resp ModelResponse
	if err := c.do(ctx, http.MethodGet, "/api/models/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete unloads a model.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/models/"+url.PathEscape(id), nil, nil)
}

// SetInput binds raw row-major data to the named input.
func (c *Client) SetInput(ctx context.Context, id, name string, shape []int64, data []byte) error {
	path := "/api/models/" + url.PathEscape(id) + "/inputs/" + url.PathEscape(name)
	_, _, err := c.send(ctx, http.MethodPost, path, url.Values{"shape": {FormatShape(shape)}}, data)
	return err
}

// Run executes a model.
func (c *Client) Run(ctx context.Context, id string) (*RunResponse, error) {
	var resp RunResponse
	if err := c.do(ctx, http.MethodPost, "/api/models/"+url.PathEscape(id)+"/run", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Output fetches the raw bytes of one output.
func (c *Client) Output(ctx context.Context, id string, index int) (Tensor, []byte, error) {
	path := "/api/models/" + url.PathEscape(id) + "/outputs/" + strconv.Itoa(index)
	header, body, err := c.send(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return Tensor{}, nil, err
	}

	shape, err := ml.ParseShape(header.Get(HeaderShape))
	if err != nil {
		return Tensor{}, nil, fmt.Errorf("output %d: %w", index, err)
	}
	return Tensor{DType: header.Get(HeaderDType), Shape: shape, Size: int64(len(body))}, body, nil
}

// Outputs fetches all outputs decoded, keyed by name in output order.
func (c *Client) Outputs(ctx context.Context, id string) (*OutputsResponse, error) {
	resp := orderedmap.New[string, Output]()
	if err := c.do(ctx, http.MethodGet, "/api/models/"+url.PathEscape(id)+"/outputs", nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// LastError returns the most recent failure recorded by the server.
func (c *Client) LastError(ctx context.Context) (string, error) {
	var resp LastErrorResponse
	if err := c.do(ctx, http.MethodGet, "/api/last-error", nil, &resp); err != nil {
		return "", err
	}
	return resp.Error, nil
}

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil)
}
