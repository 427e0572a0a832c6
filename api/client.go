// Package api - Hauptmodul des edgerun API-Clients.
// Dieses Modul enthaelt die Client-Struktur und Basis-Methoden.
// API-Methoden sind in client_api.go.
//
// Package api implements the client-side API for code wishing to interact
// with the edgerun service. The methods of the [Client] type correspond to
// the routes registered by the server package.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"

	"github.com/edgerun/edgerun/envconfig"
	"github.com/edgerun/edgerun/version"
)

// Client encapsulates client state for interacting with the edgerun
// service. Use [ClientFromEnvironment] to create new Clients.
type Client struct {
	base *url.URL
	http *http.Client
}

func checkError(resp *http.Response, body []byte) error {
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	apiError := StatusError{StatusCode: resp.StatusCode, Status: resp.Status}

	err := json.Unmarshal(body, &apiError)
	if err != nil {
		// Use the full body as the message if we fail to decode a response.
		apiError.ErrorMessage = string(body)
	}

	return apiError
}

// ClientFromEnvironment creates a new [Client] using configuration from the
// environment variable EDGERUN_HOST, which points to the network host and
// port on which the edgerun service is listening. The format of this variable
// is:
//
//	<scheme>://<host>:<port>
//
// If the variable is not specified, a default host and port will be used.
func ClientFromEnvironment() (*Client, error) {
	return &Client{
		base: envconfig.Host(),
		http: http.DefaultClient,
	}, nil
}

func NewClient(base *url.URL, http *http.Client) *Client {
	return &Client{
		base: base,
		http: http,
	}
}

// send performs the request and returns the response body after checking
// the status code.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, reqData any) (http.Header, []byte, error) {
	var reqBody io.Reader
	contentType := "application/json"

	switch reqData := reqData.(type) {
	case []byte:
		reqBody = bytes.NewReader(reqData)
		contentType = "application/octet-stream"
	case io.Reader:
		// reqData is already an io.Reader
		reqBody = reqData
		contentType = "application/octet-stream"
	case nil:
		// noop
	default:
		data, err := json.Marshal(reqData)
		if err != nil {
			return nil, nil, err
		}

		reqBody = bytes.NewReader(data)
	}

	requestURL := c.base.JoinPath(path)
	if len(query) > 0 {
		requestURL.RawQuery = query.Encode()
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL.String(), reqBody)
	if err != nil {
		return nil, nil, err
	}

	request.Header.Set("Content-Type", contentType)
	request.Header.Set("Accept", "application/json")
	request.Header.Set("User-Agent", fmt.Sprintf("edgerun/%s (%s %s) Go/%s", version.Version, runtime.GOARCH, runtime.GOOS, runtime.Version()))

	respObj, err := c.http.Do(request)
	if err != nil {
		return nil, nil, err
	}
	defer respObj.Body.Close()

	respBody, err := io.ReadAll(respObj.Body)
	if err != nil {
		return nil, nil, err
	}

	if err := checkError(respObj, respBody); err != nil {
		return nil, nil, err
	}
	return respObj.Header, respBody, nil
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	_, respBody, err := c.send(ctx, method, path, nil, reqData)
	if err != nil {
		return err
	}

	if len(respBody) > 0 && respData != nil {
		if err := json.Unmarshal(respBody, respData); err != nil {
			return err
		}
	}
	return nil
}
