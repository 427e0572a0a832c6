package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	base, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(base, ts.Client())
}

func TestClientStatusError(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		expect string
	}{
		"json error":  {http.StatusNotFound, `{"error":"unknown model handle"}`, "404 Not Found: unknown model handle"},
		"plain error": {http.StatusInternalServerError, `boom`, "500 Internal Server Error: boom"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})

			_, err := c.Show(context.Background(), "abc")
			var serr StatusError
			if !errors.As(err, &serr) {
				t.Fatalf("expected StatusError, got %v", err)
			}
			if serr.StatusCode != tt.status || serr.Error() != tt.expect {
				t.Errorf("got %d %q, expected %d %q", serr.StatusCode, serr.Error(), tt.status, tt.expect)
			}
		})
	}
}

func TestClientSetInput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/models/abc/inputs/x" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("shape"); got != "2,-1" {
			t.Errorf("shape query %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/octet-stream" {
			t.Errorf("content type %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "\x01\x02" {
			t.Errorf("body %q", body)
		}
	})

	if err := c.SetInput(context.Background(), "abc", "x", []int64{2, -1}, []byte{1, 2}); err != nil {
		t.Fatal(err)
	}
}

func TestClientOutput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderShape, "1,2")
		w.Header().Set(HeaderDType, "float32")
		w.Write(make([]byte, 8))
	})

	tensor, data, err := c.Output(context.Background(), "abc", 0)
	if err != nil {
		t.Fatal(err)
	}
	want := Tensor{DType: "float32", Shape: []int64{1, 2}, Size: 8}
	if diff := cmp.Diff(want, tensor); diff != "" {
		t.Errorf("tensor mismatch (-want +got):\n%s", diff)
	}
	if len(data) != 8 {
		t.Errorf("expected 8 bytes, got %d", len(data))
	}
}

func TestClientOutputsKeepOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"zeta":{"dtype":"float32","shape":[1],"values":[1]},"alpha":{"dtype":"string","shape":[3],"values":"a"}}`)
	})

	outputs, err := c.Outputs(context.Background(), "abc")
	if err != nil {
		t.Fatal(err)
	}

	var keys []string
	for pair := outputs.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	if diff := cmp.Diff([]string{"zeta", "alpha"}, keys); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	out, ok := outputs.Get("alpha")
	if !ok || out.Values != "a" {
		t.Errorf("unexpected alpha output %+v", out)
	}
}

func TestClientCreate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
			return
		}
		if diff := cmp.Diff([]Element{{Role: "model-file", Name: "m.tflite", Data: []byte("x")}}, req.Elements); diff != "" {
			t.Errorf("elements mismatch (-want +got):\n%s", diff)
		}
		json.NewEncoder(w).Encode(CreateResponse{ID: "abc", Backend: "mobile"})
	})

	resp, err := c.Create(context.Background(), &CreateRequest{Elements: []Element{{Role: "model-file", Name: "m.tflite", Data: []byte("x")}}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.ID != "abc" || resp.Backend != "mobile" {
		t.Errorf("unexpected response %+v", resp)
	}
}
