package server_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/twinmind/pkg/model"
	"github.com/m-mizutani/twinmind/pkg/policy"
	"github.com/m-mizutani/twinmind/pkg/relay"
	"github.com/m-mizutani/twinmind/pkg/server"
)

type upstreamRequest struct {
	method   string
	path     string
	rawQuery string
	auth     string
	body     string
}

type upstream struct {
	*httptest.Server
	mu   sync.Mutex
	reqs []upstreamRequest
}

func (x *upstream) requests() []upstreamRequest {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]upstreamRequest(nil), x.reqs...)
}

func newUpstream(t *testing.T, status int, body string) *upstream {
	t.Helper()

	u := &upstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		u.mu.Lock()
		u.reqs = append(u.reqs, upstreamRequest{
			method:   r.Method,
			path:     r.URL.Path,
			rawQuery: r.URL.RawQuery,
			auth:     r.Header.Get("Authorization"),
			body:     string(data),
		})
		u.mu.Unlock()

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(u.Close)

	return u
}

func newServer(t *testing.T, baseURL string, opts ...server.Option) *server.Server {
	t.Helper()

	r, err := relay.New(relay.Config{
		Variant:    model.VariantSimple,
		BaseURL:    baseURL,
		Credential: "server-side-key",
	})
	gt.NoError(t, err)

	srv, err := server.New(r, opts...)
	gt.NoError(t, err)
	return srv
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	gt.NoError(t, err)
	return string(data)
}

func TestStorePassthrough(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{"response":"Memory added","id":"m-1"}`)
	srv := newServer(t, up.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/memory", strings.NewReader(`{"user":"alice","data":"hello"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	gt.NoError(t, err)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.Equal(t, readBody(t, resp), `{"response":"Memory added","id":"m-1"}`)

	reqs := up.requests()
	gt.A(t, reqs).Length(1)
	gt.Equal(t, reqs[0].method, http.MethodPost)
	gt.Equal(t, reqs[0].path, "/memory")
	gt.Equal(t, reqs[0].body, `{"user":"alice","data":"hello"}`)
	gt.Equal(t, reqs[0].auth, "Bearer server-side-key")
}

func TestSuccessStatusIsOK(t *testing.T) {
	up := newUpstream(t, http.StatusCreated, `{"response":"Memory added"}`)
	srv := newServer(t, up.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/memory", strings.NewReader(`{"user":"alice","data":"hello"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.App().Test(req)
	gt.NoError(t, err)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.Equal(t, readBody(t, resp), `{"response":"Memory added"}`)
	gt.A(t, up.requests()).Length(1)
}

func TestAskPassthrough(t *testing.T) {
	up := newUpstream(t, http.StatusOK, `{"response":"on the desk"}`)
	srv := newServer(t, up.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/memory/ask?query=my%20keys&user=alice", nil)
	resp, err := srv.App().Test(req)
	gt.NoError(t, err)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.Equal(t, readBody(t, resp), `{"response":"on the desk"}`)

	reqs := up.requests()
	gt.A(t, reqs).Length(1)
	gt.Equal(t, reqs[0].method, http.MethodGet)
	gt.Equal(t, reqs[0].path, "/memory/ask")
	gt.Equal(t, reqs[0].rawQuery, "query=my%20keys&user=alice")
	gt.Equal(t, reqs[0].auth, "Bearer server-side-key")
}

func TestUpstreamFailure(t *testing.T) {
	t.Run("error status", func(t *testing.T) {
		up := newUpstream(t, http.StatusUnauthorized, `{"error":"bad key"}`)
		srv := newServer(t, up.URL)

		resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/memory/ask?query=x&user=alice", nil))
		gt.NoError(t, err)
		gt.Equal(t, resp.StatusCode, http.StatusInternalServerError)
		gt.Equal(t, readBody(t, resp), `{"error":"An error occurred while processing your request"}`)
	})

	t.Run("malformed body", func(t *testing.T) {
		up := newUpstream(t, http.StatusOK, `not json`)
		srv := newServer(t, up.URL)

		resp, err := srv.App().Test(httptest.NewRequest(http.MethodPost, "/api/memory", strings.NewReader(`{}`)))
		gt.NoError(t, err)
		gt.Equal(t, resp.StatusCode, http.StatusInternalServerError)
	})

	t.Run("unreachable", func(t *testing.T) {
		up := newUpstream(t, http.StatusOK, `{}`)
		baseURL := up.URL
		up.Close()
		srv := newServer(t, baseURL)

		resp, err := srv.App().Test(httptest.NewRequest(http.MethodPost, "/api/memory", strings.NewReader(`{}`)))
		gt.NoError(t, err)
		gt.Equal(t, resp.StatusCode, http.StatusInternalServerError)
		gt.S(t, readBody(t, resp)).Contains("error")
	})
}

func TestPolicyGate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "gate.rego"), []byte(`package relay

default allow := false

allow if input.user == "alice"
`), 0644))

	gate, err := policy.Load(ctx, dir)
	gt.NoError(t, err)

	up := newUpstream(t, http.StatusOK, `{"response":"ok"}`)
	srv := newServer(t, up.URL, server.WithGate(gate))

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/api/memory/ask?query=x&user=alice", nil))
	gt.NoError(t, err)
	gt.Equal(t, resp.StatusCode, http.StatusOK)

	resp, err = srv.App().Test(httptest.NewRequest(http.MethodPost, "/api/memory", strings.NewReader(`{"user":"mallory","data":"x"}`)))
	gt.NoError(t, err)
	gt.Equal(t, resp.StatusCode, http.StatusForbidden)
	gt.Equal(t, readBody(t, resp), `{"error":"request denied by policy"}`)

	gt.A(t, up.requests()).Length(1)
}

func TestHealth(t *testing.T) {
	srv := newServer(t, "http://localhost:1")

	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	gt.NoError(t, err)
	gt.Equal(t, resp.StatusCode, http.StatusOK)
	gt.Equal(t, readBody(t, resp), "OK")
}

func TestRejectStructuredVariant(t *testing.T) {
	r, err := relay.New(relay.Config{
		Variant: model.VariantStructured,
		BaseURL: "https://structured.example.com",
	})
	gt.NoError(t, err)

	_, err = server.New(r)
	gt.Error(t, err)
}
