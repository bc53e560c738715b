package capability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestHTTPClientDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/echo":
			w.Header().Set("X-Method", r.Method)
			w.Header().Set("X-Query", r.URL.Query().Get("q"))
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"ok":true}`))
		case "/missing":
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(5 * time.Second)
	defer client.Close()

	t.Run("performs request and reads response", func(t *testing.T) {
		resp, err := client.Do(context.Background(), &HTTPRequest{
			Method: "POST",
			URL:    srv.URL + "/echo",
			Query:  map[string]string{"q": "leads"},
			Body:   "payload",
		})
		require.NoError(t, err)
		assert.Equal(t, 200, resp.Status)
		assert.Equal(t, "OK", resp.StatusText)
		assert.Equal(t, `{"ok":true}`, resp.Body)
		assert.Equal(t, int64(len(`{"ok":true}`)), resp.Size)
		assert.Equal(t, "POST", resp.Headers["X-Method"])
		assert.Equal(t, "leads", resp.Headers["X-Query"])
		assert.Greater(t, resp.Duration, time.Duration(0))
	})

	t.Run("method defaults to GET", func(t *testing.T) {
		resp, err := client.Do(context.Background(), &HTTPRequest{URL: srv.URL + "/echo"})
		require.NoError(t, err)
		assert.Equal(t, "GET", resp.Headers["X-Method"])
	})

	t.Run("non-2xx is a response, not an error", func(t *testing.T) {
		resp, err := client.Do(context.Background(), &HTTPRequest{URL: srv.URL + "/missing"})
		require.NoError(t, err)
		assert.Equal(t, 404, resp.Status)
		assert.Equal(t, "Not Found", resp.StatusText)
	})

	t.Run("connection failure is an error", func(t *testing.T) {
		dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		deadURL := dead.URL
		dead.Close()

		_, err := client.Do(context.Background(), &HTTPRequest{URL: deadURL})
		assert.Error(t, err)
	})

	t.Run("cancelled context is an error", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.Do(ctx, &HTTPRequest{URL: srv.URL + "/echo"})
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBuiltinTools(t *testing.T) {
	t.Run("register and invoke", func(t *testing.T) {
		reg := NewBuiltinTools()
		reg.Register("double", func(ctx context.Context, args cty.Value) (cty.Value, error) {
			n := args.GetAttr("n")
			bf := n.AsBigFloat()
			f, _ := bf.Float64()
			return cty.NumberFloatVal(f * 2), nil
		})

		out, err := reg.Invoke(context.Background(), "double", cty.ObjectVal(map[string]cty.Value{
			"n": cty.NumberIntVal(21),
		}))
		require.NoError(t, err)
		assert.True(t, cty.NumberFloatVal(42).RawEquals(out))
	})

	t.Run("unknown tool", func(t *testing.T) {
		reg := NewBuiltinTools()
		_, err := reg.Invoke(context.Background(), "ghost", cty.EmptyObjectVal)
		assert.ErrorIs(t, err, ErrUnknownTool)
	})

	t.Run("duplicate registration panics", func(t *testing.T) {
		reg := NewBuiltinTools()
		noop := func(ctx context.Context, args cty.Value) (cty.Value, error) { return cty.NilVal, nil }
		reg.Register("x", noop)
		assert.Panics(t, func() { reg.Register("x", noop) })
	})

	t.Run("names are sorted", func(t *testing.T) {
		reg := NewBuiltinTools()
		noop := func(ctx context.Context, args cty.Value) (cty.Value, error) { return cty.NilVal, nil }
		reg.Register("zeta", noop)
		reg.Register("alpha", noop)
		assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
	})
}

func TestSetWithDefaults(t *testing.T) {
	s := (&Set{}).WithDefaults()
	require.NotNil(t, s.HTTP)
	require.NotNil(t, s.Tools)
	require.NotNil(t, s.Model)

	_, err := s.Model.Invoke(context.Background(), &ModelRequest{Model: "m"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "no model capability configured")
}
