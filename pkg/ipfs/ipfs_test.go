package ipfs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeNode(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v0/cat", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("arg") != "bafydataset" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"Message":"block not found","Code":0,"Type":"error"}`)
			return
		}
		io.WriteString(w, "a,b\n1,2\n")
	})
	mux.HandleFunc("/api/v0/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"Version":"0.30.0"}`)
	})
	mux.HandleFunc("/api/v0/add", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("cid-version") == "" {
			io.WriteString(w, `{"Name":"model/model.json","Hash":"bafyfile","Size":"12"}`+"\n")
			io.WriteString(w, `{"Name":"model","Hash":"bafydir","Size":"64"}`+"\n")
			return
		}
		assert.Equal(t, "true", r.URL.Query().Get("pin"))
		io.WriteString(w, `{"Name":"","Hash":"bafymodel","Size":"12"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCat(t *testing.T) {
	srv := fakeNode(t)
	svc := New(Config{APIEndpoint: srv.URL, Timeout: 5 * time.Second})

	rc, err := svc.Cat(context.Background(), "bafydataset")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	_, err = svc.Cat(context.Background(), "bafymissing")
	assert.Error(t, err)
}

func TestPublishFile(t *testing.T) {
	srv := fakeNode(t)
	svc := New(Config{APIEndpoint: srv.URL})

	path := filepath.Join(t.TempDir(), "birds_0123456789ab.h5")
	require.NoError(t, os.WriteFile(path, []byte(`{"format":1}`), 0o644))

	cid, err := svc.Publish(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "bafymodel", cid)

	_, err = svc.Publish(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.Publish(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublishDir(t *testing.T) {
	srv := fakeNode(t)
	svc := New(Config{APIEndpoint: srv.URL})

	dir := filepath.Join(t.TempDir(), "model")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), []byte(`{"format":1}`), 0o644))

	cid, err := svc.Publish(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "bafydir", cid)
}

func TestPublishStopsOnCancel(t *testing.T) {
	started := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v0/add", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	svc := New(Config{APIEndpoint: srv.URL})

	path := filepath.Join(t.TempDir(), "birds_0123456789ab.h5")
	require.NoError(t, os.WriteFile(path, []byte(`{"format":1}`), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	begin := time.Now()
	_, err := svc.Publish(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(begin), 4*time.Second)
}
