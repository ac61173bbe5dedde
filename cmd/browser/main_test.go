package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffimoveis/imoveis/internal/domain"
)

func offlineOptions(t *testing.T, rawURL string) *options {
	t.Helper()
	return &options{
		Timeout:  time.Second,
		LogLevel: "error",
		LogFile:  filepath.Join(t.TempDir(), "browser.log"),
		Offline:  true,
		URL:      rawURL,
	}
}

func TestRunSearch_Offline(t *testing.T) {
	var out bytes.Buffer

	err := runSearch(context.Background(), offlineOptions(t, "tipo=casa"), &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "1 imóveis encontrados ?tipo=casa")
	assert.Contains(t, out.String(), "R$ 850.000")
	assert.Contains(t, out.String(), "Jardim Botânico, Campinas")
}

func TestRunSearch_CanonicalizesURL(t *testing.T) {
	var out bytes.Buffer

	err := runSearch(context.Background(), offlineOptions(t, "tipo=chale&min_price=abc&local=santos"), &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "1 imóveis encontrados ?local=santos")
}

func TestRunSearch_APIDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := offlineOptions(t, "")
	opts.Offline = false
	opts.APIURL = srv.URL

	err := runSearch(context.Background(), opts, &bytes.Buffer{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestRunSeed_UploadsListings(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var rec domain.PropertyRecord
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		mu.Lock()
		ids = append(ids, rec.ID)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": rec})
	}))
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "listings.json")
	require.NoError(t, os.WriteFile(file, []byte(`[
		{"id":"a1","title":"Casa","city":"Itu","price":300000,"property_type":"casa"},
		{"id":"a2","title":"Terreno","city":"Itu","price":90000,"property_type":"terreno"}
	]`), 0o600))

	opts := offlineOptions(t, "")
	opts.APIURL = srv.URL

	require.NoError(t, runSeed(context.Background(), opts, file))
	assert.Equal(t, []string{"a1", "a2"}, ids)
}

func TestRunSeed_ReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	}))
	defer srv.Close()

	opts := offlineOptions(t, "")
	opts.APIURL = srv.URL

	err := runSeed(context.Background(), opts, "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 of 3 listings failed")
}

func TestNewRootCmd_Flags(t *testing.T) {
	t.Setenv("IMOVEIS_BROWSER_API_URL", "http://listings:9000")

	cmd := newRootCmd()

	flag := cmd.PersistentFlags().Lookup("api-url")
	require.NotNil(t, flag)
	assert.Equal(t, "http://listings:9000", flag.DefValue)
	for _, name := range []string{"url", "timeout", "offline", "log-file"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Len(t, cmd.Commands(), 2)
}
