package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ffimoveis/imoveis/pkg/httputil"
)

func TestContentTypeJSON(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		want        int
	}{
		{"json put", http.MethodPut, `{"title":"Casa"}`, "application/json", http.StatusOK},
		{"json with charset", http.MethodPut, `{}`, "application/json; charset=utf-8", http.StatusOK},
		{"mixed case media type", http.MethodPut, `{}`, "Application/JSON", http.StatusOK},
		{"undeclared body", http.MethodPut, `{}`, "", http.StatusOK},
		{"form put", http.MethodPut, "title=x", "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"json-like prefix", http.MethodPut, `{}`, "application/jsonp", http.StatusUnsupportedMediaType},
		{"malformed header", http.MethodPut, `{}`, "application/json; =", http.StatusUnsupportedMediaType},
		{"empty delete with text type", http.MethodDelete, "", "text/plain", http.StatusOK},
		{"search ignores content type", http.MethodGet, "", "text/html", http.StatusOK},
		{"get with body", http.MethodGet, "q=casa", "text/plain", http.StatusUnsupportedMediaType},
	}

	h := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/properties/1", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			require.Equal(t, tt.want, rec.Code)
			if tt.want != http.StatusUnsupportedMediaType {
				return
			}
			var resp httputil.Response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", resp.Error.Code)
		})
	}
}
