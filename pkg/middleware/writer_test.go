package middleware

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type flushHijackWriter struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (w *flushHijackWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.hijacked = true
	return nil, nil, nil
}

// bareWriter implements only http.ResponseWriter.
type bareWriter struct{ header http.Header }

func (w *bareWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}
func (w *bareWriter) Write(b []byte) (int, error) { return len(b), nil }
func (w *bareWriter) WriteHeader(int)             {}

func TestStatusRecorder_Status(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	assert.Equal(t, http.StatusOK, rec.statusCode)

	rec.WriteHeader(http.StatusServiceUnavailable)
	rec.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusServiceUnavailable, rec.statusCode)

	_, _ = rec.Write([]byte("imoveis"))
	_, _ = rec.Write([]byte("!"))
	assert.Equal(t, 8, rec.bytes)
}

func TestStatusRecorder_ImplicitOKOnWrite(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	_, _ = rec.Write([]byte("{}"))
	rec.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusOK, rec.statusCode)
}

func TestNewStatusRecorder_ReusesExisting(t *testing.T) {
	inner := newStatusRecorder(httptest.NewRecorder())
	assert.Same(t, inner, newStatusRecorder(inner))
}

func TestStatusRecorder_Delegation(t *testing.T) {
	under := &flushHijackWriter{ResponseRecorder: httptest.NewRecorder()}
	rec := newStatusRecorder(under)

	rec.Flush()
	assert.True(t, under.Flushed)

	_, _, err := rec.Hijack()
	assert.NoError(t, err)
	assert.True(t, under.hijacked)
	assert.Same(t, under, rec.Unwrap())

	bare := newStatusRecorder(&bareWriter{})
	bare.Flush()
	_, _, err = bare.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
}
