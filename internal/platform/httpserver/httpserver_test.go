package httpserver

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	srv := New(":0", http.NotFoundHandler())
	assert.Equal(t, 30*time.Second, srv.WriteTimeout)
	assert.Nil(t, srv.ErrorLog)
}

func TestOptions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	srv := New(":0", http.NotFoundHandler(), WithErrorLog(logger), WithWriteTimeout(time.Minute), WithWriteTimeout(0))

	assert.Equal(t, time.Minute, srv.WriteTimeout)
	srv.ErrorLog.Print("tls: handshake failure")
	assert.Contains(t, buf.String(), "handshake failure")
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
}
