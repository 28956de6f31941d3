package archive

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubWriter struct {
	buf      bytes.Buffer
	writeErr error
	closeErr error
	closed   bool
}

func (w *stubWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.buf.Write(p)
}

func (w *stubWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestWriteFinalizesObject(t *testing.T) {
	a := &BucketArchiver{logger: zap.NewNop()}
	w := &stubWriter{}
	aborted := false

	require.NoError(t, a.write(w, func() { aborted = true }, "exports/u1/a.pdf", []byte("%PDF-1.3")))
	assert.Equal(t, "%PDF-1.3", w.buf.String())
	assert.True(t, w.closed)
	assert.False(t, aborted)
}

func TestWriteFailureAbortsWithoutCommit(t *testing.T) {
	a := &BucketArchiver{logger: zap.NewNop()}
	w := &stubWriter{writeErr: errors.New("connection reset")}
	aborted := false

	err := a.write(w, func() { aborted = true }, "exports/u1/a.pdf", []byte("%PDF-1.3"))
	assert.ErrorContains(t, err, "connection reset")
	assert.True(t, aborted)
	assert.False(t, w.closed, "closing would commit a partial object")
}

func TestWriteCloseError(t *testing.T) {
	a := &BucketArchiver{logger: zap.NewNop()}
	w := &stubWriter{closeErr: errors.New("precondition failed")}

	err := a.write(w, func() {}, "exports/u1/a.pdf", []byte("x"))
	assert.ErrorContains(t, err, "failed to finalize")
}
