// ABOUTME: Tests for the NDJSON wire format, sink close semantics, and tee fan-out.
// ABOUTME: Uses httptest.ResponseRecorder to verify per-line flushing.
package pipeline

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNDJSONSinkWireFormat(t *testing.T) {
	var buf bytes.Buffer
	sink := NewNDJSONSink(&buf)

	require.NoError(t, sink.Emit(ProgressEvent(0, "Researching")))
	require.NoError(t, sink.Emit(ProgressEvent(3, "Merging keywords")))
	require.NoError(t, sink.Emit(CompleteEvent(map[string]string{"title": "Go"})))
	require.NoError(t, sink.Close())

	want := `{"type":"progress","step":0,"message":"Researching"}` + "\n" +
		`{"type":"progress","step":3,"message":"Merging keywords"}` + "\n" +
		`{"type":"complete","data":{"title":"Go"}}` + "\n"
	assert.Equal(t, want, buf.String())
}

func TestNDJSONSinkErrorLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewNDJSONSink(&buf)
	require.NoError(t, sink.Emit(ErrorEvent("all keys failed")))
	assert.Equal(t, `{"type":"error","error":"all keys failed"}`+"\n", buf.String())
}

func TestNDJSONSinkFlushesEachLine(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := NewNDJSONSink(rec)
	require.NoError(t, sink.Emit(ProgressEvent(1, "x")))
	assert.True(t, rec.Flushed)
}

func TestNDJSONSinkCloseIsTerminal(t *testing.T) {
	var buf bytes.Buffer
	sink := NewNDJSONSink(&buf)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	err := sink.Emit(ProgressEvent(0, "late"))
	assert.ErrorIs(t, err, ErrSinkClosed)
	assert.Empty(t, buf.String())
}

type closeCounter struct {
	bytes.Buffer
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestNDJSONFileSinkOwnsWriter(t *testing.T) {
	w := &closeCounter{}
	sink := NewNDJSONFileSink(w)
	require.NoError(t, sink.Emit(ErrorEvent("boom")))
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	assert.Equal(t, 1, w.closes)
	assert.Equal(t, `{"type":"error","error":"boom"}`+"\n", w.String())

	unowned := &closeCounter{}
	require.NoError(t, NewNDJSONSink(unowned).Close())
	assert.Zero(t, unowned.closes)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestNDJSONSinkCountsWriteErrors(t *testing.T) {
	sink := NewNDJSONSink(failingWriter{})
	err := sink.Emit(ProgressEvent(0, "x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken pipe")
	assert.Equal(t, 1, sink.WriteErrors)
}

func TestTeeSinkDeliversToAll(t *testing.T) {
	a, b := &MemorySink{}, &MemorySink{}
	tee := TeeSink{a, NewNDJSONSink(failingWriter{}), b}

	err := tee.Emit(ErrorEvent("boom"))
	require.Error(t, err)
	require.NoError(t, tee.Close())

	assert.Equal(t, []Event{ErrorEvent("boom")}, a.Events())
	assert.Equal(t, []Event{ErrorEvent("boom")}, b.Events())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}

func TestEventTerminal(t *testing.T) {
	assert.False(t, ProgressEvent(0, "x").Terminal())
	assert.True(t, CompleteEvent(nil).Terminal())
	assert.True(t, ErrorEvent("x").Terminal())
}
