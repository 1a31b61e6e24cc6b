package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cutline/internal/event"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(EditResult{Intent: "clip.add", Version: 1, Clips: 3}))

	var resp struct {
		Status string     `json:"status"`
		Data   EditResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "clip.add", resp.Data.Intent)
	assert.Equal(t, 3, resp.Data.Clips)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error("STALE_CLIP", "clip c-9 is not on the timeline", map[string]any{"clip_id": "c-9"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "STALE_CLIP", resp.Error.Code)
	assert.Equal(t, "clip c-9 is not on the timeline", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_Text(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("3 clips"))
	require.NoError(t, formatter.Error("INVALID_DURATION", "duration must be positive", "ignored"))
	assert.Equal(t, "3 clips\nError [INVALID_DURATION]: duration must be positive\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error("INVALID_DURATION", "duration must be positive", "index 2"))
	assert.Contains(t, buf.String(), "Details: index 2")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag}

	formatter.VerboseLog("wrote %d events", 3)
	assert.Empty(t, diag.String())

	formatter.Verbose = true
	formatter.VerboseLog("wrote %d events", 3)
	assert.Equal(t, "wrote 3 events\n", diag.String())
	assert.Empty(t, out.String())
	assert.Equal(t, diag, formatter.Diag())
}

func TestOutputFormatter_Reject(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Reject(event.Failure{
		Code:    "VIDEO_GROWTH",
		Message: "duration 12 exceeds the 10 seconds available in a.mp4",
		Intent:  "clip.resize",
		Index:   1,
		ClipID:  "c-2",
	}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VIDEO_GROWTH", resp.Error.Code)
	assert.Equal(t, map[string]any{"intent": "clip.resize", "index": 1.0, "clip_id": "c-2"}, resp.Error.Details)
}

type lines []string

func (l lines) RenderText(w io.Writer) error {
	for _, s := range l {
		if _, err := fmt.Fprintln(w, "-", s); err != nil {
			return err
		}
	}
	return nil
}

func TestOutputFormatter_TextRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(lines{"a", "b"}))
	assert.Equal(t, "- a\n- b\n", buf.String())
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Fail("TEST_FAILED", "1 scenario(s) failed", map[string]int{"failed": 1}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "TEST_FAILED", resp.Error.Code)
	assert.Equal(t, map[string]any{"failed": 1.0}, resp.Data)

	buf.Reset()
	formatter.Format = "text"
	require.NoError(t, formatter.Fail("TEST_FAILED", "boom", lines{"x"}))
	assert.Equal(t, "- x\n", buf.String())
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, ExitSuccess, 0)
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "missing file")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "open database", errors.New("locked")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "outer: open database: locked", wrapped.Error())
}
