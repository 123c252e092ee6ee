package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCLI runs one command against dataDir and returns its stdout.
func runCLI(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.Reader = bytes.NewReader(nil)

	argv := append([]string{"snaptext", "--data-dir", dataDir, "--env-file", filepath.Join(dataDir, "absent.env")}, args...)
	err := app.Run(argv)
	return out.String(), err
}

func setupCLI(t *testing.T) string {
	t.Helper()
	t.Setenv("SNAPTEXT_CAPTURE_SOURCE", "none")
	t.Setenv("SNAPTEXT_REDIS_URL", "")
	return t.TempDir()
}

func TestCLI_CaptureListUpdateExport(t *testing.T) {
	dir := setupCLI(t)

	out, err := runCLI(t, dir, "capture", "--x", "10", "--y", "20", "--width", "120", "--height", "80")
	require.NoError(t, err)
	var captured struct {
		ID   string `json:"id"`
		Tier string `json:"tier"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &captured))
	require.NotEmpty(t, captured.ID)
	require.Equal(t, "placeholder", captured.Tier)

	out, err = runCLI(t, dir, "list")
	require.NoError(t, err)
	var rows []listRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, 1, rows[0].Number)
	require.Equal(t, captured.ID, rows[0].ID)
	require.Equal(t, 120, rows[0].Bounds.Width)
	require.Positive(t, rows[0].ImageBytes)
	require.Empty(t, rows[0].Image)
	require.Nil(t, rows[0].Text)

	out, err = runCLI(t, dir, "list", "--with-text")
	require.NoError(t, err)
	require.JSONEq(t, `[]`, out)

	out, err = runCLI(t, dir, "update", captured.ID, "--text", "quarterly report")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"`+captured.ID+`","updated":true}`, out)

	out, err = runCLI(t, dir, "list", "--with-text", "--images")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, "quarterly report", *rows[0].Text)
	require.NotNil(t, rows[0].LastEditedAt)
	require.Contains(t, rows[0].Image, "data:image/png;base64,")

	exportDir := t.TempDir()
	_, err = runCLI(t, dir, "export", captured.ID, "--dir", exportDir)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(exportDir, "text-"+captured.ID+".txt"))
	require.NoError(t, err)
	require.Equal(t, "quarterly report", string(data))

	out, err = runCLI(t, dir, "delete", captured.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"`+captured.ID+`","deleted":true}`, out)

	out, err = runCLI(t, dir, "delete", captured.ID)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"`+captured.ID+`","deleted":false}`, out)
}

func TestCLI_Capacity(t *testing.T) {
	dir := setupCLI(t)
	t.Setenv("SNAPTEXT_MAX_RECORDS", "2")

	var ids []string
	for i := 0; i < 3; i++ {
		out, err := runCLI(t, dir, "capture", "--width", "60", "--height", "60")
		require.NoError(t, err)
		var res struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		ids = append(ids, res.ID)
	}

	out, err := runCLI(t, dir, "list")
	require.NoError(t, err)
	var rows []listRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	require.Equal(t, ids[2], rows[0].ID)
	require.Equal(t, ids[1], rows[1].ID)

	_, err = runCLI(t, dir, "clear")
	require.NoError(t, err)
	out, err = runCLI(t, dir, "list")
	require.NoError(t, err)
	require.JSONEq(t, `[]`, out)
}

func TestCLI_Errors(t *testing.T) {
	dir := setupCLI(t)

	_, err := runCLI(t, dir, "capture", "--width", "30", "--height", "80")
	require.Error(t, err)
	require.Contains(t, err.Error(), "SELECTION_TOO_SMALL")

	_, err = runCLI(t, dir, "frame", "--out", filepath.Join(dir, "f.png"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "CAPTURE_UNAVAILABLE")

	_, err = runCLI(t, dir, "delete")
	require.Error(t, err)
	require.Contains(t, err.Error(), "INVALID_REQUEST")

	out, err := runCLI(t, dir, "update", "missing", "--text", "hello")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"missing","updated":false}`, out)

	_, err = runCLI(t, dir, "export", "missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "RECORD_NOT_FOUND")

	_, err = runCLI(t, dir, "--log-level", "loud", "list")
	require.Error(t, err)
}

func TestCLI_Serve(t *testing.T) {
	dir := setupCLI(t)
	t.Setenv("SNAPTEXT_WATCH_INTERVAL_MS", "-1")

	app := newCLIApp()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = io.Discard
	app.Reader = bytes.NewBufferString(`{"id":1,"action":"ping"}` + "\n" + `{"id":2,"action":"listRecords"}` + "\n")

	require.NoError(t, app.Run([]string{"snaptext", "--data-dir", dir, "--env-file", filepath.Join(dir, "absent.env"), "serve"}))

	dec := json.NewDecoder(&out)
	var first, second map[string]any
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	require.Equal(t, true, first["success"])
	require.EqualValues(t, 1, first["id"])
	require.Equal(t, []any{}, second["result"])
}
