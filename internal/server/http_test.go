package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, method, url, body string) (int, Response) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var resp Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&resp))
	return res.StatusCode, resp
}

func TestHTTP_Routes(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	status, resp := doJSON(t, http.MethodGet, ts.URL+"/healthz", "")
	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)

	status, resp = doJSON(t, http.MethodPost, ts.URL+"/records", `{"imageData":"`+pngDataURL(t)+`","sourceUrl":"https://example.com"}`)
	require.Equal(t, http.StatusOK, status)
	id := resp.Result.(map[string]any)["id"].(string)
	require.NotEmpty(t, id)

	status, resp = doJSON(t, http.MethodPatch, ts.URL+"/records/"+id, `{"text":"edited"}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, resp.Result.(map[string]any)["updated"])

	status, resp = doJSON(t, http.MethodGet, ts.URL+"/records/"+id, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "edited", resp.Result.(map[string]any)["extractedText"])

	status, resp = doJSON(t, http.MethodGet, ts.URL+"/records", "")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, resp.Result, 1)

	status, resp = doJSON(t, http.MethodGet, ts.URL+"/records/nope", "")
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "RECORD_NOT_FOUND", string(resp.Error.Code))

	status, resp = doJSON(t, http.MethodPost, ts.URL+"/capture", `{"width":30,"height":80}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "SELECTION_TOO_SMALL", string(resp.Error.Code))

	status, _ = doJSON(t, http.MethodGet, ts.URL+"/frame?width=10&height=10", "")
	require.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = doJSON(t, http.MethodGet, ts.URL+"/frame?width=ten", "")
	require.Equal(t, http.StatusBadRequest, status)

	status, resp = doJSON(t, http.MethodDelete, ts.URL+"/records/"+id, "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, resp.Result.(map[string]any)["deleted"])

	status, _ = doJSON(t, http.MethodDelete, ts.URL+"/records", "")
	require.Equal(t, http.StatusOK, status)
}

func TestHTTP_Selection(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	_, resp := doJSON(t, http.MethodPost, ts.URL+"/selection/start", "")
	require.Equal(t, "armed", resp.Result.(map[string]any)["state"])

	_, resp = doJSON(t, http.MethodPost, ts.URL+"/selection/pointer", `{"phase":"up","x":1,"y":1}`)
	require.False(t, resp.Success, "pointer-up without pointer-down")
	require.Equal(t, "INVALID_REQUEST", string(resp.Error.Code))

	_, resp = doJSON(t, http.MethodPost, ts.URL+"/selection/cancel", "")
	require.Equal(t, true, resp.Result.(map[string]any)["cancelled"])
}

func TestHTTP_Events(t *testing.T) {
	ts := httptest.NewServer(newTestServer(t).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	rd := bufio.NewReader(res.Body)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	status, _ := doJSON(t, http.MethodPost, ts.URL+"/records", `{"imageData":"`+pngDataURL(t)+`"}`)
	require.Equal(t, http.StatusOK, status)

	var event, data string
	for data == "" {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	require.Equal(t, "storeChanged", event)

	var changed struct {
		Records []map[string]any `json:"records"`
		Version int64            `json:"version"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &changed))
	require.Len(t, changed.Records, 1)
	require.EqualValues(t, 1, changed.Version)
}
