//go:build test_integration

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	aurena "github.com/devgianlu/go-aurena"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApiServer(t *testing.T, handle func(req ApiRequest) (any, error)) *httptest.Server {
	t.Helper()

	s, _ := NewStubApiServer(&aurena.NullLogger{})
	srv := httptest.NewServer(s.handler())

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case req := <-s.Receive():
				req.Reply(handle(req))
			}
		}
	}()

	t.Cleanup(func() {
		srv.Close()
		close(done)
	})

	return srv
}

func TestApiServerStatus(t *testing.T) {
	srv := newTestApiServer(t, func(req ApiRequest) (any, error) {
		require.Equal(t, ApiRequestTypeStatus, req.Type)
		return &ApiResponseStatus{SessionId: "abc", State: "PLAYING", TimeText: "00:00:01 / 00:01:00"}, nil
	})

	resp, err := srv.Client().Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status ApiResponseStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "abc", status.SessionId)
	assert.Equal(t, "PLAYING", status.State)

	resp, err = srv.Client().Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestApiServerPlay(t *testing.T) {
	played := make(chan aurena.PlaybackEndpoint, 1)
	srv := newTestApiServer(t, func(req ApiRequest) (any, error) {
		played <- req.Data.(aurena.PlaybackEndpoint)
		return nil, nil
	})

	resp, err := srv.Client().Post(srv.URL+"/player/play", "application/json", strings.NewReader(`{"address":"10.0.0.5:4953"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, aurena.PlaybackEndpoint{Host: "10.0.0.5", Port: 4953}, <-played)

	resp, err = srv.Client().Post(srv.URL+"/player/play", "application/json", strings.NewReader(`{"address":"10.0.0.5:nope"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApiServerErrors(t *testing.T) {
	srv := newTestApiServer(t, func(req ApiRequest) (any, error) {
		switch req.Type {
		case ApiRequestTypePause:
			return nil, aurena.ErrSessionFinalized
		default:
			return nil, ErrNoSession
		}
	})

	resp, err := srv.Client().Post(srv.URL+"/player/pause", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp, err = srv.Client().Post(srv.URL+"/player/resume", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
