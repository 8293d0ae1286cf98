package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/room"
	"github.com/tcriess/lightspeed-rooms/types"
	"github.com/tcriess/lightspeed-rooms/ws"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		ServerName:         "example.org",
		DefaultRoomVersion: "9",
		MaxMessageSize:     65536,
		HistoryConfig:      config.HistoryConfig{PageSize: 50},
	}
	store := persistence.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	hub := ws.NewHub(cfg)
	go hub.Run()
	return NewServer(room.NewHandler(store, cfg, hub), hub, cfg)
}

func doJSON(t *testing.T, s *Server, method, path, userId string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userId != "" {
		req.Header.Set("X-User-Id", userId)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestRequiresAuthentication(t *testing.T) {
	s := testServer(t)
	rec := doJSON(t, s, http.MethodGet, "/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.CodeForbidden, body["errcode"])
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	s := testServer(t)

	rec := doJSON(t, s, http.MethodPost, "/rooms", "@alice:example.org", types.RoomConfig{
		Name:   "General",
		Preset: types.PresetPublicChat,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created types.CreateRoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, strings.HasPrefix(created.RoomId, "!"))

	rec = doJSON(t, s, http.MethodPost, "/rooms/"+created.RoomId+"/join", "@bob:example.org", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/rooms/"+created.RoomId+"/summary", "@bob:example.org", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary types.RoomSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "General", summary.Name)
	assert.Equal(t, 2, summary.MemberCount)

	rec = doJSON(t, s, http.MethodPost, "/rooms/"+created.RoomId+"/send", "@bob:example.org", types.MessageContent{Body: "hello"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/rooms/"+created.RoomId+"/messages", "@bob:example.org", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page types.MessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Chunk, 1)

	rec = doJSON(t, s, http.MethodGet, "/rooms", "@bob:example.org", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, []string{created.RoomId}, listing["joined_rooms"])
}

func TestErrorMapping(t *testing.T) {
	s := testServer(t)

	// unknown room
	rec := doJSON(t, s, http.MethodPost, "/rooms/!missing:example.org/join", "@bob:example.org", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.CodeNotFound, body["errcode"])

	// oversized message
	rec = doJSON(t, s, http.MethodPost, "/rooms", "@alice:example.org", types.RoomConfig{Preset: types.PresetPublicChat})
	require.Equal(t, http.StatusOK, rec.Code)
	var created types.CreateRoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, s, http.MethodPost, "/rooms/"+created.RoomId+"/send", "@alice:example.org", types.MessageContent{
		Body: strings.Repeat("x", 70000),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.CodeTooLarge, body["errcode"])

	// forbidden join on invite-only room
	rec = doJSON(t, s, http.MethodPost, "/rooms", "@alice:example.org", types.RoomConfig{})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	rec = doJSON(t, s, http.MethodPost, "/rooms/"+created.RoomId+"/join", "@bob:example.org", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// malformed body
	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader("{not json"))
	req.Header.Set("X-User-Id", "@alice:example.org")
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, types.CodeBadJSON, body["errcode"])
}

func TestSendStateOverHTTP(t *testing.T) {
	s := testServer(t)
	rec := doJSON(t, s, http.MethodPost, "/rooms", "@alice:example.org", types.RoomConfig{Preset: types.PresetPublicChat})
	require.Equal(t, http.StatusOK, rec.Code)
	var created types.CreateRoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	url := fmt.Sprintf("/rooms/%s/state/%s", created.RoomId, types.EventTypeTopic)
	rec = doJSON(t, s, http.MethodPut, url, "@alice:example.org", types.TopicContent{Topic: "renovated"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/rooms/"+created.RoomId+"/summary", "@alice:example.org", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary types.RoomSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "renovated", summary.Topic)
}
