// Package api exposes the room operations over HTTP and upgrades stream requests
// to websockets.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antonmedv/expr/vm"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/tcriess/lightspeed-rooms/auth"
	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/filter"
	"github.com/tcriess/lightspeed-rooms/globals"
	"github.com/tcriess/lightspeed-rooms/room"
	"github.com/tcriess/lightspeed-rooms/types"
	"github.com/tcriess/lightspeed-rooms/ws"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server wires the HTTP routes to the room handler and the websocket hub.
type Server struct {
	rooms *room.Handler
	hub   *ws.Hub
	cfg   *config.Config
}

func NewServer(rooms *room.Handler, hub *ws.Hub, cfg *config.Config) *Server {
	return &Server{rooms: rooms, hub: hub, cfg: cfg}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/rooms", s.createRoomHandler).Methods(http.MethodPost)
	router.HandleFunc("/rooms", s.listRoomsHandler).Methods(http.MethodGet)
	router.HandleFunc("/rooms/{room}/summary", s.summaryHandler).Methods(http.MethodGet)
	router.HandleFunc("/rooms/{room}/join", s.joinHandler).Methods(http.MethodPost)
	router.HandleFunc("/rooms/{room}/leave", s.leaveHandler).Methods(http.MethodPost)
	router.HandleFunc("/rooms/{room}/knock", s.knockHandler).Methods(http.MethodPost)
	router.HandleFunc("/rooms/{room}/invite", s.inviteHandler).Methods(http.MethodPost)
	router.HandleFunc("/rooms/{room}/kick", s.kickHandler).Methods(http.MethodPost)
	router.HandleFunc("/rooms/{room}/ban", s.banHandler).Methods(http.MethodPost)
	router.HandleFunc("/rooms/{room}/unban", s.unbanHandler).Methods(http.MethodPost)
	router.HandleFunc("/rooms/{room}/send", s.sendMessageHandler).Methods(http.MethodPost)
	router.HandleFunc("/rooms/{room}/state/{eventType}", s.sendStateHandler).Methods(http.MethodPut)
	router.HandleFunc("/rooms/{room}/state/{eventType}/{stateKey}", s.sendStateHandler).Methods(http.MethodPut)
	router.HandleFunc("/rooms/{room}/messages", s.messagesHandler).Methods(http.MethodGet)
	router.HandleFunc("/rooms/{room}/stream", s.streamHandler).Methods(http.MethodGet)
	return router
}

// identify resolves the caller's identity. REST calls carry the OIDC ID-token as
// a bearer token plus an X-Auth-Provider header; the websocket upgrade passes
// id_token/provider query parameters instead (browsers cannot set headers there).
func (s *Server) identify(r *http.Request) (*types.Identity, error) {
	idToken := ""
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		idToken = strings.TrimPrefix(h, "Bearer ")
	}
	provider := r.Header.Get("X-Auth-Provider")
	if idToken == "" {
		idToken = r.URL.Query().Get("id_token")
		provider = r.URL.Query().Get("provider")
	}
	if idToken != "" && provider != "" {
		return auth.Authenticate(idToken, provider, s.cfg)
	}
	// without any OIDC provider the server runs open, the caller names itself
	if len(s.cfg.OIDCConfigs) == 0 {
		if userId := r.Header.Get("X-User-Id"); userId != "" {
			return &types.Identity{UserId: userId, SubscriptionActive: true}, nil
		}
	}
	return nil, nil
}

func (s *Server) authenticated(w http.ResponseWriter, r *http.Request) *types.Identity {
	user, err := s.identify(r)
	if err != nil {
		writeError(w, types.Forbidden("could not verify identity: %s", err))
		return nil
	}
	if user == nil {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, &types.Error{Kind: types.KindForbidden, Status: http.StatusUnauthorized, Code: types.CodeForbidden, Msg: "authentication required"})
		return nil
	}
	return user
}

func writeError(w http.ResponseWriter, err error) {
	e := types.AsError(err)
	if e.Kind == types.KindInternal {
		globals.AppLogger.Error("internal error", "error", e.Msg)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"errcode": e.Code,
		"error":   e.Msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, types.Validation("could not parse request body: %s", err))
		return false
	}
	return true
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type targetRequest struct {
	UserId string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) createRoomHandler(w http.ResponseWriter, r *http.Request) {
	user := s.authenticated(w, r)
	if user == nil {
		return
	}
	rc := types.RoomConfig{}
	if !decodeBody(w, r, &rc) {
		return
	}
	resp, err := s.rooms.CreateRoom(user, &rc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listRoomsHandler(w http.ResponseWriter, r *http.Request) {
	user := s.authenticated(w, r)
	if user == nil {
		return
	}
	joined, err := s.rooms.ListRooms(user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"joined_rooms": joined})
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	user := s.authenticated(w, r)
	if user == nil {
		return
	}
	summary, err := s.rooms.GetSummary(user, mux.Vars(r)["room"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) joinHandler(w http.ResponseWriter, r *http.Request) {
	user := s.authenticated(w, r)
	if user == nil {
		return
	}
	req := reasonRequest{}
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.rooms.JoinRoom(user, mux.Vars(r)["room"], req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) leaveHandler(w http.ResponseWriter, r *http.Request) {
	user := s.authenticated(w, r)
	if user == nil {
		return
	}
	req := reasonRequest{}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.rooms.LeaveRoom(user, mux.Vars(r)["room"], req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) knockHandler(w http.ResponseWriter, r *http.Request) {
	user := s.authenticated(w, r)
	if user == nil {
		return
	}
	req := reasonRequest{}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.rooms.KnockRoom(user, mux.Vars(r)["room"], req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) targetedMembership(w http.ResponseWriter, r *http.Request, op func(user *types.Identity, roomId, target, reason string) error) {
	user := s.authenticated(w, r)
	if user == nil {
		return
	}
	req := targetRequest{}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserId == "" {
		writeError(w, types.Validation("user_id is required"))
		return
	}
	if err := op(user, mux.Vars(r)["room"], req.UserId, req.Reason); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) inviteHandler(w http.ResponseWriter, r *http.Request) {
	s.targetedMembership(w, r, s.rooms.InviteUser)
}

func (s *Server) kickHandler(w http.ResponseWriter, r *http.Request) {
	s.targetedMembership(w, r, s.rooms.KickUser)
}

func (s *Server) banHandler(w http.ResponseWriter, r *http.Request) {
	s.targetedMembership(w, r, s.rooms.BanUser)
}

func (s *Server) unbanHandler(w http.ResponseWriter, r *http.Request) {
	s.targetedMembership(w, r, func(user *types.Identity, roomId, target, _ string) error {
		return s.rooms.UnbanUser(user, roomId, target)
	})
}

func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	user := s.authenticated(w, r)
	if user == nil {
		return
	}
	content := types.MessageContent{}
	if !decodeBody(w, r, &content) {
		return
	}
	resp, err := s.rooms.SendMessage(user, mux.Vars(r)["room"], &content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) sendStateHandler(w http.ResponseWriter, r *http.Request) {
	user := s.authenticated(w, r)
	if user == nil {
		return
	}
	content := json.RawMessage{}
	if !decodeBody(w, r, &content) {
		return
	}
	vars := mux.Vars(r)
	resp, err := s.rooms.SendStateEvent(user, vars["room"], vars["eventType"], vars["stateKey"], content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	user := s.authenticated(w, r)
	if user == nil {
		return
	}
	vals := r.URL.Query()
	var fromTs, toTs time.Time
	if v := vals.Get("from_ts"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, types.Validation("invalid from_ts: %s", v))
			return
		}
		fromTs = time.Unix(0, ms*int64(time.Millisecond))
	}
	if v := vals.Get("to_ts"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, types.Validation("invalid to_ts: %s", v))
			return
		}
		toTs = time.Unix(0, ms*int64(time.Millisecond))
	}
	fromIdx, _ := strconv.Atoi(vals.Get("from_idx"))
	limit, _ := strconv.Atoi(vals.Get("limit"))
	resp, err := s.rooms.GetMessages(user, mux.Vars(r)["room"], fromTs, toTs, fromIdx, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamHandler upgrades the request to a websocket and streams the room's
// committed events through the client's optional filter expression.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	user := s.authenticated(w, r)
	if user == nil {
		return
	}
	roomId := mux.Vars(r)["room"]
	summary, err := s.rooms.GetSummary(user, roomId)
	if err != nil {
		writeError(w, err)
		return
	}

	var filterProg *vm.Program
	if expression := r.URL.Query().Get("filter"); expression != "" {
		filterProg, err = filter.Compile(expression)
		if err != nil {
			writeError(w, types.Validation("could not compile filter: %s", err))
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}

	client := ws.NewClient(s.hub, conn, summary.RoomId, user.UserId, filterProg)
	s.hub.Register <- client
	go client.WriteLoop()
	go client.ReadLoop()
}
