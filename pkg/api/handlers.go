package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/0xmhha/explorer-go/pkg/params"
	"github.com/0xmhha/explorer-go/pkg/query"
	"github.com/0xmhha/explorer-go/pkg/request"
	"github.com/0xmhha/explorer-go/pkg/search"
)

// maxSearchBodyBytes caps the size of a search request body
const maxSearchBodyBytes = 1 << 16

// ExploreResponse is returned by every session endpoint
type ExploreResponse struct {
	Session string      `json:"session"`
	View    search.View `json:"view"`
	Alerts  []string    `json:"alerts,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// SearchRequest is the body of POST /api/search
type SearchRequest struct {
	Query string `json:"query"`
}

// ClassifyResponse describes how a query would be handled
type ClassifyResponse struct {
	Query        string              `json:"query"`
	Kind         query.Kind          `json:"kind"`
	ExplorerPath string              `json:"explorerPath,omitempty"`
	Params       params.Params       `json:"params,omitempty"`
	Request      *request.Descriptor `json:"request,omitempty"`
}

// ErrorResponse is the body of failed non-session requests
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a controller error onto an HTTP status
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, search.ErrInvalidInput), errors.Is(err, search.ErrInvalidPage), errors.Is(err, query.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrBusy), errors.Is(err, search.ErrStaleResponse):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// sessionOp runs op against the request session and writes the resulting view
// together with the alerts it raised.
func (s *Server) sessionOp(w http.ResponseWriter, r *http.Request, op func(*Session) (search.View, error)) {
	sess, err := s.sessions.FromRequest(w, r)
	if err != nil {
		s.logger.Error("failed to create session", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to create session"})
		return
	}

	before := len(sess.Alerts.Messages())
	view, opErr := op(sess)

	resp := ExploreResponse{Session: sess.ID, View: view}
	if msgs := sess.Alerts.Messages(); len(msgs) > before {
		resp.Alerts = msgs[before:]
	}
	if opErr != nil {
		resp.Error = search.UserMessage(opErr, view.State.QueryNode)
	}
	writeJSON(w, statusFor(opErr), resp)
}

// handleExplore applies the request query string as the session's external
// parameters
func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	p := params.FromValues(r.URL.Query())
	s.sessionOp(w, r, func(sess *Session) (search.View, error) {
		err := sess.Controller.Router().Navigate(r.Context(), p)
		return sess.Controller.View(), err
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	s.sessionOp(w, r, func(sess *Session) (search.View, error) {
		return sess.Controller.Search(r.Context(), req.Query)
	})
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, func(sess *Session) (search.View, error) {
		return sess.Controller.NextPage(r.Context())
	})
}

func (s *Server) handlePrev(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, func(sess *Session) (search.View, error) {
		return sess.Controller.PrevPage(r.Context())
	})
}

// handleView returns the current view without fetching
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.sessionOp(w, r, func(sess *Session) (search.View, error) {
		return sess.Controller.View(), nil
	})
}

// handleClassify reports the kind, explorer path and query node request of
// a query without running it
func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	node := r.URL.Query().Get(params.KeyQueryNode)
	if node == "" {
		node = s.config.QueryNode
	}

	state := query.NewState(node, q)
	resp := ClassifyResponse{
		Query:        q,
		Kind:         state.Kind,
		ExplorerPath: params.ExplorerPath(state),
	}
	if p, err := params.Encode(state); err == nil {
		resp.Params = p
	}
	if desc, err := s.builder.Build(state); err == nil {
		resp.Request = desc
	}

	status := http.StatusOK
	if state.Kind == query.KindInvalid {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// handleWebSocket attaches a websocket client to an existing session, named
// by the session cookie or the session query parameter
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if c, err := r.Cookie(s.config.SessionCookie); err == nil && id == "" {
		id = c.Value
	}

	sess, ok := s.sessions.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "unknown session"})
		return
	}
	s.wsServer.ServeSession(w, r, sess.ID)
}
