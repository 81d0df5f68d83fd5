package tycoond

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/dbpool"
	"github.com/Ts-yf/astrbot-plugin-srwolrd/pkg/store"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Router is where the API is mounted, normally the observability server.
type Router interface {
	Handle(pattern string, h http.Handler)
}

// Routes mounts the JSON API on r.
func (s *Service) Routes(r Router) {
	r.Handle("GET /players/{user}", http.HandlerFunc(s.getPlayer))
	r.Handle("PUT /players/{user}", http.HandlerFunc(s.putPlayer))
	r.Handle("GET /ranking", http.HandlerFunc(s.getRanking))
	r.Handle("GET /players/{user}/friends", http.HandlerFunc(s.getFriends))
	r.Handle("POST /players/{user}/friends", http.HandlerFunc(s.addFriend))
	r.Handle("GET /players/{user}/friend-requests", http.HandlerFunc(s.getFriendRequests))
	r.Handle("POST /players/{user}/friends/{playerID}/accept", http.HandlerFunc(s.acceptFriend))
	r.Handle("GET /debug/pool", http.HandlerFunc(s.poolStatus))
	r.Handle("POST /debug/pool/recreate", http.HandlerFunc(s.recreatePool))
}

type errorResponse struct {
	Error string `json:"error"`
}

type playerIDBody struct {
	PlayerID int64 `json:"player_id"`
}

func (s *Service) getPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Load(r.Context(), r.PathValue("user"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if p == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: store.ErrPlayerNotFound.Error()})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) putPlayer(w http.ResponseWriter, r *http.Request) {
	var p store.Player
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid player body: " + err.Error()})
		return
	}
	if p.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "name is required"})
		return
	}

	if err := s.writer.WriteAndRank(r.Context(), r.PathValue("user"), &p); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playerIDBody{PlayerID: p.PlayerID})
}

func (s *Service) getRanking(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	entries, err := s.board.Top(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Service) getFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.store.Friends(r.Context(), r.PathValue("user"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

func (s *Service) getFriendRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.store.FriendRequests(r.Context(), r.PathValue("user"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Service) addFriend(w http.ResponseWriter, r *http.Request) {
	var body playerIDBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil || body.PlayerID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "player_id is required"})
		return
	}
	if err := s.store.AddFriend(r.Context(), r.PathValue("user"), body.PlayerID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Service) acceptFriend(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.ParseInt(r.PathValue("playerID"), 10, 64)
	if err != nil || playerID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid player id"})
		return
	}
	if err := s.store.AcceptFriend(r.Context(), r.PathValue("user"), playerID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) poolStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pools.Status())
}

func (s *Service) recreatePool(w http.ResponseWriter, r *http.Request) {
	s.pools.Recreate(r.Context())
	writeJSON(w, http.StatusOK, s.pools.Status())
}

// writeError maps domain errors onto status codes. Anything unexpected is logged.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrPlayerNotFound), errors.Is(err, store.ErrRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrSelfFriend):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrFriendBlocked):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrAlreadyFriends), errors.Is(err, store.ErrRequestPending), errors.Is(err, store.ErrPlayerIDTaken):
		status = http.StatusConflict
	case errors.Is(err, dbpool.ErrPoolExhausted), errors.Is(err, dbpool.ErrPoolClosed), errors.Is(err, store.ErrLockWaitTimeout):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", err, zap.Int("status", status))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
