package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/DoyleJ11/handfill/internal/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: msg})
}

func document(snap docstore.Snapshot) types.DocumentResponse {
	return types.DocumentResponse{Key: snap.Key, Version: snap.Version, Room: snap.Room}
}

func codeParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	code, err := room.NormalizeCode(chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return code, true
}

func GetRoom(s docstore.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, ok := codeParam(w, r)
		if !ok {
			return
		}
		snap, err := s.Get(r.Context(), code)
		if err != nil {
			logger.Error("get failed", zap.String("code", code), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, document(snap))
	}
}

func ListRooms(s docstore.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keys, err := s.Keys(r.Context())
		if err != nil {
			logger.Error("list failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, types.KeysResponse{Keys: keys})
	}
}

// PutRoom commits a document if the caller's expected version is still current.
func PutRoom(s docstore.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, ok := codeParam(w, r)
		if !ok {
			return
		}
		var req types.PutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		if req.Room == nil {
			writeError(w, http.StatusBadRequest, "missing room")
			return
		}
		commit(w, r, s, logger, code, req.ExpectedVersion, req.Room)
	}
}

// DeleteRoom removes a document; the expected version travels as ?expectedVersion=N.
func DeleteRoom(s docstore.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, ok := codeParam(w, r)
		if !ok {
			return
		}
		expected, err := strconv.ParseInt(r.URL.Query().Get("expectedVersion"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad expectedVersion")
			return
		}
		commit(w, r, s, logger, code, expected, nil)
	}
}

func commit(w http.ResponseWriter, r *http.Request, s docstore.Store, logger *zap.Logger, code string, expected int64, doc *room.Room) {
	snap, err := s.CompareAndSwap(r.Context(), code, expected, doc)
	switch {
	case errors.Is(err, docstore.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		logger.Error("commit failed", zap.String("code", code), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store unavailable")
	default:
		writeJSON(w, http.StatusOK, document(snap))
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
