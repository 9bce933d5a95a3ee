package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/handfill/internal/docstore"
	"github.com/DoyleJ11/handfill/internal/room"
	"github.com/DoyleJ11/handfill/internal/types"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Handler streams every snapshot of one room to the connected client until either side leaves.
func Handler(s docstore.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := room.NormalizeCode(chi.URLParam(r, "code"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		snaps, err := s.Watch(ctx, code)
		if err != nil {
			logger.Warn("watch failed", zap.String("code", code), zap.Error(err))
			payload, _ := json.Marshal(types.ServerMessage{Type: types.MsgError, Key: code, Error: "watch failed"})
			_ = conn.Write(ctx, websocket.MessageText, payload)
			return
		}

		// Reader loop: watchers never send, but reading is how a close from the peer is noticed.
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.Read(ctx); err != nil {
					return
				}
			}
		}()

		for snap := range snaps {
			msg := types.ServerMessage{Type: types.MsgSnapshot, Key: snap.Key, Version: snap.Version, Room: snap.Room}
			payload, err := json.Marshal(msg)
			if err != nil {
				logger.Error("encode snapshot", zap.String("code", code), zap.Error(err))
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
			if err != nil {
				return
			}
		}
	}
}
