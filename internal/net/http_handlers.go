package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"ccw/server/internal/combo"
	"ccw/server/internal/net/proto"
	"ccw/server/internal/telemetry"
	"ccw/server/logging"
)

// ComboView is one active combo as reported by /diagnostics.
type ComboView struct {
	Actor string          `json:"actor"`
	State proto.StateView `json:"state"`
}

// Diagnostics is the payload served on /diagnostics.
type Diagnostics struct {
	Tick            uint64              `json:"tick"`
	TickRate        int                 `json:"tickRate"`
	ActiveCombos    int                 `json:"activeCombos"`
	Combos          []ComboView         `json:"combos"`
	BufferedActors  int                 `json:"bufferedActors"`
	PendingCommands int                 `json:"pendingCommands"`
	Sessions        int                 `json:"sessions"`
	ClipSets        []string            `json:"clipSets"`
	Metrics         map[string]uint64   `json:"metrics"`
	Router          logging.RouterStats `json:"router"`
}

// DiagnosticsSource assembles the current diagnostics snapshot.
type DiagnosticsSource interface {
	DiagnosticsSnapshot() Diagnostics
}

// DiagnosticsFunc adapts a function into a DiagnosticsSource.
type DiagnosticsFunc func() Diagnostics

func (f DiagnosticsFunc) DiagnosticsSnapshot() Diagnostics {
	return f()
}

// CombosView converts machine snapshots for the wire.
func CombosView(states []combo.ActorState) []ComboView {
	out := make([]ComboView, 0, len(states))
	for _, entry := range states {
		out = append(out, ComboView{Actor: entry.Actor, State: proto.NewStateView(entry.State)})
	}
	return out
}

type HTTPHandlerConfig struct {
	Logger      telemetry.Logger
	Diagnostics DiagnosticsSource
	// WebSocket serves /ws when set.
	WebSocket nethttp.HandlerFunc
}

func NewHTTPHandler(cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		var snapshot Diagnostics
		if cfg.Diagnostics != nil {
			snapshot = cfg.Diagnostics.DiagnosticsSnapshot()
		}
		if snapshot.Combos == nil {
			snapshot.Combos = []ComboView{}
		}

		payload := struct {
			Status     string `json:"status"`
			ServerTime int64  `json:"serverTime"`
			Diagnostics
		}{
			Status:      "ok",
			ServerTime:  time.Now().UnixMilli(),
			Diagnostics: snapshot,
		}

		data, err := json.Marshal(payload)
		if err != nil {
			logger.Printf("failed to encode diagnostics: %v", err)
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	if cfg.WebSocket != nil {
		mux.HandleFunc("/ws", cfg.WebSocket)
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
