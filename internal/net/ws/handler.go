package ws

import (
	"context"
	nethttp "net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"ccw/server/internal/net/intake"
	"ccw/server/internal/net/proto"
	"ccw/server/internal/sim"
	"ccw/server/internal/telemetry"
	"ccw/server/logging"
	"ccw/server/logging/network"
)

type HandlerConfig struct {
	Logger       telemetry.Logger
	Publisher    logging.Publisher
	WriteTimeout time.Duration
}

type Handler struct {
	hub       *Hub
	stager    intake.Stager
	logger    telemetry.Logger
	publisher logging.Publisher
	timeout   time.Duration
	upgrader  websocket.Upgrader
}

func NewHandler(hub *Hub, stager intake.Stager, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:       hub,
		stager:    stager,
		logger:    logger,
		publisher: publisher,
		timeout:   cfg.WriteTimeout,
		upgrader:  upgrader,
	}
}

// Handle upgrades the request and runs the session until the client leaves.
// The actor comes from the id query parameter; anonymous clients get a fresh
// UUID.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	actor := r.URL.Query().Get("id")
	if actor == "" {
		actor = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", actor, err)
		return
	}

	session := newSession(uuid.NewString(), actor, conn, h.timeout)
	h.hub.register(session)
	defer func() {
		h.hub.unregister(session)
		session.Close()
	}()

	hello, err := proto.EncodeHello(proto.Hello{Actor: actor, Tick: h.stager.Tick()})
	if err != nil {
		h.logger.Printf("failed to encode hello for %s: %v", actor, err)
		return
	}
	if err := session.WriteMessage(websocket.TextMessage, hello); err != nil {
		return
	}

	ctx := r.Context()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", actor, err)
			network.MalformedMessage(ctx, h.publisher, h.stager.Tick(), logging.ActorRef(actor), network.MalformedPayload{
				SessionID: session.id,
				Error:     err.Error(),
			})
			continue
		}

		if !h.handleMessage(ctx, session, msg) {
			return
		}
	}
}

// handleMessage stages one client command and replies when the client sent a
// sequence number. It returns false once the connection is unusable.
func (h *Handler) handleMessage(ctx context.Context, session *Session, msg proto.ClientMessage) bool {
	seq := msg.Seq()

	writeFrame := func(data []byte, err error) bool {
		if err != nil {
			h.logger.Printf("failed to marshal response for %s: %v", session.actor, err)
			return true
		}
		return session.WriteMessage(websocket.TextMessage, data) == nil
	}

	if seq > 0 {
		if last := session.LastCommandSeq(); last > 0 && seq <= last {
			return writeFrame(proto.EncodeCommandAck(proto.CommandAck{Seq: seq}))
		}
	}

	reject := func(reason string) bool {
		network.CommandRejected(ctx, h.publisher, h.stager.Tick(), logging.ActorRef(session.actor), network.CommandRejectedPayload{
			SessionID: session.id,
			Type:      msg.Type,
			Seq:       seq,
			Reason:    reason,
		})
		if seq == 0 {
			return true
		}
		retry := reason == sim.CommandRejectQueueLimit || reason == sim.CommandRejectQueueFull
		return writeFrame(proto.EncodeCommandReject(proto.CommandReject{
			Seq:    seq,
			Reason: reason,
			Retry:  retry,
			Tick:   h.stager.Tick(),
		}))
	}

	cmd, ok, reason := intake.StageClientCommand(intake.CommandContext{Stager: h.stager}, session.actor, msg)
	if !ok {
		if reason == sim.CommandRejectInvalid {
			h.logger.Printf("unknown or incomplete %q message from %s", msg.Type, session.actor)
		}
		return reject(reason)
	}
	if seq == 0 {
		return true
	}
	if !writeFrame(proto.EncodeCommandAck(proto.CommandAck{Seq: seq, Tick: cmd.OriginTick})) {
		return false
	}
	session.StoreLastCommandSeq(seq)
	return true
}
