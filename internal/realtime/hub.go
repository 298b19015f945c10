package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/smukkama/tourist-safety/internal/events"
	"github.com/smukkama/tourist-safety/internal/metrics"
	"github.com/smukkama/tourist-safety/internal/protocol"
	"github.com/smukkama/tourist-safety/pkg/config"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096

	// touristIDHeader carries the gateway-authenticated tourist id
	touristIDHeader = "X-Tourist-ID"
)

// Hub delivers events to websocket subscribers. Every client receives
// broadcasts; clients that joined a tourist's room also receive that
// tourist's targeted events. Slow clients lose frames instead of blocking
// publishers.
type Hub struct {
	registry   *Registry
	upgrader   websocket.Upgrader
	bufferSize int
	inactivity time.Duration
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

var _ events.Sink = (*Hub)(nil)

func NewHub(cfg config.RealtimeConfig, logger *zap.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		registry: NewRegistry(cfg.MaxConnections),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		bufferSize: cfg.SendBufferSize,
		inactivity: cfg.InactivityTimeout,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// Registry exposes the connected clients.
func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Broadcast(_ context.Context, event string, payload interface{}) {
	frame, ok := h.encode(event, "", payload)
	if !ok {
		return
	}
	for _, c := range h.registry.All() {
		h.deliver(c, event, frame)
	}
}

func (h *Hub) SendToTourist(_ context.Context, touristID, event string, payload interface{}) {
	frame, ok := h.encode(event, touristID, payload)
	if !ok {
		return
	}
	for _, c := range h.registry.InRoom(touristID) {
		h.deliver(c, event, frame)
	}
}

func (h *Hub) encode(event, touristID string, payload interface{}) ([]byte, bool) {
	msg, err := protocol.NewEventMessage(event, touristID, payload, h.now())
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	frame, err := protocol.EncodeEventMessage(msg)
	if err != nil {
		h.logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	return frame, true
}

func (h *Hub) deliver(c *Client, event string, frame []byte) {
	if !c.enqueue(frame) {
		h.logger.Warn("dropping event for slow client",
			zap.String("client_id", c.ID),
			zap.String("tourist_id", c.TouristID()),
			zap.String("event", event))
	}
}

func (h *Hub) join(c *Client, touristID string) error {
	if c.identity == "" || c.identity != touristID {
		return ErrRoomNotPermitted
	}
	return h.registry.Join(c.ID, touristID)
}

// ServeWS upgrades the request and registers the client. A touristId query
// parameter joins that tourist's room immediately. Only a connection whose
// X-Tourist-ID header names the same tourist may join a room.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(uuid.NewString(), h.bufferSize)
	c.identity = r.Header.Get(touristIDHeader)
	if err := h.registry.Register(c); err != nil {
		h.logger.Warn("rejecting websocket client", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	if touristID := r.URL.Query().Get("touristId"); touristID != "" {
		if err := h.join(c, touristID); err != nil {
			h.logger.Warn("ignoring room request",
				zap.String("client_id", c.ID),
				zap.String("tourist_id", touristID),
				zap.Error(err))
		}
	}
	h.metrics.SetConnections(h.registry.Count())

	h.logger.Info("websocket client connected",
		zap.String("client_id", c.ID),
		zap.String("tourist_id", c.TouristID()))

	go h.writePump(c, conn)
	go h.readPump(c, conn)
}

func (h *Hub) readPump(c *Client, conn *websocket.Conn) {
	defer func() {
		if err := h.registry.Unregister(c.ID); err == nil {
			h.metrics.SetConnections(h.registry.Count())
			h.logger.Info("websocket client disconnected",
				zap.String("client_id", c.ID),
				zap.String("tourist_id", c.TouristID()))
		}
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		c.UpdateLastHeardFrom()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		c.UpdateLastHeardFrom()
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.handle(c, data)
	}
}

func (h *Hub) writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (h *Hub) handle(c *Client, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.ack(c, protocol.AckStatusError, err.Error())
		return
	}

	ctx := context.Background()
	now := h.now()

	switch m := msg.(type) {
	case *protocol.JoinMessage:
		if err := h.join(c, m.TouristID); err != nil {
			h.ack(c, protocol.AckStatusError, err.Error())
			return
		}
		h.logger.Info("tourist joined room",
			zap.String("client_id", c.ID),
			zap.String("tourist_id", m.TouristID))
		h.ack(c, protocol.AckStatusJoined, "")

	case *protocol.KeepaliveMessage:
		h.ack(c, protocol.AckStatusAlive, "")

	case *protocol.AcknowledgeAnomalyMessage:
		if c.identity != m.TouristID {
			h.ack(c, protocol.AckStatusError, ErrRoomNotPermitted.Error())
			return
		}
		h.logger.Info("anomaly acknowledged by user",
			zap.String("tourist_id", m.TouristID),
			zap.String("anomaly_id", m.AnomalyID))
		h.broadcastExcept(c, events.AnomalyAcknowledged, protocol.AnomalyAcknowledgedEvent{
			TouristID:    m.TouristID,
			AnomalyID:    m.AnomalyID,
			UserResponse: m.Response,
			Timestamp:    now,
		})

	case *protocol.ConfirmSafetyMessage:
		if c.identity != m.TouristID {
			h.ack(c, protocol.AckStatusError, ErrRoomNotPermitted.Error())
			return
		}
		h.logger.Info("safety confirmed by user", zap.String("tourist_id", m.TouristID))
		h.Broadcast(ctx, events.SafetyConfirmed, protocol.SafetyConfirmedEvent{
			TouristID: m.TouristID,
			Message:   m.Message,
			Timestamp: now,
		})

	case *protocol.EmergencyResponseMessage:
		h.logger.Info("emergency response received",
			zap.String("tourist_id", m.TouristID),
			zap.String("sos_id", m.SOSID))
		h.SendToTourist(ctx, m.TouristID, events.EmergencyResponse, protocol.EmergencyResponseEvent{
			SOSID:     m.SOSID,
			TouristID: m.TouristID,
			Responder: m.Responder,
			Message:   m.Message,
			ETA:       m.ETA,
			Timestamp: now,
		})
	}
}

func (h *Hub) broadcastExcept(sender *Client, event string, payload interface{}) {
	frame, ok := h.encode(event, "", payload)
	if !ok {
		return
	}
	for _, c := range h.registry.All() {
		if c.ID != sender.ID {
			h.deliver(c, event, frame)
		}
	}
}

func (h *Hub) ack(c *Client, status, errMsg string) {
	frame, err := protocol.EncodeMessage(protocol.AckMessage{Type: protocol.MsgTypeAck, Status: status, Error: errMsg})
	if err != nil {
		return
	}
	c.enqueue(frame)
}

// Run disconnects clients that have been silent longer than the inactivity
// timeout until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	if h.inactivity <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(h.inactivity / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, c := range h.registry.All() {
				_ = h.registry.Unregister(c.ID)
			}
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

func (h *Hub) sweep() {
	for _, id := range h.registry.InactiveClients(h.inactivity) {
		if err := h.registry.Unregister(id); err == nil {
			h.logger.Info("closing inactive websocket client", zap.String("client_id", id))
		}
	}
	h.metrics.SetConnections(h.registry.Count())
}
