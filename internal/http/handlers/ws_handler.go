// README: Websocket subscriptions to pickup, worker and customer topics.
package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dispatch/internal/logger"
	"dispatch/internal/modules/assignment"
	"dispatch/internal/modules/broadcast"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 4096
)

const (
	msgGetStatus        = "get_status"
	msgGetNotifications = "get_notifications"
)

type clientMessage struct {
	Type string `json:"type"`
}

type WSHandler struct {
	hub        *broadcast.Hub
	assignment *assignment.Service
	upgrader   websocket.Upgrader
}

// NewWSHandler accepts browser origins listed in allowedOrigins ("*"
// accepts any). Same-host origins and clients that send no Origin header
// are always accepted.
func NewWSHandler(hub *broadcast.Hub, assignmentSvc *assignment.Service, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:        hub,
		assignment: assignmentSvc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	anyOrigin := false
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		switch o {
		case "":
		case "*":
			anyOrigin = true
		default:
			set[o] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || anyOrigin {
			return true
		}
		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Subscribe upgrades the request and streams every event on the topic
// until either side closes. Pickup subscribers get the current snapshot on
// join and again whenever they send {"type":"get_status"}; customer
// subscribers get their recent pickups on {"type":"get_notifications"}.
func (h *WSHandler) Subscribe(c *gin.Context) {
	family, err := broadcast.ParseFamily(c.Param("family"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	topic := broadcast.Topic{Family: family, ID: id}
	if family == broadcast.FamilyPickup {
		if _, err := h.assignment.Get(c.Request.Context(), id); err != nil {
			writeServiceError(c, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.String("topic", topic.String()), logger.Err(err))
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe(topic)
	defer sub.Close()
	logger.Debug("websocket joined", logger.String("topic", topic.String()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requests := make(chan string, 4)
	if family == broadcast.FamilyPickup {
		requests <- msgGetStatus
	}
	go h.readLoop(conn, cancel, requests)

	h.writeLoop(ctx, conn, sub, requests)
	logger.Debug("websocket left", logger.String("topic", topic.String()))
}

// readLoop forwards recognised requests; a full queue drops the request.
func (h *WSHandler) readLoop(conn *websocket.Conn, cancel context.CancelFunc, requests chan<- string) {
	defer cancel()
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Type {
		case msgGetStatus, msgGetNotifications:
			select {
			case requests <- msg.Type:
			default:
			}
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscription, requests <-chan string) {
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok || h.write(conn, ev) != nil {
				return
			}
		case req := <-requests:
			ev, ok := h.answer(ctx, sub.Topic(), req)
			if !ok {
				continue
			}
			if h.write(conn, ev) != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// answer builds the reply to a client request. Requests that do not apply
// to the topic family are ignored.
func (h *WSHandler) answer(ctx context.Context, topic broadcast.Topic, req string) (broadcast.Event, bool) {
	switch {
	case req == msgGetStatus && topic.Family == broadcast.FamilyPickup:
		p, err := h.assignment.Get(ctx, topic.ID)
		if err != nil {
			logger.Warn("websocket status lookup failed", logger.String("pickup_id", string(topic.ID)), logger.Err(err))
			return broadcast.Event{}, false
		}
		return broadcast.InitialStatus(p, time.Now()), true
	case req == msgGetNotifications && topic.Family == broadcast.FamilyCustomer:
		pickups, err := h.assignment.RecentForCustomer(ctx, topic.ID)
		if err != nil {
			logger.Warn("websocket notifications lookup failed", logger.String("customer_id", string(topic.ID)), logger.Err(err))
			return broadcast.Event{}, false
		}
		return broadcast.Notifications(topic.ID, pickups, time.Now()), true
	}
	return broadcast.Event{}, false
}

func (h *WSHandler) write(conn *websocket.Conn, ev broadcast.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(ev)
}
