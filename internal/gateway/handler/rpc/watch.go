package rpc

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"blueprint/internal/blueprint"
	"blueprint/internal/gateway/middleware"
	"blueprint/internal/gateway/repository/topic"
)

// StatusSubscriber is the subscription side of the topic broker.
type StatusSubscriber interface {
	Subscribe(topic string, handler topic.Handler, opts ...topic.SubscribeOption) (func(), error)
}

// WatchHandler streams status changes of one blueprint over a websocket.
// The stream starts with the current document status and ends after a
// terminal status.
type WatchHandler struct {
	svc  BlueprintService
	subs StatusSubscriber
}

func NewWatchHandler(svc BlueprintService, subs StatusSubscriber) *WatchHandler {
	return &WatchHandler{svc: svc, subs: subs}
}

const (
	watchWSWriteWait = 10 * time.Second
	watchWSPongWait  = 60 * time.Second
	watchWSPingEvery = (watchWSPongWait * 9) / 10
)

var watchWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type watchWSOutbound struct {
	Type        string           `json:"type"`
	BlueprintID string           `json:"blueprintId,omitempty"`
	Status      blueprint.Status `json:"status,omitempty"`
	Message     string           `json:"message,omitempty"`
	Code        string           `json:"code,omitempty"`
	At          *time.Time       `json:"at,omitempty"`
}

func (h *WatchHandler) HandleWatchWS(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.RequesterFrom(r.Context()); !ok {
		http.Error(w, "caller identity is required", http.StatusUnauthorized)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("blueprint_id"))
	if id == "" {
		http.Error(w, "blueprint_id is required", http.StatusBadRequest)
		return
	}

	conn, err := watchWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(watchWSPongWait)); err != nil {
		log.Printf("watch ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchWSPongWait))
	})

	writeCh := make(chan watchWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(watchWSPingEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
				if out.Type == "error" || out.Status.Terminal() {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(watchWSWriteWait))
					cancel()
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Subscribe before reading the document so no transition falls between.
	unsubscribe, err := h.subs.Subscribe(blueprint.TopicStatus, func(_ context.Context, msg topic.Message) error {
		var ev blueprint.StatusEvent
		if err := msg.Decode(&ev); err != nil || ev.BlueprintID != id {
			return nil
		}
		at := ev.At
		pushWatchWS(writeCh, watchWSOutbound{Type: "status", BlueprintID: id, Status: ev.Status, Message: ev.Message, At: &at})
		return nil
	}, topic.WithWorkers(1))
	if err != nil {
		pushWatchWS(writeCh, watchWSOutbound{Type: "error", Code: "unavailable", Message: err.Error()})
		<-writerDone
		return
	}
	defer unsubscribe()

	doc, err := h.svc.Get(ctx, id)
	if err != nil {
		pushWatchWS(writeCh, watchWSOutbound{Type: "error", Code: "not_found", Message: err.Error()})
		<-writerDone
		return
	}
	out := watchWSOutbound{Type: "status", BlueprintID: id, Status: doc.Status}
	if doc.Error != nil {
		out.Message = doc.Error.Message
	}
	pushWatchWS(writeCh, out)

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()
	<-writerDone
}

func pushWatchWS(writeCh chan watchWSOutbound, out watchWSOutbound) {
	select {
	case writeCh <- out:
		return
	default:
	}
	select {
	case <-writeCh:
	default:
	}
	select {
	case writeCh <- out:
	default:
	}
}
