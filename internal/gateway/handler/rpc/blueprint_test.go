package rpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"blueprint/internal/blueprint"
	"blueprint/internal/gateway/middleware"
	"blueprint/internal/gateway/repository/topic"
)

type fakeService struct {
	mu        sync.Mutex
	requester blueprint.Requester
	docs      map[string]blueprint.Document
}

func (f *fakeService) RequestGeneration(_ context.Context, req blueprint.GenerationRequest, requester blueprint.Requester) (blueprint.GenerationResult, error) {
	if requester.UserID == "" {
		return blueprint.GenerationResult{}, blueprint.ErrUnauthenticated
	}
	if err := req.Normalize(); err != nil {
		return blueprint.GenerationResult{}, err
	}
	f.mu.Lock()
	f.requester = requester
	f.mu.Unlock()
	return blueprint.GenerationResult{BlueprintID: req.EngagementID + "-1", Status: blueprint.StatusProcessing, PayloadPath: "blueprints/" + req.EngagementID + "/1/payload.json"}, nil
}

func (f *fakeService) Get(_ context.Context, id string) (blueprint.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return blueprint.Document{}, blueprint.ErrNotFound
	}
	return doc, nil
}

func newTestServer(t *testing.T, svc *fakeService, broker *topic.Broker) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(NewBlueprintServiceHandler(NewBlueprintHandler(svc)))
	if broker != nil {
		mux.HandleFunc("/blueprints/watch", NewWatchHandler(svc, broker).HandleWatchWS)
	}
	srv := httptest.NewServer(middleware.Identity(mux))
	t.Cleanup(srv.Close)
	return srv
}

var caller = blueprint.Requester{UserID: "u-1", Email: "c@example.com"}

func TestRequestBlueprintPassesCallerIdentity(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, nil)
	client := NewBlueprintClient(srv.Client(), srv.URL, caller)

	res, err := client.RequestBlueprint(context.Background(), blueprint.GenerationRequest{EngagementID: "E1"})
	require.NoError(t, err)
	require.Equal(t, "E1-1", res.BlueprintID)
	require.Equal(t, blueprint.StatusProcessing, res.Status)
	require.Equal(t, caller.Email, svc.requester.Email)
}

func TestRequestBlueprintErrorCodes(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, nil)

	_, err := NewBlueprintClient(srv.Client(), srv.URL, blueprint.Requester{}).
		RequestBlueprint(context.Background(), blueprint.GenerationRequest{EngagementID: "E1"})
	require.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = NewBlueprintClient(srv.Client(), srv.URL, caller).
		RequestBlueprint(context.Background(), blueprint.GenerationRequest{EngagementID: "E1", ExecutiveTone: strings.Repeat("x", 200)})
	require.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	require.Contains(t, err.Error(), "executiveTone")
}

func TestGetBlueprint(t *testing.T) {
	svc := &fakeService{docs: map[string]blueprint.Document{
		"B1": {ID: "B1", EngagementID: "E1", Status: blueprint.StatusFailed, Error: &blueprint.StageError{Message: "renderer crashed", Stage: blueprint.StageRender}},
	}}
	srv := newTestServer(t, svc, nil)
	client := NewBlueprintClient(srv.Client(), srv.URL, caller)

	doc, err := client.GetBlueprint(context.Background(), "B1")
	require.NoError(t, err)
	require.Equal(t, blueprint.StatusFailed, doc.Status)
	require.Equal(t, "renderer crashed", doc.Error.Message)

	_, err = client.GetBlueprint(context.Background(), "missing")
	require.Equal(t, connect.CodeNotFound, connect.CodeOf(err))
}

func TestWatchStreamsUntilTerminalStatus(t *testing.T) {
	broker := topic.NewBroker(topic.Config{})
	t.Cleanup(func() { broker.Close(context.Background()) })
	svc := &fakeService{docs: map[string]blueprint.Document{"B1": {ID: "B1", Status: blueprint.StatusProcessing}}}
	srv := newTestServer(t, svc, broker)

	header := http.Header{}
	header.Set(middleware.HeaderUserID, caller.UserID)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/blueprints/watch?blueprint_id=B1"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first watchWSOutbound
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, blueprint.StatusProcessing, first.Status)

	ctx := context.Background()
	require.NoError(t, broker.Publish(ctx, blueprint.TopicStatus, blueprint.StatusEvent{BlueprintID: "other", Status: blueprint.StatusRendered}))
	require.NoError(t, broker.Publish(ctx, blueprint.TopicStatus, blueprint.StatusEvent{BlueprintID: "B1", Status: blueprint.StatusSucceeded}))

	var next watchWSOutbound
	require.NoError(t, conn.ReadJSON(&next))
	require.Equal(t, "B1", next.BlueprintID)
	require.Equal(t, blueprint.StatusSucceeded, next.Status)

	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestWatchRequiresIdentity(t *testing.T) {
	broker := topic.NewBroker(topic.Config{})
	t.Cleanup(func() { broker.Close(context.Background()) })
	srv := newTestServer(t, &fakeService{}, broker)
	res, err := http.Get(srv.URL + "/blueprints/watch?blueprint_id=B1")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}
