package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"blueprint/internal/blueprint"
	"blueprint/internal/gateway/middleware"
	"blueprint/internal/util/jsonutil"
)

const (
	BlueprintServiceName = "blueprint.v1.BlueprintService"

	RequestBlueprintProcedure = "/" + BlueprintServiceName + "/RequestBlueprint"
	GetBlueprintProcedure     = "/" + BlueprintServiceName + "/GetBlueprint"
)

// BlueprintService is the pipeline surface the handler exposes.
type BlueprintService interface {
	RequestGeneration(ctx context.Context, req blueprint.GenerationRequest, requester blueprint.Requester) (blueprint.GenerationResult, error)
	Get(ctx context.Context, id string) (blueprint.Document, error)
}

type GetBlueprintRequest struct {
	BlueprintID string `json:"blueprintId"`
}

type BlueprintHandler struct {
	svc BlueprintService
}

func NewBlueprintHandler(svc BlueprintService) *BlueprintHandler {
	return &BlueprintHandler{svc: svc}
}

func (h *BlueprintHandler) RequestBlueprint(ctx context.Context, req *connect.Request[blueprint.GenerationRequest]) (*connect.Response[blueprint.GenerationResult], error) {
	requester, _ := middleware.RequesterFrom(ctx)
	out, err := h.svc.RequestGeneration(ctx, *req.Msg, requester)
	if err != nil {
		return nil, toBlueprintError(err)
	}
	return connect.NewResponse(&out), nil
}

func (h *BlueprintHandler) GetBlueprint(ctx context.Context, req *connect.Request[GetBlueprintRequest]) (*connect.Response[blueprint.Document], error) {
	if _, ok := middleware.RequesterFrom(ctx); !ok {
		return nil, toBlueprintError(blueprint.ErrUnauthenticated)
	}
	id := strings.TrimSpace(req.Msg.BlueprintID)
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("blueprintId is required"))
	}
	doc, err := h.svc.Get(ctx, id)
	if err != nil {
		return nil, toBlueprintError(err)
	}
	return connect.NewResponse(&doc), nil
}

// NewBlueprintServiceHandler mounts the unary procedures under the service
// path, with the JSON codec for plain Go messages.
func NewBlueprintServiceHandler(h *BlueprintHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonutil.Codec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(RequestBlueprintProcedure, connect.NewUnaryHandler(RequestBlueprintProcedure, h.RequestBlueprint, opts...))
	mux.Handle(GetBlueprintProcedure, connect.NewUnaryHandler(GetBlueprintProcedure, h.GetBlueprint, opts...))
	return "/" + BlueprintServiceName + "/", mux
}

func toBlueprintError(err error) error {
	switch {
	case errors.Is(err, blueprint.ErrUnauthenticated):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case blueprint.IsValidation(err):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, blueprint.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	default:
		return connect.NewError(connect.CodeInternal, fmt.Errorf("blueprint service failed: %w", err))
	}
}
