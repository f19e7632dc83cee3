package rpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"blueprint/internal/blueprint"
	"blueprint/internal/gateway/middleware"
	"blueprint/internal/util/jsonutil"
)

// BlueprintClient calls the blueprint service as the given requester.
type BlueprintClient struct {
	request   *connect.Client[blueprint.GenerationRequest, blueprint.GenerationResult]
	get       *connect.Client[GetBlueprintRequest, blueprint.Document]
	requester blueprint.Requester
}

func NewBlueprintClient(httpClient connect.HTTPClient, baseURL string, requester blueprint.Requester) *BlueprintClient {
	baseURL = strings.TrimRight(baseURL, "/")
	codec := connect.WithCodec(jsonutil.Codec{})
	return &BlueprintClient{
		request:   connect.NewClient[blueprint.GenerationRequest, blueprint.GenerationResult](httpClient, baseURL+RequestBlueprintProcedure, codec),
		get:       connect.NewClient[GetBlueprintRequest, blueprint.Document](httpClient, baseURL+GetBlueprintProcedure, codec),
		requester: requester,
	}
}

func (c *BlueprintClient) RequestBlueprint(ctx context.Context, req blueprint.GenerationRequest) (blueprint.GenerationResult, error) {
	r := connect.NewRequest(&req)
	c.identify(r.Header())
	res, err := c.request.CallUnary(ctx, r)
	if err != nil {
		return blueprint.GenerationResult{}, err
	}
	return *res.Msg, nil
}

func (c *BlueprintClient) GetBlueprint(ctx context.Context, id string) (blueprint.Document, error) {
	r := connect.NewRequest(&GetBlueprintRequest{BlueprintID: id})
	c.identify(r.Header())
	res, err := c.get.CallUnary(ctx, r)
	if err != nil {
		return blueprint.Document{}, err
	}
	return *res.Msg, nil
}

func (c *BlueprintClient) identify(h http.Header) {
	if c.requester.UserID != "" {
		h.Set(middleware.HeaderUserID, c.requester.UserID)
	}
	if c.requester.Email != "" {
		h.Set(middleware.HeaderUserEmail, c.requester.Email)
	}
	if c.requester.DisplayName != "" {
		h.Set(middleware.HeaderUserName, c.requester.DisplayName)
	}
}
