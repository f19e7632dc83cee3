package server

import (
	"net/http"

	"blueprint/internal/gateway/handler/rpc"
	"blueprint/internal/gateway/middleware"
)

func NewMux(blueprintHandler *rpc.BlueprintHandler, watchHandler *rpc.WatchHandler, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	// RPC Handlers
	mux.Handle(rpc.NewBlueprintServiceHandler(blueprintHandler))

	// Status stream
	mux.HandleFunc("/blueprints/watch", watchHandler.HandleWatchWS)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Middleware
	return middleware.CORS(corsOrigins)(middleware.Identity(mux))
}
