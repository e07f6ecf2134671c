package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"huddle/pkg/api/handlers"
	"huddle/pkg/auth"
	"huddle/pkg/notify"
	"huddle/pkg/service"
	"huddle/pkg/store"
)

// Handler assembles the full HTTP surface: probes and metrics outside
// the signed-identity requirement, the /v1 conversation API behind it,
// and the whole tree behind the API-key gateway.
func Handler(svc *service.Service, hub *notify.Hub, sec auth.SecConfig, docsPath string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !store.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if docsPath != "" {
		r.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, req *http.Request) {
			http.ServeFile(w, req, docsPath)
		}).Methods(http.MethodGet)
		r.PathPrefix("/docs/").Handler(httpSwagger.Handler(
			httpSwagger.URL("/openapi.yaml"),
		))
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.RequireSignedUser)

	handlers.RegisterConversations(v1, svc)
	handlers.RegisterChannels(v1, svc)
	handlers.RegisterSupport(v1, svc)
	handlers.RegisterUnread(v1, svc)
	handlers.RegisterSigning(v1)

	admin := v1.PathPrefix("/admin").Subrouter()
	handlers.RegisterAdminSupport(admin, svc)

	ev := newEventsHandler(svc, hub)
	v1.HandleFunc("/events", ev.serve).Methods(http.MethodGet)

	return auth.AuthenticateRequestMiddleware(sec)(r)
}
