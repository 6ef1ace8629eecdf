// Package httpapi exposes the market-monitor process's HTTP surface:
// liveness, Prometheus metrics, and a watcher status snapshot read
// from the broker. Grounded on internal/api/routes.go's mux.NewRouter
// plus middleware composition.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/svyatogor45/marketmonitor/internal/broker"
	"github.com/svyatogor45/marketmonitor/internal/httpapi/middleware"
	"github.com/svyatogor45/marketmonitor/pkg/jsonutil"
	"github.com/svyatogor45/marketmonitor/pkg/utils"
)

const workerStatusKey = "worker:status"

// Dependencies wires the broker needed by the status endpoint. Health
// and metrics need nothing beyond the process itself.
type Dependencies struct {
	Broker broker.Broker
}

// NewRouter builds the health/metrics/status router.
func NewRouter(deps Dependencies) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/watchers", watchersHandler(deps.Broker)).Methods("GET")

	return router
}

// watchersHandler returns the Health snapshot every watcher most
// recently wrote to the worker:status hash, keyed by watch type.
func watchersHandler(b broker.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := b.HGetAll(r.Context(), workerStatusKey)
		if err != nil {
			utils.Warn("httpapi: failed to read watcher status", utils.Err(err))
			http.Error(w, "status unavailable", http.StatusServiceUnavailable)
			return
		}

		out := make(map[string]interface{}, len(entries))
		for watchType, doc := range entries {
			var health interface{}
			if err := jsonutil.UnmarshalString(doc, &health); err != nil {
				continue
			}
			out[watchType] = health
		}

		body, err := jsonutil.Marshal(out)
		if err != nil {
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}
}
