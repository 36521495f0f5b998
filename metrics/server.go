package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
	"uniswap-v2-crawler/logger"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type healthResponse struct {
	Status   string     `json:"status"`
	Uptime   string     `json:"uptime"`
	Progress []Progress `json:"progress"`
}

func (c *Collector) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/health", c.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/progress/{collection}", c.handleProgress).Methods(http.MethodGet)
	return r
}

func (c *Collector) handleHealth(writer http.ResponseWriter, _ *http.Request) {
	progress := c.Progress()
	sort.Slice(progress, func(i, j int) bool { return progress[i].Collection < progress[j].Collection })

	writeJSON(writer, http.StatusOK, healthResponse{
		Status:   "healthy",
		Uptime:   time.Since(c.started).Round(time.Second).String(),
		Progress: progress,
	})
}

func (c *Collector) handleProgress(writer http.ResponseWriter, request *http.Request) {
	collection := mux.Vars(request)["collection"]

	c.mu.RLock()
	p, ok := c.progress[collection]
	c.mu.RUnlock()
	if !ok {
		http.Error(writer, "unknown collection", http.StatusNotFound)
		return
	}

	writeJSON(writer, http.StatusOK, p)
}

func writeJSON(writer http.ResponseWriter, status int, v interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		logger.Error("Error writing response: %s", err)
	}
}

// Serve exposes the router on address until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:         address,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler:      c.Router(),
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on %s", address)
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		return errors.Wrap(err, "metrics server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "metrics server shutdown")
	}
	return nil
}
