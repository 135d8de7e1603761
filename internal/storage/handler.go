package storage

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// RoutePrefix is the path the artifact handler is mounted on.
const RoutePrefix = "/artifacts/"

// Handler serves objects from r under RoutePrefix.
func Handler(r Reader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	router := mux.NewRouter()
	router.Methods(http.MethodGet, http.MethodHead).
		Path(RoutePrefix + "{key:.+}").
		HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			key := mux.Vars(req)["key"]
			obj, err := r.Get(req.Context(), key)
			if errors.Is(err, ErrNotFound) {
				http.NotFound(w, req)
				return
			}
			if err != nil {
				logger.Error("artifact lookup failed", "key", key, "err", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", obj.ContentType)
			w.Header().Set("Cache-Control", "public, max-age=86400")
			http.ServeContent(w, req, key, obj.CreatedAt, bytes.NewReader(obj.Data))
		})
	return router
}
