package emulator

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/firestore-admin/internal/transport"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders err as a Google JSON error envelope. Errors without
// a gRPC status become INTERNAL and are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := transport.Envelope(err)
	if code >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, code, body)
}

// writeStream writes streamed results the way the REST surface does: one
// JSON array holding every message.
func writeStream[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}
