package bookings

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kilianp07/autoaid/core/booking/journal"
	"github.com/kilianp07/autoaid/core/model"
)

// NewHistoryHandler exposes journal records via GET /api/bookings/{id}/history.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
func NewHistoryHandler(store journal.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		q := journal.Query{BookingID: r.PathValue("id")}
		if s := r.URL.Query().Get("start"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.Start = t
			}
		}
		if s := r.URL.Query().Get("end"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				q.End = t
			}
		}
		q.MechanicID = r.URL.Query().Get("mechanic_id")
		q.To = model.Status(r.URL.Query().Get("status"))
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []journal.Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}
