// Package mechanics exposes mechanic presence and offer responses over HTTP.
package mechanics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kilianp07/autoaid/api/respond"
	"github.com/kilianp07/autoaid/auth"
	"github.com/kilianp07/autoaid/core/model"
	"github.com/kilianp07/autoaid/core/offer"
)

// Service receives mechanic traffic.
type Service interface {
	Heartbeat(ctx context.Context, hb model.Heartbeat) error
	RespondToOffer(ctx context.Context, resp offer.Response) error
}

// Lister returns the registry snapshot.
type Lister interface {
	List() []model.Mechanic
}

// Verifier authenticates bearer tokens.
type Verifier interface {
	FromRequest(r *http.Request) (*auth.Claims, error)
}

type handler struct {
	svc    Service
	list   Lister
	verify Verifier
}

// Register mounts the mechanic routes on mux. When v is not nil the
// token subject must be the mechanic the request speaks for.
func Register(mux *http.ServeMux, svc Service, list Lister, v Verifier) {
	h := &handler{svc: svc, list: list, verify: v}
	mux.HandleFunc("POST /api/mechanics/heartbeat", h.heartbeat)
	mux.HandleFunc("GET /api/mechanics", h.mechanics)
	mux.HandleFunc("POST /api/offers/respond", h.respond)
}

func (h *handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	var hb model.Heartbeat
	if err := respond.Decode(r, &hb); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.authorize(r, hb.MechanicID); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.svc.Heartbeat(r.Context(), hb); err != nil {
		respond.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) mechanics(w http.ResponseWriter, r *http.Request) {
	list := h.list.List()
	if online := r.URL.Query().Get("online"); online != "" {
		want := online == "true"
		filtered := list[:0]
		for _, m := range list {
			if m.Online == want {
				filtered = append(filtered, m)
			}
		}
		list = filtered
	}
	respond.JSON(w, http.StatusOK, list)
}

type respondResult struct {
	BookingID string         `json:"bookingId"`
	Decision  offer.Decision `json:"decision"`
}

func (h *handler) respond(w http.ResponseWriter, r *http.Request) {
	var resp offer.Response
	if err := respond.Decode(r, &resp); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.authorize(r, resp.MechanicID); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.svc.RespondToOffer(r.Context(), resp); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, respondResult{BookingID: resp.BookingID, Decision: resp.Decision})
}

func (h *handler) authorize(r *http.Request, mechanicID string) error {
	if h.verify == nil {
		return nil
	}
	claims, err := h.verify.FromRequest(r)
	if err != nil {
		return err
	}
	if claims.Role != string(model.RoleMechanic) || claims.Subject != mechanicID {
		return fmt.Errorf("%w: token does not belong to mechanic %s", model.ErrUnauthorized, mechanicID)
	}
	return nil
}
