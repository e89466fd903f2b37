// Package bookings exposes the booking lifecycle over HTTP.
package bookings

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kilianp07/autoaid/api/respond"
	"github.com/kilianp07/autoaid/auth"
	"github.com/kilianp07/autoaid/core/booking/journal"
	"github.com/kilianp07/autoaid/core/dispatch"
	"github.com/kilianp07/autoaid/core/model"
)

// Service is the subset of the dispatch coordinator used by the handlers.
type Service interface {
	HandleNewBooking(ctx context.Context, req model.BookingRequest) (model.Booking, error)
	Get(ctx context.Context, id string) (model.Booking, error)
	Cancel(ctx context.Context, req dispatch.CancelRequest) (model.Booking, error)
	Progress(ctx context.Context, req dispatch.ProgressRequest) (model.Booking, error)
}

// Verifier authenticates bearer tokens.
type Verifier interface {
	FromRequest(r *http.Request) (*auth.Claims, error)
}

// Options configures the booking routes.
type Options struct {
	// Verifier enables JWT authentication when set.
	Verifier Verifier
	// Journal backs the history route. The route is not registered when nil.
	Journal journal.Store
	// HistoryToken is the static bearer token guarding the history route.
	HistoryToken string
}

type handler struct {
	svc  Service
	opts Options
}

// Register mounts the booking routes on mux.
func Register(mux *http.ServeMux, svc Service, opts Options) {
	h := &handler{svc: svc, opts: opts}
	mux.HandleFunc("POST /api/bookings", h.create)
	mux.HandleFunc("GET /api/bookings/{id}", h.get)
	mux.HandleFunc("POST /api/bookings/{id}/cancel", h.cancel)
	mux.HandleFunc("POST /api/bookings/{id}/progress", h.progress)
	if opts.Journal != nil {
		mux.Handle("GET /api/bookings/{id}/history", NewHistoryHandler(opts.Journal, opts.HistoryToken))
	}
}

type createResponse struct {
	BookingID string       `json:"bookingId"`
	Status    model.Status `json:"status"`
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var req model.BookingRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if h.opts.Verifier != nil {
		claims, err := h.opts.Verifier.FromRequest(r)
		if err != nil {
			respond.Error(w, err)
			return
		}
		if claims.Subject != req.CustomerID {
			respond.Error(w, fmt.Errorf("%w: token subject does not match customerId", model.ErrUnauthorized))
			return
		}
	}
	b, err := h.svc.HandleNewBooking(r.Context(), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, createResponse{BookingID: b.ID, Status: b.Status})
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, b)
}

type cancelRequest struct {
	Actor  model.Actor `json:"actor"`
	Reason string      `json:"reason"`
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	var body cancelRequest
	if err := respond.Decode(r, &body); err != nil {
		respond.Error(w, err)
		return
	}
	actor, err := h.actor(r, body.Actor)
	if err != nil {
		respond.Error(w, err)
		return
	}
	req := dispatch.CancelRequest{BookingID: r.PathValue("id"), Actor: actor}
	if body.Reason != "" {
		if req.Reason, err = model.ParseCancelReason(body.Reason); err != nil {
			respond.Error(w, err)
			return
		}
	}
	b, err := h.svc.Cancel(r.Context(), req)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, b)
}

type progressRequest struct {
	MechanicID string      `json:"mechanicId"`
	Event      model.Event `json:"event"`
	FinalCost  *float64    `json:"finalCost,omitempty"`
}

func (h *handler) progress(w http.ResponseWriter, r *http.Request) {
	var body progressRequest
	if err := respond.Decode(r, &body); err != nil {
		respond.Error(w, err)
		return
	}
	if h.opts.Verifier != nil {
		actor, err := h.actor(r, model.Actor{Role: model.RoleMechanic, ID: body.MechanicID})
		if err != nil {
			respond.Error(w, err)
			return
		}
		if actor.Role != model.RoleMechanic || actor.ID != body.MechanicID {
			respond.Error(w, fmt.Errorf("%w: token subject does not match mechanicId", model.ErrUnauthorized))
			return
		}
	}
	b, err := h.svc.Progress(r.Context(), dispatch.ProgressRequest{
		BookingID:  r.PathValue("id"),
		MechanicID: body.MechanicID,
		Event:      body.Event,
		FinalCost:  body.FinalCost,
	})
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, b)
}

// actor resolves the caller. With a verifier the token is authoritative and
// the claimed actor is ignored. Only customers and mechanics act through the
// API; the system actor belongs to the coordinator.
func (h *handler) actor(r *http.Request, claimed model.Actor) (model.Actor, error) {
	a := claimed
	if h.opts.Verifier == nil {
		if claimed.Role == "" {
			return model.Actor{}, fmt.Errorf("%w: actor.role is required", model.ErrInvalidRequest)
		}
	} else {
		claims, err := h.opts.Verifier.FromRequest(r)
		if err != nil {
			return model.Actor{}, err
		}
		a = model.Actor{Role: model.Role(claims.Role), ID: claims.Subject}
	}
	switch a.Role {
	case model.RoleCustomer, model.RoleMechanic:
		return a, nil
	default:
		return model.Actor{}, fmt.Errorf("%w: role %q cannot act on bookings", model.ErrUnauthorized, a.Role)
	}
}
