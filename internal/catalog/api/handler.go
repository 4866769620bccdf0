package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-tickethub/internal/catalog"
	"ms-tickethub/internal/catalog/notify"
	"ms-tickethub/internal/logger"
	"ms-tickethub/internal/models"
	"ms-tickethub/internal/outcome"
	"ms-tickethub/internal/ticket/db"
	"ms-tickethub/internal/utils"
)

type Handler struct {
	Catalog *catalog.Service
	Hub     *notify.Hub
	Logger  *logger.Logger
}

func NewHandler(svc *catalog.Service, hub *notify.Hub, log *logger.Logger) *Handler {
	return &Handler{Catalog: svc, Hub: hub, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Post("/", h.CreateEvent)
			r.Get("/", h.ListEvents)
			r.Get("/{eventId}/tickets", h.ListTickets)
			r.Post("/{eventId}/tickets/bulk", h.BulkCreateTickets)
		})
		r.Route("/tickets/{ticketId}", func(r chi.Router) {
			r.Get("/", h.GetTicket)
			r.Get("/history", h.GetHistory)
			r.Get("/pass", h.GetPass)
			r.Get("/notify", h.Notify)
			r.Post("/release", h.ReleaseTicket)
			r.Post("/reopen", h.ReopenTicket)
			r.Post("/cancel", h.CancelTicket)
			r.Delete("/", h.DeleteTicket)
		})
	})
}

func urlID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var ev models.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	if err := h.Catalog.CreateEvent(r.Context(), &ev); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("could not create event", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("event created", ev))
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Catalog.ListEvents(r.Context())
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("could not list events", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("events", events))
}

func (h *Handler) BulkCreateTickets(w http.ResponseWriter, r *http.Request) {
	eventID, err := urlID(r, "eventId")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid event id", err.Error()))
		return
	}
	var req struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid request body", err.Error()))
		return
	}
	tickets, err := h.Catalog.BulkCreateTickets(r.Context(), eventID, req.Count)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, db.ErrEventNotFound) {
			status = http.StatusNotFound
		}
		utils.WriteJSON(w, status, utils.ErrorResponse("could not create tickets", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse(fmt.Sprintf("created %d tickets", len(tickets)), tickets))
}

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	eventID, err := urlID(r, "eventId")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid event id", err.Error()))
		return
	}
	tickets, err := h.Catalog.ListTicketsByEvent(r.Context(), eventID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("could not list tickets", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("tickets", tickets))
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "ticketId")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid ticket id", err.Error()))
		return
	}
	t, err := h.Catalog.GetTicket(r.Context(), id)
	if errors.Is(err, db.ErrTicketNotFound) {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("ticket not found", err.Error()))
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("could not load ticket", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ticket", t))
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "ticketId")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid ticket id", err.Error()))
		return
	}
	rows, err := h.Catalog.TicketHistory(r.Context(), id)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("could not load history", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("history", rows))
}

func (h *Handler) GetPass(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "ticketId")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid ticket id", err.Error()))
		return
	}
	png, err := h.Catalog.TicketPass(r.Context(), id)
	if errors.Is(err, db.ErrTicketNotFound) {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("ticket not found", err.Error()))
		return
	}
	if errors.Is(err, catalog.ErrPassUnavailable) {
		utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("pass unavailable", err.Error()))
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("could not render pass", err.Error()))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// Notify blocks until the ticket's status changes or the ~30s window
// expires. One notification per request, then the subscription ends.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "ticketId")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid ticket id", err.Error()))
		return
	}
	ev, err := h.Hub.WaitForChange(r.Context(), id)
	if errors.Is(err, notify.ErrTimeout) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("notification wait failed", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("status changed", ev))
}

func (h *Handler) ReleaseTicket(w http.ResponseWriter, r *http.Request) {
	h.adminOp(w, r, h.Catalog.ReleaseTicket)
}

func (h *Handler) ReopenTicket(w http.ResponseWriter, r *http.Request) {
	h.adminOp(w, r, h.Catalog.ReopenTicket)
}

func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	h.adminOp(w, r, h.Catalog.CancelTicket)
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "ticketId")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid ticket id", err.Error()))
		return
	}
	if err := h.Catalog.DeleteTicket(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, db.ErrTicketNotFound) {
			status = http.StatusNotFound
		}
		utils.WriteJSON(w, status, utils.ErrorResponse("could not delete ticket", err.Error()))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) adminOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) (outcome.Result, error)) {
	id, err := urlID(r, "ticketId")
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("invalid ticket id", err.Error()))
		return
	}
	res, err := op(r.Context(), id)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("operation failed", err.Error()))
		return
	}
	switch res.Code {
	case outcome.OK:
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("applied", nil))
	case outcome.AlreadyProcessed:
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(res.Reason, nil))
	default:
		status := http.StatusConflict
		if res.Kind == outcome.KindNotFound {
			status = http.StatusNotFound
		}
		utils.WriteJSON(w, status, utils.ErrorResponse("operation rejected", res.Reason))
	}
}
