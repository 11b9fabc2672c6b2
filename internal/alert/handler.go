package alert

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"CampusClinic/internal/auth"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// locationOptions is the controlled vocabulary offered to requester clients.
// The core only requires a non-empty location string; this list is a client
// affordance.
var locationOptions = map[string][]string{
	"Quadrangle":       {},
	"Admin BLDG":       {"201", "202", "203", "204", "205", "206"},
	"Covered Court":    {},
	"Faculty Room":     {"CCS Dept", "CAS Dept", "COC Dept", "BEED Dept", "ENGR Dept", "CBA Dept"},
	"SHS Room":         {},
	"Engineering BLDG": {"E202", "E203", "E204", "E205", "E206", "E207"},
	"Lecture Room":     {"LR1", "LR2", "LR3", "LR4", "LR5"},
	"Library":          {},
	"Canteen":          {},
}

// Handler handles HTTP requests for the alert subsystem.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type CreateAlertRequest struct {
	Location string `json:"location"`
	Note     string `json:"note"`
}

type ClaimAlertRequest struct {
	EstimatedArrival string `json:"estimated_arrival"`
}

func sessionClaims(c echo.Context) (*auth.JWTClaims, bool) {
	claims, ok := c.Get("user").(*auth.JWTClaims)
	return claims, ok && claims != nil
}

// httpStatus maps the alert error taxonomy to HTTP statuses.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyClaimed):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// CreateAlert raises a new emergency alert for the logged-in student or
// employee.
func (h *Handler) CreateAlert(c echo.Context) error {
	claims, ok := sessionClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}

	var req CreateAlertRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if req.Note == "" {
		req.Note = "Emergency assistance requested"
	}

	requester := Requester{
		ID:        claims.Subject,
		Name:      claims.Name,
		Email:     claims.Email,
		Role:      Role(claims.Role),
		RoleRefID: claims.IDNumber,
	}

	created, err := h.service.Create(c.Request().Context(), requester, req.Location, req.Note)
	if err != nil {
		return c.JSON(httpStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, created)
}

// ListAlerts returns the active (pending and responded) alert set.
func (h *Handler) ListAlerts(c echo.Context) error {
	alerts, err := h.service.Active(c.Request().Context())
	if err != nil {
		return c.JSON(httpStatus(err), map[string]string{"error": "Failed to load alerts, please retry"})
	}
	if alerts == nil {
		alerts = []*Alert{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"alerts": alerts, "total": len(alerts)})
}

// ListLocations serves the campus location vocabulary.
func (h *Handler) ListLocations(c echo.Context) error {
	return c.JSON(http.StatusOK, locationOptions)
}

// ClaimAlert attempts to claim a pending alert for the logged-in admin. On a
// lost race the response carries the current alert so the UI can show who
// won instead of failing silently.
func (h *Handler) ClaimAlert(c echo.Context) error {
	claims, ok := sessionClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}

	var req ClaimAlertRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	responder := Responder{ID: claims.Subject, Name: claims.Name}
	updated, err := h.service.Claim(c.Request().Context(), c.Param("id"), responder, req.EstimatedArrival)
	if err != nil {
		body := map[string]interface{}{"error": err.Error()}
		if errors.Is(err, ErrAlreadyClaimed) && updated != nil {
			body["alert"] = updated
		}
		return c.JSON(httpStatus(err), body)
	}
	return c.JSON(http.StatusOK, updated)
}

// ResolveAlert performs the terminal transition on a responded alert.
func (h *Handler) ResolveAlert(c echo.Context) error {
	claims, ok := sessionClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}

	resolver := Resolution{ResolverID: claims.Subject, ResolverName: claims.Name}
	updated, err := h.service.Resolve(c.Request().Context(), c.Param("id"), resolver)
	if err != nil {
		return c.JSON(httpStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, updated)
}

// StreamAlerts pushes the active alert set to an admin session over SSE. The
// first events are the snapshot (flagged initial); afterwards one event per
// mutation until the client disconnects or the subscription is dropped.
func (h *Handler) StreamAlerts(c echo.Context) error {
	sub, err := h.service.Subscribe(c.Request().Context())
	if err != nil {
		return c.JSON(httpStatus(err), map[string]string{"error": "Failed to subscribe, please retry"})
	}
	defer sub.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case delta, ok := <-sub.C():
			if !ok {
				// Dropped as a slow subscriber; the client reconnects and
				// gets a fresh snapshot.
				return nil
			}
			payload, err := json.Marshal(delta)
			if err != nil {
				h.logger.Error("failed to encode alert delta", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: alert\ndata: %s\n\n", payload); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}
