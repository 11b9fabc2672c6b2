package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"CampusClinic/internal/auth"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for notifications.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func sessionClaims(c echo.Context) (*auth.JWTClaims, bool) {
	claims, ok := c.Get("user").(*auth.JWTClaims)
	return claims, ok && claims != nil
}

// List returns the logged-in user's notifications, newest first.
func (h *Handler) List(c echo.Context) error {
	claims, ok := sessionClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}

	notifications, err := h.service.List(c.Request().Context(), claims.Subject)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Failed to load notifications, please retry"})
	}
	if notifications == nil {
		notifications = []*Notification{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"notifications": notifications, "total": len(notifications)})
}

// MarkRead sets the explicit read flag on one notification.
func (h *Handler) MarkRead(c echo.Context) error {
	claims, ok := sessionClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}

	err := h.service.MarkRead(c.Request().Context(), c.Param("id"), claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "Notification not found"})
		}
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Failed to update notification, please retry"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

// Stream pushes the logged-in user's notifications over SSE: first the
// undelivered backlog, then live acknowledgments as claims happen.
func (h *Handler) Stream(c echo.Context) error {
	claims, ok := sessionClaims(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing token"})
	}

	stream, backlog, err := h.service.Subscribe(c.Request().Context(), claims.Subject)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Failed to subscribe, please retry"})
	}
	defer stream.Close()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	writeEvent := func(n *Notification) error {
		payload, err := json.Marshal(n)
		if err != nil {
			h.logger.Error("failed to encode notification", zap.Error(err))
			return nil
		}
		if _, err := fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload); err != nil {
			return err
		}
		w.Flush()
		return nil
	}

	ctx := c.Request().Context()
	for _, n := range backlog {
		if err := writeEvent(n); err != nil {
			// Not confirmed, so the sweep redelivers it later.
			return nil
		}
		h.service.ConfirmDelivered(ctx, n.ID)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-stream.C():
			if !ok {
				return nil
			}
			if err := writeEvent(n); err != nil {
				return nil
			}
		}
	}
}
