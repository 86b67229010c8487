package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gadroo/poll-prediction/internal/live"
	apperrors "github.com/gadroo/poll-prediction/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

type statusResponse struct {
	Identifier        string `json:"identifier"`
	State             string `json:"state"`
	Connected         bool   `json:"connected"`
	Attempts          int    `json:"attempts"`
	ReconnectPending  bool   `json:"reconnect_pending"`
	LatestMessageType string `json:"latest_message_type,omitempty"`
}

func newStatusResponse(status live.Status) statusResponse {
	resp := statusResponse{
		Identifier:       status.Identifier,
		State:            status.State.String(),
		Connected:        status.Connected,
		Attempts:         status.Attempts,
		ReconnectPending: status.ReconnectPending,
	}
	if status.Latest != nil {
		resp.LatestMessageType = string(status.Latest.Type())
	}
	return resp
}

func (s *Server) handleStatus(c echo.Context) error {
	status, ok := s.subscription.Status()
	if !ok {
		return apperrors.UnavailableError("no subscription is followed")
	}

	if err := c.JSON(http.StatusOK, newStatusResponse(status)); err != nil {
		return fmt.Errorf("failed to write status response: %w", err)
	}
	return nil
}

func (s *Server) handleView(c echo.Context) error {
	snapshot := s.view.Snapshot()
	if snapshot == nil {
		err := apperrors.UnavailableError("view is not seeded yet")
		if status, ok := s.subscription.Status(); ok {
			err = err.WithContext("identifier", status.Identifier)
		}
		return err
	}

	if err := c.JSON(http.StatusOK, snapshot); err != nil {
		return fmt.Errorf("failed to write view response: %w", err)
	}
	return nil
}

func (s *Server) handleReconnect(c echo.Context) error {
	if !s.subscription.Reconnect() {
		return apperrors.UnavailableError("no subscription is followed")
	}

	status, _ := s.subscription.Status()
	if err := c.JSON(http.StatusAccepted, newStatusResponse(status)); err != nil {
		return fmt.Errorf("failed to write reconnect response: %w", err)
	}
	return nil
}
