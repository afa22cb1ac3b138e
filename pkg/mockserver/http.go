package mockserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/smartnpc/smartnpc-go/pkg/history"
	"github.com/smartnpc/smartnpc-go/pkg/smartnpc"
	"github.com/smartnpc/smartnpc-go/pkg/socketio"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func httpError(status int, code, message string) *echo.HTTPError {
	return echo.NewHTTPError(status, apiError{Code: code, Message: message})
}

type healthResponse struct {
	Status  string `json:"status"`
	Sockets int    `json:"sockets"`
}

type historyEntry struct {
	Seq       uint64                 `json:"seq"`
	Time      int64                  `json:"time"`
	Message   string                 `json:"message"`
	Response  string                 `json:"response"`
	Behaviors []smartnpc.RawBehavior `json:"behaviors,omitempty"`
}

// RegisterRoutes mounts the Socket.IO endpoint and a small inspection API:
//
//	GET /healthz
//	GET /characters
//	GET /characters/:id
//	GET /characters/:id/history
//	DELETE /characters/:id/history
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", s.health)
	e.GET("/characters", s.listCharacters)
	e.GET("/characters/:id", s.getCharacter)
	e.GET("/characters/:id/history", s.getHistory)
	e.DELETE("/characters/:id/history", s.deleteHistory)
	e.Any(socketio.DefaultPath, echo.WrapHandler(s.sockets))
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", Sockets: s.sockets.Len()})
}

func (s *Server) listCharacters(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Characters())
}

func (s *Server) character(c echo.Context) (smartnpc.CharacterInfo, error) {
	info, ok := s.characters[c.Param("id")]
	if !ok {
		return info, httpError(http.StatusNotFound, "character_not_found", "character not found")
	}
	return info, nil
}

func (s *Server) getCharacter(c echo.Context) error {
	info, err := s.character(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) getHistory(c echo.Context) error {
	info, err := s.character(c)
	if err != nil {
		return err
	}
	entries, err := s.history.List(c.Request().Context(), info.ID)
	if err != nil {
		return s.storeError(err)
	}
	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			Seq:       e.Seq,
			Time:      e.Time.UnixMilli(),
			Message:   e.Message.Message,
			Response:  e.Message.Response,
			Behaviors: e.Message.Behaviors,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) deleteHistory(c echo.Context) error {
	info, err := s.character(c)
	if err != nil {
		return err
	}
	if err := s.history.Clear(c.Request().Context(), info.ID); err != nil {
		return s.storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) storeError(err error) error {
	if errors.Is(err, history.ErrEmptyCharacter) {
		return httpError(http.StatusBadRequest, "invalid_character", err.Error())
	}
	s.logger.Error("history store", "error", err)
	return httpError(http.StatusInternalServerError, "history_failed", "history store failed")
}
