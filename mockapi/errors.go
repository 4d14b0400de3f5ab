package mockapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// fieldError is one entry of a 422 detail list.
type fieldError struct {
	Type  string `json:"type"`
	Loc   []any  `json:"loc"`
	Msg   string `json:"msg"`
	Input any    `json:"input,omitempty"`
}

type detailResponse struct {
	Detail any `json:"detail"`
}

func detail(c echo.Context, status int, msg string) error {
	return c.JSON(status, detailResponse{Detail: msg})
}

func unprocessable(c echo.Context, errs []fieldError) error {
	return c.JSON(http.StatusUnprocessableEntity, detailResponse{Detail: errs})
}

func invalidJSON(c echo.Context) error {
	return unprocessable(c, []fieldError{{Type: "json_invalid", Loc: []any{"body", 0}, Msg: "JSON decode error"}})
}

func missing(loc ...any) fieldError {
	return fieldError{Type: "missing", Loc: loc, Msg: "Field required"}
}

// errorHandler renders every unhandled error as {"detail": ...}.
func errorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		msg := "Internal Server Error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(status)
			}
		}
		if status >= http.StatusInternalServerError {
			logger.WithError(err).WithFields(log.Fields{
				"method": c.Request().Method,
				"path":   c.Request().URL.Path,
			}).Error("request failed")
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = detail(c, status, msg)
		}
		if err != nil {
			logger.WithError(err).Warn("write error response")
		}
	}
}
