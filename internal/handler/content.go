package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dataarchlabs/lab-portal/internal/logger"
)

// ErrNotFound is returned by a Resource when the id does not exist.
var ErrNotFound = errors.New("not found")

// Resource is the CRUD surface of one content kind (announcements, events,
// projects, team members). Implementations live outside this module; the
// handler only translates HTTP to these calls.
type Resource interface {
	// List returns all items, narrowed by filter when it is non-empty.
	List(ctx context.Context, filter map[string]string) (any, error)
	Get(ctx context.Context, id string) (any, error)
	Create(ctx context.Context, body json.RawMessage) (any, error)
	Update(ctx context.Context, id string, body json.RawMessage) (any, error)
	Delete(ctx context.Context, id string) error
}

// ContentHandler exposes a Resource over HTTP.
type ContentHandler struct {
	Name     string
	Resource Resource
}

func NewContentHandler(name string, r Resource) *ContentHandler {
	return &ContentHandler{Name: name, Resource: r}
}

func (h *ContentHandler) List(c echo.Context) error {
	filter := map[string]string{}
	for k, v := range c.QueryParams() {
		if len(v) > 0 && v[0] != "" {
			filter[k] = v[0]
		}
	}
	return h.respond(c, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.Resource.List(ctx, filter)
	})
}

func (h *ContentHandler) Get(c echo.Context) error {
	return h.respond(c, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.Resource.Get(ctx, c.Param("id"))
	})
}

func (h *ContentHandler) Create(c echo.Context) error {
	body, err := readJSON(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	return h.respond(c, http.StatusCreated, func(ctx context.Context) (any, error) {
		return h.Resource.Create(ctx, body)
	})
}

func (h *ContentHandler) Update(c echo.Context) error {
	body, err := readJSON(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	return h.respond(c, http.StatusOK, func(ctx context.Context) (any, error) {
		return h.Resource.Update(ctx, c.Param("id"), body)
	})
}

func (h *ContentHandler) Delete(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Resource.Delete(ctx, c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ContentHandler) respond(c echo.Context, status int, fn func(ctx context.Context) (any, error)) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	out, err := fn(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(status, out)
}

func (h *ContentHandler) fail(c echo.Context, err error) error {
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": h.Name + " not found"})
	}
	logger.Error("content request failed", map[string]any{"resource": h.Name, "err": err})
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// readJSON returns the raw request body after checking it is valid JSON.
func readJSON(c echo.Context) (json.RawMessage, error) {
	b, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if !json.Valid(b) {
		return nil, errors.New("invalid json")
	}
	return json.RawMessage(b), nil
}
