package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/server/service"
	"github.com/mdouchement/writersync/internal/sferror"
	"github.com/mdouchement/writersync/pkg/libsync"
)

// sync contains all sync handlers.
type sync struct {
	db      database.Client
	metrics *metrics
}

///// Push
////
//

// Push reconciles the client's pending items.
// Each item gets its own outcome, a failing item never fails the request.
func (h *sync) Push(c echo.Context) error {
	var params libsync.PushRequest
	if err := c.Bind(&params); err != nil {
		return err
	}

	service := service.NewSync(h.db, currentUser(c))
	response := service.Push(params)
	h.metrics.pushed(libsync.ItemTypeCategory, response.Categories)
	h.metrics.pushed(libsync.ItemTypeNote, response.Entries)

	return c.JSON(http.StatusOK, response)
}

///// Changes
////
//

// Changes returns the items updated strictly after the `since` query parameter.
func (h *sync) Changes(c echo.Context) error {
	since := c.QueryParam("since")
	if since == "" {
		return sferror.NewWithCode(http.StatusBadRequest, "since parameter required")
	}

	t, err := service.ParseTime(since)
	if err != nil {
		return sferror.NewWithCode(http.StatusBadRequest, "Invalid since timestamp")
	}

	service := service.NewSync(h.db, currentUser(c))
	response, err := service.Changes(t)
	if err != nil {
		return err
	}
	h.metrics.pulled(libsync.ItemTypeCategory, len(response.Categories))
	h.metrics.pulled(libsync.ItemTypeNote, len(response.Entries))

	return c.JSON(http.StatusOK, response)
}
