package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/server/service"
)

// masterKey contains all the wrapped master key handlers.
type masterKey struct {
	db database.Client
}

///// Show
////
//

// Show returns the wrapped master key of the current user, if any.
func (h *masterKey) Show(c echo.Context) error {
	service := service.NewMasterKey(h.db)
	return c.JSON(http.StatusOK, service.Get(currentUser(c)))
}

///// Create
////
//

// Create stores the wrapped master key. An existing key is never overwritten.
func (h *masterKey) Create(c echo.Context) error {
	var params service.MasterKeyParams
	if err := c.Bind(&params); err != nil {
		return err
	}

	service := service.NewMasterKey(h.db)
	render, err := service.Create(currentUser(c), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, render)
}

///// Change password
////
//

// ChangePassword replaces the wrapped master key after the client re-wrapped it with a new password.
func (h *masterKey) ChangePassword(c echo.Context) error {
	var params service.ChangeMasterKeyParams
	if err := c.Bind(&params); err != nil {
		return err
	}

	service := service.NewMasterKey(h.db)
	render, err := service.ChangePassword(currentUser(c), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, render)
}
