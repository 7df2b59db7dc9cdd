package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/server/service"
	"github.com/mdouchement/writersync/internal/server/session"
)

// auth contains all authentication handlers.
type auth struct {
	db       database.Client
	sessions session.Manager
}

///// Register
////
//

// Register handler is used to register the user.
// It returns a bearer token on success.
func (h *auth) Register(c echo.Context) error {
	// Filter params
	var params service.RegisterParams
	if err := c.Bind(&params); err != nil {
		return err
	}

	service := service.NewUser(h.db, h.sessions)
	register, err := service.Register(params)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, register)
}

///// Login
////
//

// Login used for authenticates a user and returns a JWT.
func (h *auth) Login(c echo.Context) error {
	// Filter params
	var params service.LoginParams
	if err := c.Bind(&params); err != nil {
		return err
	}

	service := service.NewUser(h.db, h.sessions)
	login, err := service.Login(params)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, login)
}
