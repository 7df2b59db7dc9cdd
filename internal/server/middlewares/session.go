package middlewares

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/mdouchement/writersync/internal/server/session"
	"github.com/mdouchement/writersync/internal/sferror"
)

const (
	// CurrentUserContextKey is the key to retrieve the current_user from echo.Context.
	CurrentUserContextKey = "current_user"
	// TokenContextKey is the key to retrieve the parsed JWT from echo.Context.
	TokenContextKey = "token"
)

// Session returns a bearer JWT auth middleware.
// It stores current_user into echo.Context
func Session(m session.Manager) echo.MiddlewareFunc {
	authenticate := echojwt.WithConfig(echojwt.Config{
		SigningKey: m.JWTSigningKey(),
		ContextKey: TokenContextKey,
		NewClaimsFunc: func(echo.Context) jwt.Claims {
			return m.NewClaims()
		},
		ErrorHandler: func(echo.Context, error) error {
			// Missing, malformed, expired and forged tokens are all rejected the same way.
			return sferror.NewWithTagCode(http.StatusUnauthorized, "invalid-auth", "Invalid login credentials.")
		},
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return authenticate(func(c echo.Context) error {
			token, ok := c.Get(TokenContextKey).(*jwt.Token)
			if !ok {
				panic("token implementation has changed")
			}

			user, err := m.UserFromToken(token)
			if err != nil {
				return err
			}

			// Store current_user for handlers.
			c.Set(CurrentUserContextKey, user)
			return next(c)
		})
	}
}
