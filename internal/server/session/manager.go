package session

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/model"
	"github.com/mdouchement/writersync/internal/sferror"
	"github.com/pkg/errors"
)

// DefaultTTL is the default validity of an issued token.
const DefaultTTL = 7 * 24 * time.Hour

type (
	// Claims are the JWT claims issued on register and login.
	Claims struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
		jwt.RegisteredClaims
	}

	// A Manager issues and resolves bearer tokens.
	Manager interface {
		JWTSigningKey() []byte
		// NewClaims returns empty claims used to decode a token.
		NewClaims() jwt.Claims
		// Token issues a signed token for the given user.
		Token(user *model.User) (string, error)
		// UserFromToken the user for the given token.
		UserFromToken(token *jwt.Token) (*model.User, error)
	}

	manager struct {
		db         database.Client
		signingKey []byte
		ttl        time.Duration
	}
)

// NewManager returns a new manager.
func NewManager(db database.Client, signingKey []byte, ttl time.Duration) Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &manager{
		db:         db,
		signingKey: signingKey,
		ttl:        ttl,
	}
}

func (m *manager) JWTSigningKey() []byte {
	return m.signingKey
}

func (m *manager) NewClaims() jwt.Claims {
	return new(Claims)
}

func (m *manager) Token(user *model.User) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        SecureToken(24),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})

	signed, err := token.SignedString(m.signingKey)
	return signed, errors.Wrap(err, "could not sign token")
}

func (m *manager) UserFromToken(token *jwt.Token) (*model.User, error) {
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return nil, sferror.NewWithTagCode(http.StatusUnauthorized, "invalid-auth", "Invalid login credentials.")
	}

	// Get current_user.
	user, err := m.db.FindUser(claims.UserID)
	if err != nil {
		if m.db.IsNotFound(err) {
			return nil, sferror.NewWithTagCode(
				http.StatusUnauthorized,
				"invalid-auth",
				"Invalid login credentials.",
			)
		}
		return nil, errors.Wrap(err, "could not get access to database")
	}

	return user, nil
}
