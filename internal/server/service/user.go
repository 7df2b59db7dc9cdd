package service

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	argon2 "github.com/mdouchement/simple-argon2"
	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/model"
	"github.com/mdouchement/writersync/internal/server/serializer"
	"github.com/mdouchement/writersync/internal/server/session"
	"github.com/mdouchement/writersync/internal/sferror"
	"github.com/pkg/errors"
)

// MinPasswordLength is the minimal length of an account password.
const MinPasswordLength = 8

var emailFormat = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type (
	// A UserService handles the account lifecycle.
	UserService interface {
		Register(params RegisterParams) (Render, error)
		Login(params LoginParams) (Render, error)
	}

	// RegisterParams are used to register a user.
	RegisterParams struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	// LoginParams are used to login a user.
	LoginParams struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	userService struct {
		db       database.Client
		sessions session.Manager
	}
)

// NewUser returns a new UserService.
func NewUser(db database.Client, sessions session.Manager) UserService {
	return &userService{
		db:       db,
		sessions: sessions,
	}
}

// Validate checks the registration parameters.
func (p RegisterParams) Validate() error {
	if p.Email == "" || p.Password == "" {
		return sferror.NewWithCode(http.StatusBadRequest, "Email and password required")
	}
	if !emailFormat.MatchString(p.Email) {
		return sferror.NewWithCode(http.StatusBadRequest, "Invalid email format")
	}
	if len(p.Password) < MinPasswordLength {
		return sferror.NewWithCode(http.StatusBadRequest, "Password must be at least 8 characters")
	}
	return nil
}

func (s *userService) Register(params RegisterParams) (Render, error) {
	params.Email = strings.TrimSpace(params.Email)
	if err := params.Validate(); err != nil {
		return nil, err
	}

	// Check if the email is free to use.
	u, err := s.db.FindUserByMail(params.Email)
	if err != nil && !s.db.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not get access to database")
	}
	if u != nil {
		return nil, sferror.NewWithCode(http.StatusConflict, "User already exists")
	}

	// Initialize user
	user := &model.User{
		Email: params.Email,
	}

	// Crypt password
	user.PasswordHash, err = argon2.GenerateFromPasswordString(params.Password, argon2.Default)
	if err != nil {
		return nil, errors.Wrap(err, "could not store user password safe")
	}

	// Persist the model
	if err := s.db.Save(user); err != nil {
		if s.db.IsAlreadyExists(err) {
			return nil, sferror.NewWithCode(http.StatusConflict, "User already exists")
		}
		return nil, errors.Wrap(err, "could not persist user")
	}

	return s.auth(user)
}

func (s *userService) Login(params LoginParams) (Render, error) {
	if params.Email == "" || params.Password == "" {
		return nil, sferror.NewWithCode(http.StatusBadRequest, "Email and password required")
	}

	// Retrieve user
	user, err := s.db.FindUserByMail(strings.TrimSpace(params.Email))
	if err != nil {
		if s.db.IsNotFound(err) {
			return nil, sferror.NewWithTagCode(http.StatusUnauthorized, "invalid-auth", "Invalid email or password")
		}
		return nil, errors.Wrap(err, "could not get user")
	}

	// Verify password
	if err = argon2.CompareHashAndPasswordString(user.PasswordHash, params.Password); err != nil {
		if err == argon2.ErrMismatchedHashAndPassword {
			return nil, sferror.NewWithTagCode(http.StatusUnauthorized, "invalid-auth", "Invalid email or password")
		}
		return nil, errors.Wrap(err, "could not validate password")
	}

	return s.auth(user)
}

func (s *userService) auth(user *model.User) (Render, error) {
	token, err := s.sessions.Token(user)
	if err != nil {
		return nil, err
	}

	return serializer.Auth(user, token), nil
}

// touch marks the user as updated now.
func touch(user *model.User) {
	user.SetUpdatedAt(time.Now().UTC())
}
