package service

import (
	"net/http"
	"sync"

	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/model"
	"github.com/mdouchement/writersync/internal/server/serializer"
	"github.com/mdouchement/writersync/internal/sferror"
	"github.com/pkg/errors"
)

type (
	// A MasterKeyService stores the wrapped bulk key of a user.
	// The server only ever handles the wrapped form.
	MasterKeyService interface {
		Get(user *model.User) Render
		Create(user *model.User, params MasterKeyParams) (Render, error)
		ChangePassword(user *model.User, params ChangeMasterKeyParams) (Render, error)
	}

	// MasterKeyParams are used to upload the wrapped master key.
	MasterKeyParams struct {
		EncryptedMasterKey string `json:"encryptedMasterKey"`
	}

	// ChangeMasterKeyParams are used to replace the wrapped master key after a password change.
	ChangeMasterKeyParams struct {
		NewEncryptedMasterKey string `json:"newEncryptedMasterKey"`
	}

	masterKeyService struct {
		db database.Client
	}
)

// Serializes master key writes so that the create-once check holds within the process.
var masterKeyMu sync.Mutex

// NewMasterKey returns a new MasterKeyService.
func NewMasterKey(db database.Client) MasterKeyService {
	return &masterKeyService{db: db}
}

func (s *masterKeyService) Get(user *model.User) Render {
	return serializer.MasterKey(user)
}

func (s *masterKeyService) Create(user *model.User, params MasterKeyParams) (Render, error) {
	if params.EncryptedMasterKey == "" {
		return nil, sferror.NewWithCode(http.StatusBadRequest, "Encrypted master key required")
	}

	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()

	user, err := s.reload(user)
	if err != nil {
		return nil, err
	}

	if user.HasMasterKey() {
		return nil, sferror.NewWithCode(http.StatusConflict, "Master key already exists. Cannot overwrite.")
	}

	return s.save(user, params.EncryptedMasterKey)
}

func (s *masterKeyService) ChangePassword(user *model.User, params ChangeMasterKeyParams) (Render, error) {
	if params.NewEncryptedMasterKey == "" {
		return nil, sferror.NewWithCode(http.StatusBadRequest, "New encrypted master key required")
	}

	masterKeyMu.Lock()
	defer masterKeyMu.Unlock()

	user, err := s.reload(user)
	if err != nil {
		return nil, err
	}

	if !user.HasMasterKey() {
		return nil, sferror.NewWithCode(http.StatusNotFound, "No master key found")
	}

	return s.save(user, params.NewEncryptedMasterKey)
}

func (s *masterKeyService) reload(user *model.User) (*model.User, error) {
	u, err := s.db.FindUser(user.ID)
	return u, errors.Wrap(err, "could not reload user")
}

func (s *masterKeyService) save(user *model.User, wrapped string) (Render, error) {
	user.EncryptedMasterKey = &wrapped
	touch(user)

	if err := s.db.Save(user); err != nil {
		return nil, errors.Wrap(err, "could not persist master key")
	}
	return M{"success": true}, nil
}
