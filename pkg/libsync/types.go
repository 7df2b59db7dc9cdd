package libsync

// Item types known by the sync server.
const (
	ItemTypeNote     = "note"
	ItemTypeCategory = "category"
)

// Push item statuses.
const (
	StatusSuccess  = "success"
	StatusConflict = "conflict"
	StatusError    = "error"
)

type (
	// An Auth is returned by the register and login endpoints.
	Auth struct {
		Token  string `json:"token"`
		UserID string `json:"userId"`
		Email  string `json:"email"`
	}

	// A MasterKey is the wrapped bulk key as stored by the server.
	MasterKey struct {
		EncryptedMasterKey *string `json:"encryptedMasterKey"`
		Exists             bool    `json:"exists"`
	}

	// A PushItem is a local item submitted to the server.
	PushItem struct {
		LocalID       int64   `json:"local_id,omitempty"`
		ServerID      *string `json:"server_id,omitempty"`
		EncryptedData string  `json:"encrypted_data"`
		CreatedAt     string  `json:"created_at"`
		UpdatedAt     string  `json:"updated_at"`
		IsDeleted     bool    `json:"is_deleted,omitempty"`
	}

	// A PushRequest is the batch sent to the server.
	// Categories are processed before entries.
	PushRequest struct {
		Entries    []PushItem `json:"entries"`
		Categories []PushItem `json:"categories"`
	}

	// A PushResult is the server outcome for one PushItem.
	PushResult struct {
		LocalID      int64       `json:"local_id,omitempty"`
		ServerID     *string     `json:"server_id,omitempty"`
		Status       string      `json:"status"`
		ConflictData *RemoteItem `json:"conflict_data,omitempty"`
		Error        string      `json:"error,omitempty"`
	}

	// A PushResponse contains the per-item outcomes of a PushRequest.
	PushResponse struct {
		Entries    []PushResult `json:"entries"`
		Categories []PushResult `json:"categories"`
	}

	// A RemoteItem is an encrypted item as stored by the server.
	RemoteItem struct {
		ID            string  `json:"id"`
		ItemType      string  `json:"item_type"`
		EncryptedData string  `json:"encrypted_data"`
		CreatedAt     string  `json:"created_at"`
		UpdatedAt     string  `json:"updated_at"`
		DeletedAt     *string `json:"deleted_at"`
	}

	// A PullResponse contains the items changed since the requested checkpoint.
	PullResponse struct {
		Entries          []RemoteItem `json:"entries"`
		Categories       []RemoteItem `json:"categories"`
		CurrentTimestamp string       `json:"current_timestamp"`
	}
)

// Tombstoned returns true if the item has been deleted on the server.
func (i RemoteItem) Tombstoned() bool {
	return i.DeletedAt != nil && *i.DeletedAt != ""
}

// Len returns the number of items in the request.
func (r PushRequest) Len() int {
	return len(r.Entries) + len(r.Categories)
}

// Len returns the number of items in the response.
func (r PullResponse) Len() int {
	return len(r.Entries) + len(r.Categories)
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue returns the value of p or an empty string.
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
