package registry

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ClusterRecord is one registered cluster.
type ClusterRecord struct {
	ID             string  `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	ContextName    string  `db:"context_name" json:"contextName"`
	CredentialPath string  `db:"config_path" json:"credentialPath"`
	Icon           *string `db:"icon" json:"icon"`
	Description    *string `db:"description" json:"description"`
	Tags           Tags    `db:"tags" json:"tags"`
	// CreatedAt and LastAccessed are unix seconds.
	CreatedAt    int64 `db:"created_at" json:"createdAt"`
	LastAccessed int64 `db:"last_accessed" json:"lastAccessed"`
}

// NewID returns a fresh cluster id.
func NewID() string {
	return uuid.New().String()
}

// Tags is persisted as a JSON array string.
type Tags []string

// Value implements driver.Valuer.
func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(t))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (t *Tags) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*t = Tags{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into Tags", src)
	}

	if len(raw) == 0 {
		*t = Tags{}
		return nil
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("invalid tags column: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*t = out
	return nil
}

// MarshalJSON always emits an array, never null.
func (t Tags) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(t))
}
