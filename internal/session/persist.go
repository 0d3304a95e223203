package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/schooldesk/portal/internal/models"
)

// PersistedVersion is the schema version written by EncodePersisted.
const PersistedVersion = 2

// Persisted is the session blob kept across restarts. The refresh token is
// stored under its own key and never appears here.
type Persisted struct {
	Version     int          `json:"version"`
	AccessToken string       `json:"access_token"`
	User        *models.User `json:"user"`
	Permissions []string     `json:"permissions"`
	SavedAt     time.Time    `json:"saved_at"`
}

// upgrade turns a document of version n into version n+1.
type upgrade func(doc map[string]json.RawMessage) (map[string]json.RawMessage, error)

// upgrades is indexed by the version being upgraded from.
var upgrades = map[int]upgrade{
	1: upgradeV1,
}

// EncodePersisted serialises p at the current version.
func EncodePersisted(p Persisted) ([]byte, error) {
	p.Version = PersistedVersion
	return json.Marshal(p)
}

// DecodePersisted reads a blob of any known version, applying one upgrade
// step per version. A blob without a version tag is version 1.
func DecodePersisted(data []byte) (*Persisted, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode persisted session: %w", err)
	}

	version := 1
	if raw, ok := doc["version"]; ok {
		if err := json.Unmarshal(raw, &version); err != nil {
			return nil, fmt.Errorf("decode persisted session version: %w", err)
		}
	}
	if version < 1 || version > PersistedVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	for v := version; v < PersistedVersion; v++ {
		next, err := upgrades[v](doc)
		if err != nil {
			return nil, fmt.Errorf("upgrade persisted session from v%d: %w", v, err)
		}
		doc = next
	}

	normalised, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var p Persisted
	if err := json.Unmarshal(normalised, &p); err != nil {
		return nil, fmt.Errorf("decode persisted session: %w", err)
	}
	return &p, nil
}

// upgradeV1 renames token to access_token, derives user.role_id from the
// role and adds the fields v1 did not have.
func upgradeV1(doc map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(doc)+2)
	for k, v := range doc {
		out[k] = v
	}

	if token, ok := out["token"]; ok {
		out["access_token"] = token
		delete(out, "token")
	}

	if rawUser, ok := out["user"]; ok && string(rawUser) != "null" {
		var user map[string]json.RawMessage
		if err := json.Unmarshal(rawUser, &user); err != nil {
			return nil, fmt.Errorf("user: %w", err)
		}
		if _, ok := user["role_id"]; !ok {
			if role, ok := user["role"]; ok {
				user["role_id"] = role
			}
		}
		encoded, err := json.Marshal(user)
		if err != nil {
			return nil, err
		}
		out["user"] = encoded
	}

	if _, ok := out["permissions"]; !ok {
		out["permissions"] = json.RawMessage("[]")
	}
	out["version"] = json.RawMessage("2")
	return out, nil
}
