package permission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// Role is returned by GET /api/roles/{id}.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Permissions []Node `json:"permissions"`
}

// Can reports whether the role grants id.
func (r *Role) Can(id string) bool {
	return r != nil && HasPermission(id, r.Permissions)
}

// Doer sends an API request, normally *client.Client.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// LoadRole fetches a role and its permission tree.
func LoadRole(ctx context.Context, api Doer, roleID string) (*Role, error) {
	if roleID == "" {
		return nil, errors.New("role id is required")
	}

	var role Role
	if err := api.Do(ctx, http.MethodGet, "/api/roles/"+url.PathEscape(roleID), nil, &role); err != nil {
		return nil, fmt.Errorf("failed to load role %s: %w", roleID, err)
	}
	return &role, nil
}
