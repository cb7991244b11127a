package memory

import (
	"context"
	"sync"

	"github.com/wolfeidau/fitout/internal/permission"
	"github.com/wolfeidau/fitout/internal/store"
)

var _ store.RoleStore = (*RoleStore)(nil)

// RoleStore implements store.RoleStore using in-memory storage.
type RoleStore struct {
	mu    sync.RWMutex
	roles map[string]*permission.Role
}

func NewRoleStore() *RoleStore {
	return &RoleStore{roles: make(map[string]*permission.Role)}
}

func (s *RoleStore) Get(ctx context.Context, roleID string) (*permission.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, exists := s.roles[roleID]
	if !exists {
		return nil, store.ErrRoleNotFound
	}

	clone := *role
	return &clone, nil
}

// Put creates or replaces a role.
func (s *RoleStore) Put(ctx context.Context, role *permission.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *role
	s.roles[role.ID] = &clone
	return nil
}
