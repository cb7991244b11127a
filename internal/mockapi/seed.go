package mockapi

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/permission"
	"github.com/wolfeidau/fitout/internal/store"
)

// Default role ids.
const (
	RoleIDAdmin = "role-admin"
	RoleIDUser  = "role-user"
)

// SeedUser is an account created at startup.
type SeedUser struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
	RoleID   string `yaml:"roleId"`
}

// Seed is the YAML document describing initial users and roles.
type Seed struct {
	Users []SeedUser        `yaml:"users"`
	Roles []permission.Role `yaml:"roles"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	for i, u := range seed.Users {
		if u.Email == "" || u.Password == "" {
			return nil, fmt.Errorf("seed user %d: email and password are required", i)
		}
	}

	return &seed, nil
}

// DefaultSeed has one admin, one regular user and their roles.
func DefaultSeed() *Seed {
	return &Seed{
		Users: []SeedUser{
			{ID: "u-admin", Name: "Admin", Email: "admin@fitout.local", Password: "admin-password", Role: models.RoleAdmin, RoleID: RoleIDAdmin},
			{ID: "u1", Name: "User One", Email: "user@fitout.local", Password: "user-password", Role: models.RoleUser, RoleID: RoleIDUser},
		},
		Roles: []permission.Role{
			{
				ID:   RoleIDAdmin,
				Name: "Administrator",
				Permissions: []permission.Node{
					{ID: "projects", Label: "Projects", Checked: true, Children: []permission.Node{
						{ID: "projects.view", Label: "View projects", Checked: true},
						{ID: "projects.create", Label: "Create projects", Checked: true},
						{ID: "projects.delete", Label: "Delete projects", Checked: true},
					}},
					{ID: "users", Label: "Users", Checked: true, Children: []permission.Node{
						{ID: "users.view", Label: "View users", Checked: true},
						{ID: "users.invite", Label: "Invite users", Checked: true},
					}},
				},
			},
			{
				ID:   RoleIDUser,
				Name: "User",
				Permissions: []permission.Node{
					{ID: "projects", Label: "Projects", Checked: true, Children: []permission.Node{
						{ID: "projects.view", Label: "View projects", Checked: true},
						{ID: "projects.create", Label: "Create projects", Checked: true},
						{ID: "projects.delete", Label: "Delete projects", Checked: false},
					}},
					{ID: "users", Label: "Users", Checked: false, Children: []permission.Node{
						{ID: "users.view", Label: "View users", Checked: false},
					}},
				},
			},
		},
	}
}

// applySeed stores roles and accounts. Existing accounts are left untouched.
func (s *Server) applySeed(ctx context.Context, seed *Seed) error {
	for i := range seed.Roles {
		if err := s.roles.Put(ctx, &seed.Roles[i]); err != nil {
			return fmt.Errorf("failed to store role %s: %w", seed.Roles[i].ID, err)
		}
	}

	for _, u := range seed.Users {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), s.bcryptCost)
		if err != nil {
			return fmt.Errorf("failed to hash password for %s: %w", u.Email, err)
		}

		role := u.Role
		if role == "" {
			role = models.RoleUser
		}
		id := u.ID
		if id == "" {
			id = newID()
		}

		account := &models.Account{
			User: models.User{
				ID:     id,
				Email:  u.Email,
				Name:   u.Name,
				Role:   role,
				RoleID: u.RoleID,
			},
			PasswordHash: hash,
			CreatedAt:    time.Now(),
		}

		if err := s.accounts.Create(ctx, account); err != nil && !errors.Is(err, store.ErrAccountExists) {
			return fmt.Errorf("failed to create seed user %s: %w", u.Email, err)
		}
	}

	return nil
}
