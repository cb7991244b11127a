package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/wolfeidau/fitout/internal/models"
	"github.com/wolfeidau/fitout/internal/store"
)

var _ store.AccountStore = (*AccountStore)(nil)

// AccountStore implements store.AccountStore using in-memory storage.
type AccountStore struct {
	mu sync.RWMutex

	accounts map[string]*models.Account // user_id -> Account
	byEmail  map[string]string          // lower(email) -> user_id
}

func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]*models.Account),
		byEmail:  make(map[string]string),
	}
}

// Create adds an account. Emails are unique, case insensitively.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(account.User.Email)

	if _, exists := s.accounts[account.User.ID]; exists {
		return store.ErrAccountExists
	}
	if _, exists := s.byEmail[email]; exists {
		return store.ErrAccountExists
	}

	clone := *account
	s.accounts[account.User.ID] = &clone
	s.byEmail[email] = account.User.ID

	return nil
}

func (s *AccountStore) Get(ctx context.Context, userID string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, exists := s.accounts[userID]
	if !exists {
		return nil, store.ErrAccountNotFound
	}

	clone := *account
	return &clone, nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	s.mu.RLock()
	userID, exists := s.byEmail[strings.ToLower(email)]
	s.mu.RUnlock()

	if !exists {
		return nil, store.ErrAccountNotFound
	}

	return s.Get(ctx, userID)
}
