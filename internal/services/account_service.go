package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/apperrors"
	"github.com/invoply/invoply-api/internal/store"
)

// AccountService exposes the account profile and settings operations.
// Entitlement is deliberately absent here: only payment reconciliation
// writes it.
type AccountService struct {
	store store.Store
	log   *zap.Logger
}

// NewAccountService creates a new account service.
func NewAccountService(st store.Store, log *zap.Logger) *AccountService {
	return &AccountService{store: st, log: log}
}

// Get returns the account by id.
func (s *AccountService) Get(ctx context.Context, id uuid.UUID) (*store.Account, error) {
	return s.store.GetAccount(ctx, id)
}

// UpdateBusinessName changes the name printed on rendered invoices.
// Already-rendered documents keep their committed bytes until an explicit
// re-render.
func (s *AccountService) UpdateBusinessName(ctx context.Context, id uuid.UUID, name string) (*store.Account, error) {
	if name == "" {
		return nil, apperrors.NewValidation("business_name", "must not be empty")
	}
	account, err := s.store.UpdateAccountBusinessName(ctx, id, name)
	if err != nil {
		return nil, err
	}
	s.log.Info("business name updated", zap.String("account_id", id.String()))
	return account, nil
}
