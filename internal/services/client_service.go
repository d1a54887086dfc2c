package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/apperrors"
	"github.com/invoply/invoply-api/internal/store"
)

// ClientService manages the billable contacts owned by an account.
type ClientService struct {
	store store.Store
	log   *zap.Logger
}

// NewClientService creates a new client service.
func NewClientService(st store.Store, log *zap.Logger) *ClientService {
	return &ClientService{store: st, log: log}
}

// ClientParams is the input to Create and Update.
type ClientParams struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Create adds a client owned by accountID.
func (s *ClientService) Create(ctx context.Context, accountID uuid.UUID, params ClientParams) (*store.Client, error) {
	if params.Name == "" {
		return nil, apperrors.NewValidation("name", "must not be empty")
	}
	client := &store.Client{
		ID:        uuid.New(),
		AccountID: accountID,
		Name:      params.Name,
		Email:     params.Email,
		Phone:     params.Phone,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	s.log.Info("client created",
		zap.String("client_id", client.ID.String()),
		zap.String("account_id", accountID.String()))
	return client, nil
}

// Get returns the client only if accountID owns it.
func (s *ClientService) Get(ctx context.Context, accountID, clientID uuid.UUID) (*store.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client.AccountID != accountID {
		return nil, apperrors.ErrForbidden
	}
	return client, nil
}

// List returns the account's clients, oldest first.
func (s *ClientService) List(ctx context.Context, accountID uuid.UUID) ([]store.Client, error) {
	return s.store.ListClientsByAccount(ctx, accountID)
}

// Update replaces the client's mutable fields.
func (s *ClientService) Update(ctx context.Context, accountID, clientID uuid.UUID, params ClientParams) (*store.Client, error) {
	client, err := s.Get(ctx, accountID, clientID)
	if err != nil {
		return nil, err
	}
	if params.Name == "" {
		return nil, apperrors.NewValidation("name", "must not be empty")
	}
	client.Name = params.Name
	client.Email = params.Email
	client.Phone = params.Phone
	if err := s.store.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

// Delete removes the client. Invoices that reference it keep their snapshot
// of its details in any already-rendered document.
func (s *ClientService) Delete(ctx context.Context, accountID, clientID uuid.UUID) error {
	if _, err := s.Get(ctx, accountID, clientID); err != nil {
		return err
	}
	return s.store.DeleteClient(ctx, clientID)
}
