package services

import (
	"context"
	"fmt"

	"github.com/bastionsec/bastion/internal/models"
)

// WhitelistStore defines the exemption-list persistence operations
type WhitelistStore interface {
	Add(ctx context.Context, kind, value, createdBy string) error
	Remove(ctx context.Context, kind, value string) error
	List(ctx context.Context) ([]*models.WhitelistEntry, error)
}

// WhitelistService manages block/inspection exemptions with an audit trail
type WhitelistService struct {
	store WhitelistStore
	audit *AuditService
}

// NewWhitelistService creates a new WhitelistService
func NewWhitelistService(store WhitelistStore, audit *AuditService) *WhitelistService {
	return &WhitelistService{store: store, audit: audit}
}

// Add registers an exemption. Re-adding an existing entry is a no-op.
func (s *WhitelistService) Add(ctx context.Context, kind, value, actorID string) error {
	if kind != models.WhitelistKindIP && kind != models.WhitelistKindURI {
		return fmt.Errorf("%w: unknown whitelist kind %q", models.ErrBadRequest, kind)
	}
	if err := s.store.Add(ctx, kind, value, actorID); err != nil {
		return fmt.Errorf("failed to add whitelist entry: %w", err)
	}
	s.audit.Record(ctx, models.AuditActionWhitelistAdd, models.AuditSubjectIP, value, kind, actorID)
	return nil
}

// Remove deletes an exemption
func (s *WhitelistService) Remove(ctx context.Context, kind, value, actorID string) error {
	if err := s.store.Remove(ctx, kind, value); err != nil {
		return err
	}
	s.audit.Record(ctx, models.AuditActionWhitelistRemove, models.AuditSubjectIP, value, kind, actorID)
	return nil
}

// List returns all exemptions
func (s *WhitelistService) List(ctx context.Context) ([]*models.WhitelistEntry, error) {
	return s.store.List(ctx)
}
