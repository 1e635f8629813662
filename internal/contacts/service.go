// Package contacts manages per-user address books.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vbilous/contactbook/internal/domain"
	"github.com/vbilous/contactbook/internal/repository"
)

// Service enforces ownership: every operation is scoped to the calling user,
// and a contact owned by someone else is indistinguishable from one that
// does not exist.
type Service struct {
	contacts repository.ContactRepository
	node     *snowflake.Node
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewService wires dependencies.
func NewService(contacts repository.ContactRepository, node *snowflake.Node, logger *zap.Logger) *Service {
	return &Service{
		contacts: contacts,
		node:     node,
		logger:   logger,
		tracer:   otel.Tracer("github.com/vbilous/contactbook/internal/contacts"),
	}
}

// Create stores a new contact for the owner.
func (s *Service) Create(ctx context.Context, ownerID int64, contact domain.Contact) (domain.Contact, error) {
	ctx, span := s.tracer.Start(ctx, "contacts.Create")
	defer span.End()

	if err := validate(contact); err != nil {
		return domain.Contact{}, err
	}

	contact.ID = s.node.Generate().Int64()
	contact.OwnerID = ownerID
	created, err := s.contacts.Create(ctx, contact)
	if err != nil {
		span.RecordError(err)
		return domain.Contact{}, fmt.Errorf("create contact: %w", err)
	}
	return created, nil
}

// Get returns one contact owned by ownerID.
func (s *Service) Get(ctx context.Context, ownerID, id int64) (domain.Contact, error) {
	ctx, span := s.tracer.Start(ctx, "contacts.Get")
	defer span.End()

	contact, err := s.contacts.GetByID(ctx, ownerID, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Contact{}, domain.ErrNotFound
		}
		span.RecordError(err)
		return domain.Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

// List returns the owner's contacts, optionally filtered by a search query.
func (s *Service) List(ctx context.Context, ownerID int64, filter domain.ContactFilter) ([]domain.Contact, error) {
	ctx, span := s.tracer.Start(ctx, "contacts.List")
	defer span.End()

	list, err := s.contacts.List(ctx, ownerID, filter)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return list, nil
}

// Update replaces the mutable fields of an existing contact.
func (s *Service) Update(ctx context.Context, ownerID int64, contact domain.Contact) (domain.Contact, error) {
	ctx, span := s.tracer.Start(ctx, "contacts.Update")
	defer span.End()

	if err := validate(contact); err != nil {
		return domain.Contact{}, err
	}

	contact.OwnerID = ownerID
	updated, err := s.contacts.Update(ctx, contact)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Contact{}, domain.ErrNotFound
		}
		span.RecordError(err)
		return domain.Contact{}, fmt.Errorf("update contact: %w", err)
	}
	return updated, nil
}

// Delete removes a contact owned by ownerID.
func (s *Service) Delete(ctx context.Context, ownerID, id int64) error {
	ctx, span := s.tracer.Start(ctx, "contacts.Delete")
	defer span.End()

	if err := s.contacts.Delete(ctx, ownerID, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("delete contact: %w", err)
	}
	return nil
}

// UpcomingBirthdays lists contacts whose birthday falls within the next days
// days, including today. Days outside [1, 365] fall back to 7.
func (s *Service) UpcomingBirthdays(ctx context.Context, ownerID int64, days int) ([]domain.Contact, error) {
	ctx, span := s.tracer.Start(ctx, "contacts.UpcomingBirthdays")
	defer span.End()

	if days < 1 || days > 365 {
		days = 7
	}
	list, err := s.contacts.UpcomingBirthdays(ctx, ownerID, days)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("upcoming birthdays: %w", err)
	}
	return list, nil
}

func validate(contact domain.Contact) error {
	if strings.TrimSpace(contact.Name) == "" {
		return &domain.Error{Code: "invalid_request", Description: "Contact name is required.", Status: 400}
	}
	return nil
}
