// Copyright 2026 The Docsync Authors
// SPDX-License-Identifier: Apache-2.0

package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jhsmart/docsync/lib/clock"
	"github.com/jhsmart/docsync/lib/docref"
	"github.com/jhsmart/docsync/lib/docstore"
	"github.com/jhsmart/docsync/lib/mutation"
	"github.com/jhsmart/docsync/lib/sequence"
)

// Writer enqueues background writes. *mutation.Queue implements it.
type Writer interface {
	EnqueueWrite(target docref.Ref, payload docstore.Fields, options ...mutation.Option) error
	EnqueueDelete(target docref.Ref) error
	EnqueueCreate(collection string, payload docstore.Fields) (docref.Ref, error)
}

// Allocator issues service request numbers. *sequence.Allocator
// implements it.
type Allocator interface {
	Allocate(ctx context.Context, name string) (sequence.Result, error)
}

// Config configures a Service. Writer, Allocator, Clock and Logger are
// required.
type Config struct {
	Writer    Writer
	Allocator Allocator
	Clock     clock.Clock
	Logger    *slog.Logger

	// Counter names the counter contact numbers come from. Defaults
	// to "contactCounter".
	Counter string

	// Contacts and Leads name the record collections. Default to
	// "contacts" and "leads".
	Contacts string
	Leads    string
}

// Service handles submissions and admin actions.
type Service struct {
	writer    Writer
	allocator Allocator
	clock     clock.Clock
	logger    *slog.Logger
	counter   string
	contacts  string
	leads     string
}

// New returns a Service.
func New(cfg Config) (*Service, error) {
	switch {
	case cfg.Writer == nil:
		return nil, errors.New("submission: Writer is required")
	case cfg.Allocator == nil:
		return nil, errors.New("submission: Allocator is required")
	case cfg.Clock == nil:
		return nil, errors.New("submission: Clock is required")
	case cfg.Logger == nil:
		return nil, errors.New("submission: Logger is required")
	}
	s := &Service{
		writer:    cfg.Writer,
		allocator: cfg.Allocator,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		counter:   cfg.Counter,
		contacts:  cfg.Contacts,
		leads:     cfg.Leads,
	}
	if s.counter == "" {
		s.counter = "contactCounter"
	}
	if s.contacts == "" {
		s.contacts = "contacts"
	}
	if s.leads == "" {
		s.leads = "leads"
	}
	return s, nil
}

// Contacts is the name of the contact collection.
func (s *Service) Contacts() string { return s.contacts }

// Leads is the name of the lead collection.
func (s *Service) Leads() string { return s.leads }

func (s *Service) now() string {
	return s.clock.Now().UTC().Format(DateLayout)
}

// SubmitContact validates form, allocates a service request number and
// enqueues the new contact with status Pending. Nothing is written if
// validation or allocation fails.
func (s *Service) SubmitContact(ctx context.Context, form ContactForm) (Contact, error) {
	form = form.Normalize()
	if err := form.Validate(); err != nil {
		return Contact{}, err
	}

	number, err := s.allocator.Allocate(ctx, s.counter)
	if err != nil {
		return Contact{}, fmt.Errorf("submission: allocating service request number: %w", err)
	}

	contact := Contact{
		Name:                 form.Name,
		Email:                form.Email,
		Phone:                form.Phone,
		Message:              form.Message,
		SubmissionDate:       s.now(),
		ServiceRequestNumber: number.FormattedID,
		Status:               StatusPending,
	}
	ref, err := s.create(s.contacts, contact)
	if err != nil {
		return Contact{}, err
	}
	contact.ID = ref.ID

	s.logger.Info("contact submitted",
		"id", contact.ID,
		"service_request_number", contact.ServiceRequestNumber,
	)
	return contact, nil
}

// SubmitLead validates form and enqueues a new lead with status
// Pending.
func (s *Service) SubmitLead(ctx context.Context, form LeadForm) (Lead, error) {
	if err := ctx.Err(); err != nil {
		return Lead{}, err
	}
	form = form.Normalize()
	if err := form.Validate(); err != nil {
		return Lead{}, err
	}

	lead := Lead{
		Name:           form.Name,
		Email:          form.Email,
		Phone:          form.Phone,
		Service:        form.Service,
		Message:        form.Message,
		SubmissionDate: s.now(),
		Status:         StatusPending,
	}
	ref, err := s.create(s.leads, lead)
	if err != nil {
		return Lead{}, err
	}
	lead.ID = ref.ID

	s.logger.Info("lead submitted", "id", lead.ID, "service", lead.Service)
	return lead, nil
}

func (s *Service) create(collection string, record any) (docref.Ref, error) {
	fields, err := docstore.EncodeFields(record)
	if err != nil {
		return docref.Ref{}, fmt.Errorf("submission: encoding %s record: %w", collection, err)
	}
	ref, err := s.writer.EnqueueCreate(collection, fields)
	if err != nil {
		return docref.Ref{}, fmt.Errorf("submission: enqueueing %s record: %w", collection, err)
	}
	return ref, nil
}

// SetStatus changes only the status field of a record.
func (s *Service) SetStatus(collection, id string, status Status) error {
	if !status.Valid() {
		var problems docref.ValidationError
		problems.Add("status", fmt.Sprintf("must be %s or %s", StatusPending, StatusResolved))
		return problems.Err()
	}
	ref := docref.Doc(collection, id)
	if err := s.writer.EnqueueWrite(ref, docstore.Fields{"status": string(status)}, mutation.WithMerge()); err != nil {
		return fmt.Errorf("submission: setting status of %s: %w", ref, err)
	}
	s.logger.Info("status change enqueued", "ref", ref.String(), "status", string(status))
	return nil
}

// DeleteRecord removes a record.
func (s *Service) DeleteRecord(collection, id string) error {
	ref := docref.Doc(collection, id)
	if err := s.writer.EnqueueDelete(ref); err != nil {
		return fmt.Errorf("submission: deleting %s: %w", ref, err)
	}
	s.logger.Info("delete enqueued", "ref", ref.String())
	return nil
}
