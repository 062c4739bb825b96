package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type ProviderInput struct {
	Name     string  `validate:"required"`
	Email    *string `validate:"omitempty,email"`
	Phone    *string
	IsActive *bool
}

type TemplateInput struct {
	ProviderID          uuid.UUID
	DayOfWeek           int `validate:"gte=0,lte=6"` // 0 = Sunday
	StartTime           civil.Time
	EndTime             civil.Time
	SlotDurationMinutes int `validate:"gt=0"`
	BufferMinutes       int `validate:"gte=0"`
	IsActive            *bool
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (s *Service) CreateProvider(ctx context.Context, in ProviderInput) (*Provider, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = trimmedOrNil(in.Email)
	in.Phone = trimmedOrNil(in.Phone)
	if err := validateInput(in); err != nil {
		return nil, err
	}
	p := Provider{
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		IsActive: in.IsActive == nil || *in.IsActive,
	}

	created, err := s.repo.CreateProvider(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}
	s.logger.Info("provider created", "provider_id", created.ID)
	return created, nil
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	p, err := s.repo.GetProvider(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

func (s *Service) ListProviders(ctx context.Context, activeOnly bool) ([]Provider, error) {
	providers, err := s.repo.ListProviders(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return providers, nil
}

// validateTemplate runs the tag rules on in, then the checks that span
// fields: a real window that fits at least one slot.
func validateTemplate(in TemplateInput) (AvailabilityTemplate, error) {
	if err := validateInput(in); err != nil {
		return AvailabilityTemplate{}, err
	}
	if !in.StartTime.IsValid() || !in.EndTime.IsValid() {
		return AvailabilityTemplate{}, fmt.Errorf("%w: start and end times are required", ErrInvalidInput)
	}
	start, end := truncateToMinute(in.StartTime), truncateToMinute(in.EndTime)
	if !end.After(start) {
		return AvailabilityTemplate{}, fmt.Errorf("%w: end time must be after start time", ErrInvalidInput)
	}
	if minuteOfDay(start)+in.SlotDurationMinutes > minuteOfDay(end) {
		return AvailabilityTemplate{}, fmt.Errorf("%w: window %s-%s is shorter than one slot", ErrInvalidInput, FormatClock(start), FormatClock(end))
	}

	return AvailabilityTemplate{
		ProviderID:          in.ProviderID,
		DayOfWeek:           time.Weekday(in.DayOfWeek),
		StartTime:           start,
		EndTime:             end,
		SlotDurationMinutes: in.SlotDurationMinutes,
		BufferMinutes:       in.BufferMinutes,
		IsActive:            in.IsActive == nil || *in.IsActive,
	}, nil
}

func (s *Service) CreateTemplate(ctx context.Context, in TemplateInput) (*AvailabilityTemplate, error) {
	t, err := validateTemplate(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetProvider(ctx, in.ProviderID); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateTemplate(ctx, t)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("create template: %w", err)
	}
	s.logger.Info("template created",
		"template_id", created.ID,
		"provider_id", created.ProviderID,
		"day_of_week", int(created.DayOfWeek),
	)
	return created, nil
}

// UpdateTemplate replaces the window of an existing template. The provider
// cannot change.
func (s *Service) UpdateTemplate(ctx context.Context, id uuid.UUID, in TemplateInput) (*AvailabilityTemplate, error) {
	existing, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.ProviderID != uuid.Nil && in.ProviderID != existing.ProviderID {
		return nil, fmt.Errorf("%w: template provider cannot change", ErrInvalidInput)
	}
	in.ProviderID = existing.ProviderID
	if in.IsActive == nil {
		in.IsActive = &existing.IsActive
	}

	t, err := validateTemplate(in)
	if err != nil {
		return nil, err
	}
	t.ID = id

	updated, err := s.repo.UpdateTemplate(ctx, t)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update template: %w", err)
	}
	return updated, nil
}

// DeactivateTemplate is the only way to retire a template; rows are kept.
func (s *Service) DeactivateTemplate(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	t, err := s.repo.DeactivateTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("deactivate template: %w", err)
	}
	s.logger.Info("template deactivated", "template_id", id)
	return t, nil
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	t, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTemplateNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (s *Service) ListTemplates(ctx context.Context, f TemplateFilter) ([]AvailabilityTemplate, error) {
	templates, err := s.repo.ListTemplates(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}
