package scheduling

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type GenerateRequest struct {
	// ProviderID limits generation to one provider; nil means every active provider.
	ProviderID *uuid.UUID
	StartDate  civil.Date
	EndDate    civil.Date
}

type GenerateResult struct {
	// Created counts only rows that did not exist before.
	Created int64
	// Candidates counts every slot the templates expanded to.
	Candidates int
}

// HorizonRequest covers [today, today+days] for every active provider.
// Negative days are treated as zero.
func HorizonRequest(today civil.Date, days int) GenerateRequest {
	if days < 0 {
		days = 0
	}
	return GenerateRequest{StartDate: today, EndDate: today.AddDays(days)}
}

// ExpandTemplate returns the slots template t produces on date d. The buffer
// sits between consecutive slots only and a slot that would run past the end
// of the window is dropped.
func ExpandTemplate(t AvailabilityTemplate, d civil.Date) []Slot {
	dur := t.SlotDurationMinutes
	if dur <= 0 {
		return nil
	}
	step := dur + max(t.BufferMinutes, 0)
	end := minuteOfDay(t.EndTime)

	var out []Slot
	for cur := minuteOfDay(t.StartTime); cur+dur <= end; cur += step {
		out = append(out, Slot{
			ProviderID: t.ProviderID,
			Date:       d,
			StartTime:  timeAtMinute(cur),
			EndTime:    timeAtMinute(cur + dur),
			Status:     SlotAvailable,
		})
	}
	return out
}

type templateKey struct {
	providerID uuid.UUID
	weekday    time.Weekday
}

// mostSpecific keeps one active template per (provider, weekday): the most
// recently updated one, ties broken by id.
func mostSpecific(templates []AvailabilityTemplate) map[templateKey]AvailabilityTemplate {
	out := make(map[templateKey]AvailabilityTemplate)
	for _, t := range templates {
		if !t.IsActive {
			continue
		}
		k := templateKey{t.ProviderID, t.DayOfWeek}
		cur, ok := out[k]
		if !ok || t.UpdatedAt.After(cur.UpdatedAt) ||
			(t.UpdatedAt.Equal(cur.UpdatedAt) && t.ID.String() > cur.ID.String()) {
			out[k] = t
		}
	}
	return out
}

// daysInRange counts the dates in the inclusive range [from, to].
func daysInRange(from, to civil.Date) int {
	return int(to.In(time.UTC).Sub(from.In(time.UTC)).Hours()/24) + 1
}

func (s *Service) validateRange(from, to civil.Date) error {
	if !from.IsValid() || !to.IsValid() {
		return fmt.Errorf("%w: start and end dates are required", ErrInvalidInput)
	}
	if to.Before(from) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidInput, to, from)
	}
	if n := daysInRange(from, to); n > s.cfg.MaxGenerationDays {
		return fmt.Errorf("%w: range covers %d days, limit is %d", ErrInvalidInput, n, s.cfg.MaxGenerationDays)
	}
	return nil
}

// GenerateSlots expands active templates into slots over the inclusive date
// range. Existing slots are never touched, so re-running over the same range
// is safe at any time and reports zero new rows.
func (s *Service) GenerateSlots(ctx context.Context, req GenerateRequest) (res GenerateResult, err error) {
	ctx, span := s.startSpan(ctx, "GenerateSlots",
		attribute.String("range.start", req.StartDate.String()),
		attribute.String("range.end", req.EndDate.String()),
	)
	defer func() { endSpan(span, err) }()

	if err := s.validateRange(req.StartDate, req.EndDate); err != nil {
		return GenerateResult{}, err
	}

	active := make(map[uuid.UUID]bool)
	if req.ProviderID != nil {
		p, err := s.repo.GetProvider(ctx, *req.ProviderID)
		if err != nil {
			return GenerateResult{}, err
		}
		if !p.IsActive {
			return GenerateResult{}, fmt.Errorf("%w: provider %s is inactive", ErrInvalidInput, p.ID)
		}
		active[p.ID] = true
	} else {
		providers, err := s.repo.ListProviders(ctx, true)
		if err != nil {
			return GenerateResult{}, fmt.Errorf("list providers: %w", err)
		}
		for _, p := range providers {
			active[p.ID] = true
		}
	}

	templates, err := s.repo.ListTemplates(ctx, TemplateFilter{ProviderID: req.ProviderID, ActiveOnly: true})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("list templates: %w", err)
	}

	byWeekday := make(map[time.Weekday][]AvailabilityTemplate)
	for k, t := range mostSpecific(templates) {
		if active[k.providerID] {
			byWeekday[k.weekday] = append(byWeekday[k.weekday], t)
		}
	}

	var candidates []Slot
	for d := req.StartDate; !d.After(req.EndDate); d = d.AddDays(1) {
		for _, t := range byWeekday[d.Weekday()] {
			candidates = append(candidates, ExpandTemplate(t, d)...)
		}
	}
	if len(candidates) == 0 {
		return GenerateResult{}, ErrNoTemplates
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c < 0
		}
		return a.ProviderID.String() < b.ProviderID.String()
	})

	created, err := s.repo.InsertSlotsIfAbsent(ctx, candidates)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("insert slots: %w", err)
	}

	s.metrics.ObserveGenerated(created)
	s.logger.Info("slots generated",
		"start_date", req.StartDate.String(),
		"end_date", req.EndDate.String(),
		"candidates", len(candidates),
		"created", created,
	)
	payload := map[string]any{
		"start_date": req.StartDate.String(),
		"end_date":   req.EndDate.String(),
		"candidates": len(candidates),
		"created":    created,
	}
	if req.ProviderID != nil {
		payload["provider_id"] = req.ProviderID.String()
	}
	s.logEvent(ctx, EventSlotsGenerated, nil, nil, payload)

	return GenerateResult{Created: created, Candidates: len(candidates)}, nil
}
