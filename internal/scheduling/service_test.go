package scheduling

import (
	"context"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/slot-booking-core/internal/config"
	"github.com/hackgods/slot-booking-core/internal/logging"
	"github.com/hackgods/slot-booking-core/internal/metrics"
)

type testEnv struct {
	svc      *Service
	store    *memoryStore
	notifier *recordingNotifier
	provider *Provider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemoryStore()
	notifier := &recordingNotifier{}
	cfg := config.Config{
		AdminBookingDuration: 2 * time.Hour,
		SuggestionBuffer:     15 * time.Minute,
		MaxGenerationDays:    366,
	}
	m := metrics.NewSchedulingMetrics(prometheus.NewRegistry())
	svc := NewService(store, cfg, notifier, m, logging.NewWithWriter("error", io.Discard))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.WaitNotifications(ctx)
	})

	p, err := svc.CreateProvider(context.Background(), ProviderInput{Name: "Dana Whitfield"})
	require.NoError(t, err)

	return &testEnv{svc: svc, store: store, notifier: notifier, provider: p}
}

func clock(t *testing.T, s string) civil.Time {
	t.Helper()
	c, err := ParseClock(s)
	require.NoError(t, err)
	return c
}

func date(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

// sentTemplates waits for background notifications and returns what was sent.
func (e *testEnv) sentTemplates(t *testing.T) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.svc.WaitNotifications(ctx))
	return e.notifier.templates()
}

func (e *testEnv) addTemplate(t *testing.T, weekday time.Weekday, start, end string, duration, buffer int) *AvailabilityTemplate {
	t.Helper()
	tpl, err := e.svc.CreateTemplate(context.Background(), TemplateInput{
		ProviderID:          e.provider.ID,
		DayOfWeek:           int(weekday),
		StartTime:           clock(t, start),
		EndTime:             clock(t, end),
		SlotDurationMinutes: duration,
		BufferMinutes:       buffer,
	})
	require.NoError(t, err)
	return tpl
}

// generateMonday fills 2025-12-01 (a Monday) from a 09:00-17:00 template and
// returns the slots in start order.
func (e *testEnv) generateMonday(t *testing.T) []Slot {
	t.Helper()
	e.addTemplate(t, time.Monday, "09:00", "17:00", 60, 15)
	day := date(t, "2025-12-01")
	_, err := e.svc.GenerateSlots(context.Background(), GenerateRequest{StartDate: day, EndDate: day})
	require.NoError(t, err)

	slots, err := e.svc.ListSlots(context.Background(), SlotFilter{From: day, To: day})
	require.NoError(t, err)
	return slots
}

func client() ClientInfo {
	return ClientInfo{Name: "Ada Lovelace", Email: "ada@example.com", ServiceType: "consultation"}
}

func slotAt(slots []Slot, start civil.Time) (Slot, bool) {
	for _, s := range slots {
		if s.StartTime == start {
			return s, true
		}
	}
	return Slot{}, false
}

func mustParseUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
