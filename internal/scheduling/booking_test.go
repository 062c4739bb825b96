package scheduling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/slot-booking-core/internal/notify"
)

func TestBookSlot(t *testing.T) {
	env := newTestEnv(t)
	slots := env.generateMonday(t)

	b, err := env.svc.BookSlot(context.Background(), slots[0].ID, ClientInfo{
		Name:  "  Ada Lovelace ",
		Email: "ada@example.com",
		Phone: ptr(" "),
	})
	require.NoError(t, err)

	assert.Equal(t, BookingConfirmed, b.Status)
	assert.Equal(t, "Ada Lovelace", b.Client.Name)
	assert.Nil(t, b.Client.Phone)
	require.NotNil(t, b.Slot)
	assert.Equal(t, SlotBooked, b.Slot.Status)
	assert.Equal(t, 1, env.store.confirmedFor(slots[0].ID))
	assert.Contains(t, env.store.eventTypes(), EventBookingCreated)
	assert.Equal(t, []string{notify.TemplateBookingConfirmed}, env.sentTemplates(t))
}

func TestBookSlotRejections(t *testing.T) {
	env := newTestEnv(t)
	slots := env.generateMonday(t)
	ctx := context.Background()

	_, err := env.svc.BookSlot(ctx, slots[0].ID, ClientInfo{Name: "Ada"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.BookSlot(ctx, slots[0].ID, ClientInfo{Name: "Ada", Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.BookSlot(ctx, mustParseUUID(t, "6f1c1d1e-0000-4000-8000-000000000001"), client())
	assert.ErrorIs(t, err, ErrSlotNotFound)

	_, err = env.svc.MarkBlocked(ctx, slots[1].ID)
	require.NoError(t, err)
	_, err = env.svc.BookSlot(ctx, slots[1].ID, client())
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	_, err = env.svc.BookSlot(ctx, slots[2].ID, client())
	require.NoError(t, err)
	_, err = env.svc.BookSlot(ctx, slots[2].ID, client())
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestBookSlotNotificationFailureDoesNotFailBooking(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("smtp down")
	slots := env.generateMonday(t)

	b, err := env.svc.BookSlot(context.Background(), slots[0].ID, client())
	require.NoError(t, err)
	assert.Equal(t, BookingConfirmed, b.Status)
	assert.Len(t, env.sentTemplates(t), 1)
}

func TestBookSlotDoesNotWaitForNotifier(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.block = make(chan struct{})
	slots := env.generateMonday(t)

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.BookSlot(context.Background(), slots[0].ID, client())
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("BookSlot waited on the notifier")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, env.svc.WaitNotifications(ctx), context.DeadlineExceeded)
	assert.Empty(t, env.notifier.templates())

	close(env.notifier.block)
	assert.Equal(t, []string{notify.TemplateBookingConfirmed}, env.sentTemplates(t))
}

func TestBookSlotConcurrentCallersExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	slots := env.generateMonday(t)
	target := slots[3].ID

	// Hold both callers after the availability check so they race on the insert.
	var gate sync.WaitGroup
	gate.Add(2)
	env.store.afterGetSlot = func() {
		gate.Done()
		gate.Wait()
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.BookSlot(context.Background(), target, client())
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, env.store.confirmedFor(target))
}

func TestBookSlotManyConcurrentCallers(t *testing.T) {
	env := newTestEnv(t)
	slots := env.generateMonday(t)
	target := slots[0].ID

	const callers = 25
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.BookSlot(context.Background(), target, client())
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrSlotUnavailable) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, env.store.confirmedFor(target))
}

func TestBookAtOverlapSuggestsNextTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := date(t, "2025-12-01")

	_, err := env.svc.BookAt(ctx, OverrideRequest{
		ProviderID: env.provider.ID,
		Date:       day,
		StartTime:  clock(t, "10:00"),
		Client:     client(),
	})
	require.NoError(t, err)

	_, err = env.svc.BookAt(ctx, OverrideRequest{
		ProviderID: env.provider.ID,
		Date:       day,
		StartTime:  clock(t, "11:00"),
		Client:     client(),
	})
	require.ErrorIs(t, err, ErrConflict)

	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	require.NotNil(t, ce.SuggestedTime)
	assert.Equal(t, "12:15", FormatClock(*ce.SuggestedTime))
	require.Len(t, ce.Overlapping, 1)
	assert.Equal(t, "10:00", FormatClock(ce.Overlapping[0].StartTime))
}

func TestBookAtHalfOpenIntervals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := date(t, "2025-12-01")

	_, err := env.svc.BookAt(ctx, OverrideRequest{ProviderID: env.provider.ID, Date: day, StartTime: clock(t, "10:00"), Client: client()})
	require.NoError(t, err)

	b, err := env.svc.BookAt(ctx, OverrideRequest{ProviderID: env.provider.ID, Date: day, StartTime: clock(t, "12:00"), Client: client()})
	require.NoError(t, err)
	assert.Equal(t, "14:00", FormatClock(b.Slot.EndTime))

	b, err = env.svc.BookAt(ctx, OverrideRequest{
		ProviderID: env.provider.ID,
		Date:       day,
		StartTime:  clock(t, "09:00"),
		Duration:   time.Hour,
		Client:     client(),
	})
	require.NoError(t, err)
	assert.Equal(t, "10:00", FormatClock(b.Slot.EndTime))
}

func TestBookAtReusesGeneratedSlot(t *testing.T) {
	env := newTestEnv(t)
	slots := env.generateMonday(t)
	day := date(t, "2025-12-01")

	b, err := env.svc.BookAt(context.Background(), OverrideRequest{
		ProviderID: env.provider.ID,
		Date:       day,
		StartTime:  clock(t, "09:00"),
		Client:     client(),
	})
	require.NoError(t, err)

	assert.Equal(t, slots[0].ID, b.SlotID)
	assert.Equal(t, "11:00", FormatClock(b.Slot.EndTime))
	assert.Equal(t, SlotBooked, b.Slot.Status)
	assert.Contains(t, env.store.eventTypes(), EventBookingOverrideCreated)
}

func TestBookAtTruncatesToMinute(t *testing.T) {
	env := newTestEnv(t)
	start := clock(t, "10:30")
	start.Second = 42

	b, err := env.svc.BookAt(context.Background(), OverrideRequest{
		ProviderID: env.provider.ID,
		Date:       date(t, "2025-12-01"),
		StartTime:  start,
		Client:     client(),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, b.Slot.StartTime.Second)
	assert.Equal(t, "12:30", FormatClock(b.Slot.EndTime))
}

func TestBookAtRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := date(t, "2025-12-01")

	_, err := env.svc.BookAt(ctx, OverrideRequest{ProviderID: env.provider.ID, Date: day, StartTime: clock(t, "23:00"), Client: client()})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.BookAt(ctx, OverrideRequest{ProviderID: env.provider.ID, Date: day, StartTime: clock(t, "10:00"), Duration: -time.Hour, Client: client()})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.BookAt(ctx, OverrideRequest{ProviderID: env.provider.ID, Date: day, StartTime: clock(t, "10:00")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.BookAt(ctx, OverrideRequest{ProviderID: mustParseUUID(t, "6f1c1d1e-0000-4000-8000-000000000002"), Date: day, StartTime: clock(t, "10:00"), Client: client()})
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestBookAtDurationBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := date(t, "2025-12-01")

	for _, d := range []time.Duration{30 * time.Second, 24*time.Hour + time.Minute, 25 * time.Hour} {
		_, err := env.svc.BookAt(ctx, OverrideRequest{ProviderID: env.provider.ID, Date: day, StartTime: clock(t, "10:00"), Duration: d, Client: client()})
		assert.ErrorIs(t, err, ErrInvalidInput, d.String())
	}
	assert.Empty(t, env.store.eventTypes())
}

func TestBookAtMustEndBeforeMidnight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := date(t, "2025-12-01")

	_, err := env.svc.BookAt(ctx, OverrideRequest{ProviderID: env.provider.ID, Date: day, StartTime: clock(t, "22:00"), Duration: 120 * time.Minute, Client: client()})
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "must end by 23:59")

	b, err := env.svc.BookAt(ctx, OverrideRequest{ProviderID: env.provider.ID, Date: day, StartTime: clock(t, "22:00"), Duration: 119 * time.Minute, Client: client()})
	require.NoError(t, err)
	assert.Equal(t, "23:59", FormatClock(b.Slot.EndTime))
}

func TestBookAtOmitsSuggestionPastMidnight(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	day := date(t, "2025-12-01")

	_, err := env.svc.BookAt(ctx, OverrideRequest{ProviderID: env.provider.ID, Date: day, StartTime: clock(t, "20:00"), Client: client()})
	require.NoError(t, err)

	_, err = env.svc.BookAt(ctx, OverrideRequest{ProviderID: env.provider.ID, Date: day, StartTime: clock(t, "21:00"), Client: client()})
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Nil(t, ce.SuggestedTime)
}
