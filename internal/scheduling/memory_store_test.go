package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hackgods/slot-booking-core/internal/notify"
)

// memoryStore is an in-memory Repository enforcing the same uniqueness rules
// as the SQL schema. All writes happen under one mutex, which stands in for
// the database's transactional guarantees.
type memoryStore struct {
	mu        sync.Mutex
	providers map[uuid.UUID]Provider
	templates map[uuid.UUID]AvailabilityTemplate
	slots     map[uuid.UUID]Slot
	bookings  map[uuid.UUID]Booking
	events    []EventLog
	clock     time.Time

	// afterGetSlot runs outside the lock after every GetSlotByID.
	afterGetSlot func()
}

type slotKey struct {
	providerID uuid.UUID
	date       civil.Date
	start      civil.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		providers: make(map[uuid.UUID]Provider),
		templates: make(map[uuid.UUID]AvailabilityTemplate),
		slots:     make(map[uuid.UUID]Slot),
		bookings:  make(map[uuid.UUID]Booking),
		clock:     time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing timestamp so "most recent" is well defined.
func (m *memoryStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memoryStore) CreateProvider(_ context.Context, p Provider) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = m.tick()
	p.UpdatedAt = p.CreatedAt
	m.providers[p.ID] = p
	return &p, nil
}

func (m *memoryStore) GetProvider(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (m *memoryStore) ListProviders(_ context.Context, activeOnly bool) ([]Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Provider
	for _, p := range m.providers {
		if !activeOnly || p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryStore) CreateTemplate(_ context.Context, t AvailabilityTemplate) (*AvailabilityTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[t.ProviderID]; !ok {
		return nil, ErrProviderNotFound
	}
	t.ID = uuid.New()
	t.CreatedAt = m.tick()
	t.UpdatedAt = t.CreatedAt
	m.templates[t.ID] = t
	return &t, nil
}

func (m *memoryStore) UpdateTemplate(_ context.Context, t AvailabilityTemplate) (*AvailabilityTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.templates[t.ID]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	t.ProviderID = cur.ProviderID
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = m.tick()
	m.templates[t.ID] = t
	return &t, nil
}

func (m *memoryStore) DeactivateTemplate(_ context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	if t.IsActive {
		t.IsActive = false
		t.UpdatedAt = m.tick()
		m.templates[id] = t
	}
	return &t, nil
}

func (m *memoryStore) GetTemplate(_ context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return &t, nil
}

func (m *memoryStore) ListTemplates(_ context.Context, f TemplateFilter) ([]AvailabilityTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []AvailabilityTemplate
	for _, t := range m.templates {
		if f.ProviderID != nil && t.ProviderID != *f.ProviderID {
			continue
		}
		if f.DayOfWeek != nil && t.DayOfWeek != *f.DayOfWeek {
			continue
		}
		if f.ActiveOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memoryStore) findSlot(k slotKey) (Slot, bool) {
	for _, s := range m.slots {
		if s.ProviderID == k.providerID && s.Date == k.date && s.StartTime == k.start {
			return s, true
		}
	}
	return Slot{}, false
}

func (m *memoryStore) InsertSlotsIfAbsent(_ context.Context, slots []Slot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var created int64
	for _, s := range slots {
		if _, exists := m.findSlot(slotKey{s.ProviderID, s.Date, s.StartTime}); exists {
			continue
		}
		s.ID = uuid.New()
		s.Status = SlotAvailable
		s.CreatedAt = m.tick()
		s.UpdatedAt = s.CreatedAt
		m.slots[s.ID] = s
		created++
	}
	return created, nil
}

func (m *memoryStore) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	s, ok := m.slots[id]
	hook := m.afterGetSlot
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (m *memoryStore) ListSlots(_ context.Context, f SlotFilter) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Slot
	for _, s := range m.slots {
		if s.Date.Before(f.From) || s.Date.After(f.To) {
			continue
		}
		if f.ProviderID != nil && s.ProviderID != *f.ProviderID {
			continue
		}
		if f.Status != nil && s.Status != *f.Status {
			continue
		}
		out = append(out, s)
	}
	sortSlots(out)
	return out, nil
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if c := slots[i].Date.Compare(slots[j].Date); c != 0 {
			return c < 0
		}
		return slots[i].StartTime.Before(slots[j].StartTime)
	})
}

func (m *memoryStore) UpdateSlotStatus(_ context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	if from == SlotBooked || to == SlotBooked {
		return nil, ErrInvalidTransition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || s.Status != from {
		return nil, ErrSlotNotFound
	}
	s.Status = to
	s.UpdatedAt = m.tick()
	m.slots[id] = s
	return &s, nil
}

func (m *memoryStore) ListBookedOverlapping(_ context.Context, providerID uuid.UUID, date civil.Date, start, end civil.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Slot
	for _, s := range m.slots {
		if s.ProviderID == providerID && s.Date == date && s.Status == SlotBooked && s.Overlaps(start, end) {
			out = append(out, s)
		}
	}
	sortSlots(out)
	return out, nil
}

func (m *memoryStore) hasConfirmed(slotID uuid.UUID) bool {
	for _, b := range m.bookings {
		if b.SlotID == slotID && b.Status == BookingConfirmed {
			return true
		}
	}
	return false
}

func (m *memoryStore) insertBooking(slotID uuid.UUID, c ClientInfo) (Booking, error) {
	if _, ok := m.slots[slotID]; !ok {
		return Booking{}, ErrSlotNotFound
	}
	if m.hasConfirmed(slotID) {
		return Booking{}, ErrConflict
	}
	now := m.tick()
	b := Booking{ID: uuid.New(), SlotID: slotID, Client: c, Status: BookingConfirmed, CreatedAt: now, UpdatedAt: now}
	m.bookings[b.ID] = b
	return b, nil
}

func (m *memoryStore) CreateBookingForSlot(_ context.Context, slotID uuid.UUID, client ClientInfo) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.insertBooking(slotID, client)
	if err != nil {
		return nil, err
	}
	s := m.slots[slotID]
	if s.Status != SlotAvailable {
		delete(m.bookings, b.ID)
		return nil, ErrSlotUnavailable
	}
	s.Status = SlotBooked
	m.slots[slotID] = s
	b.Slot = &s
	return &b, nil
}

func (m *memoryStore) CreateBookingAt(_ context.Context, providerID uuid.UUID, date civil.Date, start, end civil.Time, client ClientInfo) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[providerID]; !ok {
		return nil, ErrProviderNotFound
	}
	s, exists := m.findSlot(slotKey{providerID, date, start})
	if exists && s.Status == SlotBooked {
		return nil, ErrConflict
	}
	if !exists {
		s = Slot{ID: uuid.New(), ProviderID: providerID, Date: date, StartTime: start, CreatedAt: m.tick()}
	}
	s.EndTime = end
	s.Status = SlotBooked
	s.UpdatedAt = m.tick()
	m.slots[s.ID] = s

	b, err := m.insertBooking(s.ID, client)
	if err != nil {
		return nil, err
	}
	b.Slot = &s
	return &b, nil
}

func (m *memoryStore) withSlot(b Booking) Booking {
	if s, ok := m.slots[b.SlotID]; ok {
		b.Slot = &s
	}
	return b
}

func (m *memoryStore) GetBookingByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	b = m.withSlot(b)
	return &b, nil
}

func (m *memoryStore) ListBookings(_ context.Context, f BookingFilter) ([]Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Booking
	for _, b := range m.bookings {
		b = m.withSlot(b)
		switch {
		case f.SlotID != nil && b.SlotID != *f.SlotID:
			continue
		case f.ProviderID != nil && b.Slot.ProviderID != *f.ProviderID:
			continue
		case f.From != nil && b.Slot.Date.Before(*f.From):
			continue
		case f.To != nil && b.Slot.Date.After(*f.To):
			continue
		case f.Status != nil && b.Status != *f.Status:
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memoryStore) TransitionBooking(_ context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from {
		return nil, ErrBookingNotFound
	}
	b.Status = to
	b.UpdatedAt = m.tick()
	m.bookings[id] = b
	if to == BookingCancelled {
		if s, ok := m.slots[b.SlotID]; ok && s.Status == SlotBooked {
			s.Status = SlotAvailable
			m.slots[s.ID] = s
		}
	}
	return &b, nil
}

func (m *memoryStore) AppendBookingNote(_ context.Context, id uuid.UUID, note string) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	if b.Client.Notes == "" {
		b.Client.Notes = note
	} else {
		b.Client.Notes += "\n" + note
	}
	m.bookings[id] = b
	return &b, nil
}

func (m *memoryStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memoryStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.EventType
	}
	return out
}

func (m *memoryStore) confirmedFor(slotID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.bookings {
		if b.SlotID == slotID && b.Status == BookingConfirmed {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  []notify.Notification
	err   error
	block chan struct{} // when set, Notify waits for it to close
}

func (r *recordingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) templates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, n := range r.sent {
		out[i] = n.TemplateID
	}
	return out
}
