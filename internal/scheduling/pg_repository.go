package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	activeBookingConstraint = "bookings_active_slot_key"
)

const (
	providerColumns = `id, name, email, phone, is_active, created_at, updated_at`
	templateColumns = `id, provider_id, day_of_week, start_time, end_time, slot_duration_minutes, buffer_minutes, is_active, created_at, updated_at`
	slotColumns     = `id, provider_id, date, start_time, end_time, status, created_at, updated_at`
	bookingColumns  = `id, time_slot_id, client_name, client_email, client_phone, address_line, city, postal_code, service_type, notes, status, created_at, updated_at`

	joinedBookingColumns = `b.id, b.time_slot_id, b.client_name, b.client_email, b.client_phone, b.address_line, b.city, b.postal_code, b.service_type, b.notes, b.status, b.created_at, b.updated_at,
		s.id, s.provider_id, s.date, s.start_time, s.end_time, s.status, s.created_at, s.updated_at`
)

// Helpers

func pgDate(d civil.Date) pgtype.Date {
	return pgtype.Date{Time: d.In(time.UTC), Valid: true}
}

func optPgDate(d *civil.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgDate(*d)
}

func pgTime(t civil.Time) pgtype.Time {
	us := int64(t.Hour)*int64(time.Hour/time.Microsecond) +
		int64(t.Minute)*int64(time.Minute/time.Microsecond) +
		int64(t.Second)*int64(time.Second/time.Microsecond) +
		int64(t.Nanosecond)/int64(time.Microsecond/time.Nanosecond)
	return pgtype.Time{Microseconds: us, Valid: true}
}

func civilDate(d pgtype.Date) civil.Date {
	return civil.DateOf(d.Time)
}

func civilTime(t pgtype.Time) civil.Time {
	d := time.Duration(t.Microseconds) * time.Microsecond
	return civil.Time{
		Hour:       int(d / time.Hour),
		Minute:     int(d % time.Hour / time.Minute),
		Second:     int(d % time.Minute / time.Second),
		Nanosecond: int(d % time.Second),
	}
}

func optString[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func pgErrCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanTemplate(row pgx.Row) (*AvailabilityTemplate, error) {
	var (
		t          AvailabilityTemplate
		dow        int16
		start, end pgtype.Time
	)
	err := row.Scan(
		&t.ID,
		&t.ProviderID,
		&dow,
		&start,
		&end,
		&t.SlotDurationMinutes,
		&t.BufferMinutes,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}

	t.DayOfWeek = time.Weekday(dow)
	t.StartTime = civilTime(start)
	t.EndTime = civilTime(end)
	return &t, nil
}

func slotDest(s *Slot, date *pgtype.Date, start, end *pgtype.Time, status *string) []any {
	return []any{&s.ID, &s.ProviderID, date, start, end, status, &s.CreatedAt, &s.UpdatedAt}
}

func finishSlot(s *Slot, date pgtype.Date, start, end pgtype.Time, status string) error {
	st, err := ParseSlotStatus(status)
	if err != nil {
		return fmt.Errorf("slot %s: %w", s.ID, err)
	}
	s.Date = civilDate(date)
	s.StartTime = civilTime(start)
	s.EndTime = civilTime(end)
	s.Status = st
	return nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var (
		s          Slot
		date       pgtype.Date
		start, end pgtype.Time
		status     string
	)
	if err := row.Scan(slotDest(&s, &date, &start, &end, &status)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	if err := finishSlot(&s, date, start, end, status); err != nil {
		return nil, err
	}
	return &s, nil
}

type bookingScan struct {
	b                        Booking
	addrLine, city, postcode *string
	status                   string
}

func (bs *bookingScan) dest() []any {
	return []any{
		&bs.b.ID,
		&bs.b.SlotID,
		&bs.b.Client.Name,
		&bs.b.Client.Email,
		&bs.b.Client.Phone,
		&bs.addrLine,
		&bs.city,
		&bs.postcode,
		&bs.b.Client.ServiceType,
		&bs.b.Client.Notes,
		&bs.status,
		&bs.b.CreatedAt,
		&bs.b.UpdatedAt,
	}
}

func (bs *bookingScan) finish() (*Booking, error) {
	st, err := ParseBookingStatus(bs.status)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", bs.b.ID, err)
	}
	bs.b.Status = st
	if bs.addrLine != nil || bs.city != nil || bs.postcode != nil {
		addr := &Address{}
		if bs.addrLine != nil {
			addr.Line = *bs.addrLine
		}
		if bs.city != nil {
			addr.City = *bs.city
		}
		if bs.postcode != nil {
			addr.PostalCode = *bs.postcode
		}
		bs.b.Client.Address = addr
	}
	b := bs.b
	return &b, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var bs bookingScan
	if err := row.Scan(bs.dest()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return bs.finish()
}

func scanBookingWithSlot(row pgx.Row) (*Booking, error) {
	var (
		bs         bookingScan
		s          Slot
		date       pgtype.Date
		start, end pgtype.Time
		slotStatus string
	)
	dest := append(bs.dest(), slotDest(&s, &date, &start, &end, &slotStatus)...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	b, err := bs.finish()
	if err != nil {
		return nil, err
	}
	if err := finishSlot(&s, date, start, end, slotStatus); err != nil {
		return nil, err
	}
	b.Slot = &s
	return b, nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (*T, error)) ([]T, error) {
	defer rows.Close()

	var result []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Providers

func (r *PgRepository) CreateProvider(ctx context.Context, p Provider) (*Provider, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO providers (id, name, email, phone, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+providerColumns,
		uuid.New(), p.Name, p.Email, p.Phone, p.IsActive)
	return scanProvider(row)
}

func (r *PgRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id)
	return scanProvider(row)
}

func (r *PgRepository) ListProviders(ctx context.Context, activeOnly bool) ([]Provider, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE NOT $1 OR is_active
		ORDER BY name, id
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	return collect(rows, scanProvider)
}

// Templates

func (r *PgRepository) CreateTemplate(ctx context.Context, t AvailabilityTemplate) (*AvailabilityTemplate, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO availability_templates
			(id, provider_id, day_of_week, start_time, end_time, slot_duration_minutes, buffer_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+templateColumns,
		uuid.New(), t.ProviderID, int16(t.DayOfWeek), pgTime(t.StartTime), pgTime(t.EndTime),
		t.SlotDurationMinutes, t.BufferMinutes, t.IsActive)

	tpl, err := scanTemplate(row)
	if err != nil {
		if code, _ := pgErrCode(err); code == pgForeignKeyViolation {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return tpl, nil
}

func (r *PgRepository) UpdateTemplate(ctx context.Context, t AvailabilityTemplate) (*AvailabilityTemplate, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE availability_templates
		SET day_of_week = $2,
		    start_time = $3,
		    end_time = $4,
		    slot_duration_minutes = $5,
		    buffer_minutes = $6,
		    is_active = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+templateColumns,
		t.ID, int16(t.DayOfWeek), pgTime(t.StartTime), pgTime(t.EndTime),
		t.SlotDurationMinutes, t.BufferMinutes, t.IsActive)
	return scanTemplate(row)
}

func (r *PgRepository) DeactivateTemplate(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE availability_templates
		SET is_active = false,
		    updated_at = CASE WHEN is_active THEN now() ELSE updated_at END
		WHERE id = $1
		RETURNING `+templateColumns, id)
	return scanTemplate(row)
}

func (r *PgRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	row := r.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM availability_templates WHERE id = $1`, id)
	return scanTemplate(row)
}

func (r *PgRepository) ListTemplates(ctx context.Context, f TemplateFilter) ([]AvailabilityTemplate, error) {
	var dow *int16
	if f.DayOfWeek != nil {
		d := int16(*f.DayOfWeek)
		dow = &d
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+templateColumns+`
		FROM availability_templates
		WHERE ($1::uuid IS NULL OR provider_id = $1)
		  AND ($2::smallint IS NULL OR day_of_week = $2)
		  AND (NOT $3 OR is_active)
		ORDER BY provider_id, day_of_week, updated_at DESC, id
	`, f.ProviderID, dow, f.ActiveOnly)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return collect(rows, scanTemplate)
}

// Slots

func (r *PgRepository) InsertSlotsIfAbsent(ctx context.Context, slots []Slot) (int64, error) {
	if len(slots) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, len(slots))
	providers := make([]uuid.UUID, len(slots))
	dates := make([]pgtype.Date, len(slots))
	starts := make([]pgtype.Time, len(slots))
	ends := make([]pgtype.Time, len(slots))
	for i, s := range slots {
		ids[i] = s.ID
		if ids[i] == uuid.Nil {
			ids[i] = uuid.New()
		}
		providers[i] = s.ProviderID
		dates[i] = pgDate(s.Date)
		starts[i] = pgTime(s.StartTime)
		ends[i] = pgTime(s.EndTime)
	}

	tag, err := r.db.Exec(ctx, `
		INSERT INTO slots (id, provider_id, date, start_time, end_time, status)
		SELECT c.id, c.provider_id, c.date, c.start_time, c.end_time, 'available'
		FROM unnest($1::uuid[], $2::uuid[], $3::date[], $4::time[], $5::time[])
		     AS c(id, provider_id, date, start_time, end_time)
		ON CONFLICT (provider_id, date, start_time) DO NOTHING
	`, ids, providers, dates, starts, ends)
	if err != nil {
		return 0, fmt.Errorf("insert slots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE date BETWEEN $1 AND $2
		  AND ($3::uuid IS NULL OR provider_id = $3)
		  AND ($4::text IS NULL OR status = $4)
		ORDER BY date, start_time, provider_id
	`, pgDate(f.From), pgDate(f.To), f.ProviderID, optString(f.Status))
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return collect(rows, scanSlot)
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	// booked is only ever set together with a booking insert.
	if from == SlotBooked || to == SlotBooked {
		return nil, ErrInvalidTransition
	}

	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+slotColumns, id, string(to), string(from))
	return scanSlot(row)
}

func (r *PgRepository) ListBookedOverlapping(ctx context.Context, providerID uuid.UUID, date civil.Date, start, end civil.Time) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE provider_id = $1
		  AND date = $2
		  AND status = 'booked'
		  AND start_time < $4
		  AND end_time > $3
		ORDER BY start_time
	`, providerID, pgDate(date), pgTime(start), pgTime(end))
	if err != nil {
		return nil, fmt.Errorf("list overlapping slots: %w", err)
	}
	return collect(rows, scanSlot)
}

// Bookings

func insertBooking(ctx context.Context, tx pgx.Tx, slotID uuid.UUID, c ClientInfo) (*Booking, error) {
	var addrLine, city, postcode *string
	if c.Address != nil {
		addrLine, city, postcode = &c.Address.Line, &c.Address.City, &c.Address.PostalCode
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, time_slot_id, client_name, client_email, client_phone, address_line, city, postal_code, service_type, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'confirmed')
		RETURNING `+bookingColumns,
		uuid.New(), slotID, c.Name, c.Email, c.Phone, addrLine, city, postcode, c.ServiceType, c.Notes)

	b, err := scanBooking(row)
	if err != nil {
		switch code, constraint := pgErrCode(err); {
		case code == pgUniqueViolation && (constraint == "" || constraint == activeBookingConstraint):
			return nil, ErrConflict
		case code == pgForeignKeyViolation:
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	return b, nil
}

func (r *PgRepository) CreateBookingForSlot(ctx context.Context, slotID uuid.UUID, client ClientInfo) (*Booking, error) {
	var booking *Booking

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		b, err := insertBooking(ctx, tx, slotID, client)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			UPDATE slots
			SET status = 'booked',
			    updated_at = now()
			WHERE id = $1
			  AND status = 'available'
			RETURNING `+slotColumns, slotID)
		slot, err := scanSlot(row)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return ErrSlotUnavailable
			}
			return fmt.Errorf("mark slot booked: %w", err)
		}

		b.Slot = slot
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *PgRepository) CreateBookingAt(ctx context.Context, providerID uuid.UUID, date civil.Date, start, end civil.Time, client ClientInfo) (*Booking, error) {
	var booking *Booking

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		// Reuse a non-booked slot at the same start, widening it, or create one.
		row := tx.QueryRow(ctx, `
			INSERT INTO slots (id, provider_id, date, start_time, end_time, status)
			VALUES ($1, $2, $3, $4, $5, 'booked')
			ON CONFLICT (provider_id, date, start_time) DO UPDATE
			SET end_time = EXCLUDED.end_time,
			    status = 'booked',
			    updated_at = now()
			WHERE slots.status <> 'booked'
			RETURNING `+slotColumns,
			uuid.New(), providerID, pgDate(date), pgTime(start), pgTime(end))
		slot, err := scanSlot(row)
		if err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return ErrConflict
			}
			if code, _ := pgErrCode(err); code == pgForeignKeyViolation {
				return ErrProviderNotFound
			}
			return fmt.Errorf("claim slot: %w", err)
		}

		b, err := insertBooking(ctx, tx, slot.ID, client)
		if err != nil {
			return err
		}

		b.Slot = slot
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *PgRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+joinedBookingColumns+`
		FROM bookings b
		JOIN slots s ON s.id = b.time_slot_id
		WHERE b.id = $1
	`, id)
	return scanBookingWithSlot(row)
}

func (r *PgRepository) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+joinedBookingColumns+`
		FROM bookings b
		JOIN slots s ON s.id = b.time_slot_id
		WHERE ($1::uuid IS NULL OR b.time_slot_id = $1)
		  AND ($2::uuid IS NULL OR s.provider_id = $2)
		  AND ($3::date IS NULL OR s.date >= $3)
		  AND ($4::date IS NULL OR s.date <= $4)
		  AND ($5::text IS NULL OR b.status = $5)
		ORDER BY s.date, s.start_time, b.created_at
		LIMIT $6 OFFSET $7
	`, f.SlotID, f.ProviderID, optPgDate(f.From), optPgDate(f.To), optString(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return collect(rows, scanBookingWithSlot)
}

func (r *PgRepository) TransitionBooking(ctx context.Context, id uuid.UUID, from, to BookingStatus) (*Booking, error) {
	var booking *Booking

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = $2,
			    updated_at = now()
			WHERE id = $1
			  AND status = $3
			RETURNING `+bookingColumns, id, string(to), string(from))
		b, err := scanBooking(row)
		if err != nil {
			return err
		}

		if to == BookingCancelled {
			if _, err := tx.Exec(ctx, `
				UPDATE slots
				SET status = 'available',
				    updated_at = now()
				WHERE id = $1
				  AND status = 'booked'
			`, b.SlotID); err != nil {
				return fmt.Errorf("release slot: %w", err)
			}
		}

		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *PgRepository) AppendBookingNote(ctx context.Context, id uuid.UUID, note string) (*Booking, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE bookings
		SET notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+bookingColumns, id, note)
	return scanBooking(row)
}

// Events

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, booking_id, slot_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.BookingID, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
