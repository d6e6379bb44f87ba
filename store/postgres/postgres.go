/*
Package postgres provides a PostgreSQL-backed implementation of booking.TxStore.

PURPOSE:
  Shared persistence for multi-node deployments. Several engine processes
  can write to the same database without double-booking a reservable.

CONCURRENCY:
  WithTx runs at SERIALIZABLE isolation. Two transactions that both read
  the active allocations of a day and then insert a conflicting allocation
  cannot both commit; the loser fails with 40001 and is retried, at which
  point its re-check sees the winner's row and reports the conflict.

  Serialization failures (40001) and deadlocks (40P01) are retried up to
  maxRetries times with exponential backoff and jitter.

TYPES:
  Dates are DATE, times of day are seconds after midnight, money is
  NUMERIC(12,2), terms are JSONB.

SEE ALSO:
  - booking/store.go: Interface definitions
  - store/sqlite: Embedded implementation with the same schema shape
*/
package postgres

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/reservation-engine/booking"
)

const (
	pgErrCodeSerializationFailure = "40001"
	pgErrCodeDeadlockDetected     = "40P01"

	maxRetries  = 3
	backoffBase = 100 * time.Millisecond
)

var (
	errTransactionBegin   = errors.New("failed to begin transaction")
	errTransactionCommit  = errors.New("failed to commit transaction")
	errMaxRetriesExceeded = errors.New("transaction failed after max retries")
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements booking.TxStore using a pgx connection pool.
type Store struct {
	queries
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a pool for dsn and migrates the schema.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The schema is created if missing.
func New(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{pool: pool, logger: logger, queries: queries{q: pool}}
	if err := s.migrate(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to migrate database")
	}
	return s, nil
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_arrangements (
		building TEXT NOT NULL,
		floor TEXT NOT NULL,
		room TEXT NOT NULL,
		config TEXT NOT NULL DEFAULT '',
		arrange_type TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		capacity INTEGER NOT NULL DEFAULT 0,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		terms JSONB NOT NULL,
		PRIMARY KEY (building, floor, room, config, arrange_type)
	);

	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		resource_type TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		home_building TEXT NOT NULL DEFAULT '',
		terms JSONB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reservations (
		id BIGSERIAL PRIMARY KEY,
		parent_id BIGINT,
		name TEXT NOT NULL DEFAULT '',
		requested_by TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		period_zone TEXT NOT NULL DEFAULT '',
		time_zone TEXT NOT NULL DEFAULT '',
		attendees TEXT[] NOT NULL DEFAULT '{}',
		comments TEXT NOT NULL DEFAULT '',
		cost NUMERIC(12,2) NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		modified_by TEXT NOT NULL DEFAULT '',
		modified_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS allocations (
		id BIGSERIAL PRIMARY KEY,
		reservation_id BIGINT NOT NULL REFERENCES reservations(id),
		kind TEXT NOT NULL,
		building TEXT NOT NULL DEFAULT '',
		floor TEXT NOT NULL DEFAULT '',
		room TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '',
		arrange_type TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 1,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		time_zone TEXT NOT NULL DEFAULT '',
		cost NUMERIC(12,2) NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		internal_guests INTEGER NOT NULL DEFAULT 0,
		external_guests INTEGER NOT NULL DEFAULT 0,
		comments TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		modified_by TEXT NOT NULL DEFAULT '',
		modified_at TIMESTAMPTZ NOT NULL,
		cancelled_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_active
		ON allocations(kind, start_date, end_date)
		WHERE status IN ('awaiting_approval', 'confirmed');

	CREATE INDEX IF NOT EXISTS idx_allocations_reservation
		ON allocations(reservation_id);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE allocations, reservations, resources, room_arrangements RESTART IDENTITY`)
	return errors.Wrap(err, "failed to reset database")
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a SERIALIZABLE transaction, retrying it on
// serialization failures and deadlocks. fn may run more than once.
func (s *Store) WithTx(ctx context.Context, fn func(booking.Store) error) error {
	options := pgx.TxOptions{IsoLevel: pgx.Serializable}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		pgxTx, err := s.pool.BeginTx(ctx, options)
		if err != nil {
			return errors.Mark(err, errTransactionBegin)
		}

		err = fn(&txStore{queries: queries{q: pgxTx}})
		if err == nil {
			if err = pgxTx.Commit(ctx); err == nil {
				return nil
			}
			err = errors.Mark(err, errTransactionCommit)
		}

		if rollbackErr := pgxTx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", "attempt", attempt+1, "error", rollbackErr.Error())
		}

		if !isRetryableError(err) {
			return err
		}
		if attempt == maxRetries {
			s.logger.Error("transaction failed after max retries", "attempts", attempt+1, "error", err.Error())
			return errors.Mark(err, errMaxRetriesExceeded)
		}

		wait := calculateBackoff(attempt, backoffBase)
		s.logger.Warn("retrying transaction due to retryable error",
			"attempt", attempt+1,
			"wait_ms", wait.Milliseconds(),
			"error", err.Error())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return errMaxRetriesExceeded
}

type txStore struct {
	queries
}

func calculateBackoff(attempt int, base time.Duration) time.Duration {
	wait := time.Duration(1<<attempt) * base
	return wait + time.Duration(cryptoRandInt63n(int64(wait/5)))
}

func cryptoRandInt63n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(buf[:])&0x7FFFFFFFFFFFFFFF) % n
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgErrCodeSerializationFailure, pgErrCodeDeadlockDetected:
		return true
	default:
		return false
	}
}

// =============================================================================
// QUERIES
// =============================================================================

type queries struct {
	q querier
}

func (qs *queries) SaveRoomArrangement(ctx context.Context, r *booking.RoomArrangement) error {
	terms, err := json.Marshal(r.Terms)
	if err != nil {
		return errors.Wrap(err, "failed to encode room terms")
	}
	_, err = qs.q.Exec(ctx, `
		INSERT INTO room_arrangements
		(building, floor, room, config, arrange_type, name, capacity, is_default, terms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (building, floor, room, config, arrange_type) DO UPDATE SET
			name = EXCLUDED.name,
			capacity = EXCLUDED.capacity,
			is_default = EXCLUDED.is_default,
			terms = EXCLUDED.terms
	`,
		r.Key.Building, r.Key.Floor, r.Key.Room, r.Key.Config, r.Key.ArrangeType,
		r.Name, r.Capacity, r.IsDefault, terms,
	)
	return errors.Wrap(err, "failed to save room arrangement")
}

func (qs *queries) SaveResource(ctx context.Context, r *booking.Resource) error {
	terms, err := json.Marshal(r.Terms)
	if err != nil {
		return errors.Wrap(err, "failed to encode resource terms")
	}
	_, err = qs.q.Exec(ctx, `
		INSERT INTO resources (id, name, resource_type, mode, quantity, home_building, terms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			resource_type = EXCLUDED.resource_type,
			mode = EXCLUDED.mode,
			quantity = EXCLUDED.quantity,
			home_building = EXCLUDED.home_building,
			terms = EXCLUDED.terms
	`,
		r.ID, r.Name, r.ResourceType, string(r.Mode), r.Quantity, r.HomeBuilding, terms,
	)
	return errors.Wrap(err, "failed to save resource")
}

const roomColumns = `building, floor, room, config, arrange_type, name, capacity, is_default, terms`

func (qs *queries) RoomArrangement(ctx context.Context, key booking.RoomKey) (*booking.RoomArrangement, error) {
	row := qs.q.QueryRow(ctx, `
		SELECT `+roomColumns+` FROM room_arrangements
		WHERE building = $1 AND floor = $2 AND room = $3 AND config = $4 AND arrange_type = $5
	`, key.Building, key.Floor, key.Room, key.Config, key.ArrangeType)

	r, err := scanRoom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(booking.ErrNotFound, "room arrangement %s", key)
	}
	return r, err
}

func (qs *queries) ListRoomArrangements(ctx context.Context, f booking.CandidateFilter) ([]*booking.RoomArrangement, error) {
	args := []any{f.MinCapacity}
	where := []string{"capacity >= $1"}
	for _, c := range []struct {
		column, value string
	}{
		{"building", f.Building},
		{"floor", f.Floor},
		{"room", f.Room},
		{"arrange_type", f.ArrangeType},
	} {
		if c.value != "" {
			args = append(args, c.value)
			where = append(where, fmt.Sprintf("%s = $%d", c.column, len(args)))
		}
	}

	rows, err := qs.q.Query(ctx, `
		SELECT `+roomColumns+` FROM room_arrangements
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY building, floor, room, config, arrange_type
	`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query room arrangements")
	}
	defer rows.Close()

	var out []*booking.RoomArrangement
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const resourceColumns = `id, name, resource_type, mode, quantity, home_building, terms`

func (qs *queries) Resource(ctx context.Context, id string) (*booking.Resource, error) {
	r, err := scanResource(qs.q.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(booking.ErrNotFound, "resource %s", id)
	}
	return r, err
}

func (qs *queries) ListResources(ctx context.Context, f booking.CandidateFilter) ([]*booking.Resource, error) {
	rows, err := qs.q.Query(ctx, `
		SELECT `+resourceColumns+` FROM resources
		WHERE ($1 = '' OR resource_type = $1)
		ORDER BY id
	`, f.ResourceType)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query resources")
	}
	defer rows.Close()

	var out []*booking.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		if f.MatchesResource(r) {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

func scanRoom(row pgx.Row) (*booking.RoomArrangement, error) {
	var (
		r     booking.RoomArrangement
		terms []byte
	)
	err := row.Scan(
		&r.Key.Building, &r.Key.Floor, &r.Key.Room, &r.Key.Config, &r.Key.ArrangeType,
		&r.Name, &r.Capacity, &r.IsDefault, &terms,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan room arrangement")
	}
	if err := json.Unmarshal(terms, &r.Terms); err != nil {
		return nil, errors.Wrapf(err, "failed to decode terms of %s", r.Key)
	}
	return &r, nil
}

func scanResource(row pgx.Row) (*booking.Resource, error) {
	var (
		r     booking.Resource
		mode  string
		terms []byte
	)
	err := row.Scan(&r.ID, &r.Name, &r.ResourceType, &mode, &r.Quantity, &r.HomeBuilding, &terms)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan resource")
	}
	r.Mode = booking.ResourceMode(mode)
	if err := json.Unmarshal(terms, &r.Terms); err != nil {
		return nil, errors.Wrapf(err, "failed to decode terms of resource %s", r.ID)
	}
	return &r, nil
}

// -----------------------------------------------------------------------------
// Allocations
// -----------------------------------------------------------------------------

const allocationColumns = `
	id, reservation_id, kind, building, floor, room, config, arrange_type,
	resource_id, quantity, start_date, end_date, start_time, end_time, time_zone,
	cost::text, status, internal_guests, external_guests, comments,
	created_by, created_at, modified_by, modified_at, cancelled_at`

func (qs *queries) ActiveAllocations(ctx context.Context, kind booking.Kind, date time.Time, exclude booking.ReservationID) ([]booking.Allocation, error) {
	return qs.queryAllocations(ctx, `
		SELECT `+allocationColumns+` FROM allocations
		WHERE kind = $1
		  AND status IN ('awaiting_approval', 'confirmed')
		  AND start_date <= $2 AND end_date >= $2
		  AND reservation_id <> $3
		ORDER BY reservation_id, id
	`, string(kind), booking.ClearTime(date), int64(exclude))
}

func (qs *queries) ListElapsed(ctx context.Context, before time.Time) ([]booking.Allocation, error) {
	return qs.queryAllocations(ctx, `
		SELECT `+allocationColumns+` FROM allocations
		WHERE status <> 'closed' AND end_date < $1
		ORDER BY reservation_id, id
	`, booking.ClearTime(before))
}

func (qs *queries) Allocation(ctx context.Context, id booking.AllocationID) (*booking.Allocation, error) {
	a, err := scanAllocation(qs.q.QueryRow(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE id = $1`, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(booking.ErrNotFound, "allocation %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (qs *queries) queryAllocations(ctx context.Context, sql string, args ...any) ([]booking.Allocation, error) {
	rows, err := qs.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query allocations")
	}
	defer rows.Close()

	var out []booking.Allocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAllocation(row pgx.Row) (booking.Allocation, error) {
	var (
		a                  booking.Allocation
		id, reservationID  int64
		kind, status       string
		startDate, endDate time.Time
		startTime, endTime int64
		zone, cost         string
	)
	err := row.Scan(
		&id, &reservationID, &kind,
		&a.Room.Building, &a.Room.Floor, &a.Room.Room, &a.Room.Config, &a.Room.ArrangeType,
		&a.ResourceID, &a.Quantity,
		&startDate, &endDate, &startTime, &endTime, &zone,
		&cost, &status, &a.InternalGuests, &a.ExternalGuests, &a.Comments,
		&a.CreatedBy, &a.CreatedAt, &a.ModifiedBy, &a.ModifiedAt, &a.CancelledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return a, err
		}
		return a, errors.Wrap(err, "failed to scan allocation")
	}
	a.ID = booking.AllocationID(id)
	a.ReservationID = booking.ReservationID(reservationID)
	a.Kind = booking.Kind(kind)
	a.Status = booking.Status(status)
	a.Period = decodePeriod(startDate, endDate, startTime, endTime, zone)
	a.Cost, err = decimal.NewFromString(cost)
	if err != nil {
		return a, errors.Wrapf(err, "bad stored cost %q", cost)
	}
	return a, nil
}

// -----------------------------------------------------------------------------
// Reservations
// -----------------------------------------------------------------------------

func (qs *queries) Reservation(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	var (
		r                  booking.Reservation
		rid                int64
		parentID           *int64
		status             string
		startDate, endDate time.Time
		startTime, endTime int64
		periodZone, cost   string
	)
	err := qs.q.QueryRow(ctx, `
		SELECT id, parent_id, name, requested_by, email, status,
		       start_date, end_date, start_time, end_time, period_zone, time_zone,
		       attendees, comments, cost::text, created_by, created_at, modified_by, modified_at
		FROM reservations WHERE id = $1
	`, int64(id)).Scan(
		&rid, &parentID, &r.Name, &r.RequestedBy, &r.Email, &status,
		&startDate, &endDate, &startTime, &endTime, &periodZone, &r.TimeZone,
		&r.Attendees, &r.Comments, &cost, &r.CreatedBy, &r.CreatedAt, &r.ModifiedBy, &r.ModifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(booking.ErrNotFound, "reservation %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan reservation")
	}

	r.ID = booking.ReservationID(rid)
	if parentID != nil {
		r.ParentID = booking.ReservationID(*parentID)
	}
	r.Status = booking.Status(status)
	r.Period = decodePeriod(startDate, endDate, startTime, endTime, periodZone)
	if r.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, errors.Wrapf(err, "bad stored cost %q", cost)
	}
	if len(r.Attendees) == 0 {
		r.Attendees = nil
	}

	allocs, err := qs.queryAllocations(ctx, `
		SELECT `+allocationColumns+` FROM allocations
		WHERE reservation_id = $1
		ORDER BY id
	`, rid)
	if err != nil {
		return nil, err
	}
	for i := range allocs {
		a := &allocs[i]
		switch a.Kind {
		case booking.KindRoom:
			r.Rooms = append(r.Rooms, a)
		case booking.KindResource:
			r.Resources = append(r.Resources, a)
		}
	}
	return &r, nil
}

func (qs *queries) SaveReservation(ctx context.Context, r *booking.Reservation) error {
	var parentID *int64
	if r.ParentID != 0 {
		v := int64(r.ParentID)
		parentID = &v
	}
	attendees := r.Attendees
	if attendees == nil {
		attendees = []string{}
	}
	p := r.Period
	args := []any{
		parentID, r.Name, r.RequestedBy, r.Email, string(r.Status),
		p.StartDate, p.LastDate(), seconds(p.StartTime), seconds(p.EndTime), p.TimeZone, r.TimeZone,
		attendees, r.Comments, r.Cost.String(),
		r.CreatedBy, r.CreatedAt, r.ModifiedBy, r.ModifiedAt,
	}

	if r.ID == 0 {
		var id int64
		err := qs.q.QueryRow(ctx, `
			INSERT INTO reservations
			(parent_id, name, requested_by, email, status,
			 start_date, end_date, start_time, end_time, period_zone, time_zone,
			 attendees, comments, cost, created_by, created_at, modified_by, modified_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14::text::numeric, $15, $16, $17, $18)
			RETURNING id
		`, args...).Scan(&id)
		if err != nil {
			return errors.Wrap(err, "failed to insert reservation")
		}
		r.ID = booking.ReservationID(id)
	} else {
		tag, err := qs.q.Exec(ctx, `
			UPDATE reservations SET
				parent_id = $1, name = $2, requested_by = $3, email = $4, status = $5,
				start_date = $6, end_date = $7, start_time = $8, end_time = $9, period_zone = $10, time_zone = $11,
				attendees = $12, comments = $13, cost = $14::text::numeric, created_by = $15, created_at = $16,
				modified_by = $17, modified_at = $18
			WHERE id = $19
		`, append(args, int64(r.ID))...)
		if err != nil {
			return errors.Wrap(err, "failed to update reservation")
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(booking.ErrNotFound, "reservation %d", r.ID)
		}
	}

	for _, a := range r.Allocations() {
		a.ReservationID = r.ID
		if err := qs.saveAllocation(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (qs *queries) saveAllocation(ctx context.Context, a *booking.Allocation) error {
	p := a.Period
	args := []any{
		int64(a.ReservationID), string(a.Kind),
		a.Room.Building, a.Room.Floor, a.Room.Room, a.Room.Config, a.Room.ArrangeType,
		a.ResourceID, a.Quantity,
		p.StartDate, p.LastDate(), seconds(p.StartTime), seconds(p.EndTime), p.TimeZone,
		a.Cost.String(), string(a.Status), a.InternalGuests, a.ExternalGuests, a.Comments,
		a.CreatedBy, a.CreatedAt, a.ModifiedBy, a.ModifiedAt, a.CancelledAt,
	}

	if a.ID == 0 {
		var id int64
		err := qs.q.QueryRow(ctx, `
			INSERT INTO allocations
			(reservation_id, kind, building, floor, room, config, arrange_type,
			 resource_id, quantity, start_date, end_date, start_time, end_time, time_zone,
			 cost, status, internal_guests, external_guests, comments,
			 created_by, created_at, modified_by, modified_at, cancelled_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			        $15::text::numeric, $16, $17, $18, $19, $20, $21, $22, $23, $24)
			RETURNING id
		`, args...).Scan(&id)
		if err != nil {
			return errors.Wrap(err, "failed to insert allocation")
		}
		a.ID = booking.AllocationID(id)
		return nil
	}

	_, err := qs.q.Exec(ctx, `
		UPDATE allocations SET
			reservation_id = $1, kind = $2, building = $3, floor = $4, room = $5, config = $6, arrange_type = $7,
			resource_id = $8, quantity = $9, start_date = $10, end_date = $11, start_time = $12, end_time = $13,
			time_zone = $14, cost = $15::text::numeric, status = $16, internal_guests = $17, external_guests = $18,
			comments = $19, created_by = $20, created_at = $21, modified_by = $22, modified_at = $23, cancelled_at = $24
		WHERE id = $25
	`, append(args, int64(a.ID))...)
	return errors.Wrap(err, "failed to update allocation")
}

// =============================================================================
// HELPERS
// =============================================================================

func seconds(t booking.TimeOfDay) int64 {
	return int64(t.Duration() / time.Second)
}

// decodePeriod rebuilds a period from its stored form. DATE values come back
// at UTC midnight, which is how the engine represents civil dates.
func decodePeriod(start, end time.Time, startTime, endTime int64, zone string) booking.TimePeriod {
	p := booking.TimePeriod{
		StartDate: booking.ClearTime(start),
		StartTime: booking.TimeOfDay(time.Duration(startTime) * time.Second),
		EndTime:   booking.TimeOfDay(time.Duration(endTime) * time.Second),
		TimeZone:  zone,
	}
	if end.After(start) {
		p.EndDate = booking.ClearTime(end)
	}
	return p
}
