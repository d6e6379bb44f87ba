/*
Package sqlite provides a SQLite-backed implementation of booking.TxStore.

PURPOSE:
  Embedded persistence for single-node deployments and local development.
  The PostgreSQL store (store/postgres) implements the same interface for
  multi-node deployments.

KEY TABLES:
  room_arrangements:  Bookable room configurations, terms as JSON
  resources:          Equipment and services, terms as JSON
  reservations:       Reservation headers
  allocations:        Room and resource allocations (soft-deleted by status)

INDEXES:
  - idx_allocations_active: Availability lookups by kind, status and date (hot path)
  - idx_allocations_reservation: Loading a reservation's allocations

CONCURRENCY:
  Transactions are opened with BEGIN IMMEDIATE (_txlock=immediate), so the
  availability re-check and the write that follows hold SQLite's single
  writer lock together. WithTx also serializes writers in-process to avoid
  SQLITE_BUSY under contention. Reads outside a transaction are not locked.

DATES AND TIMES:
  Civil dates are stored as YYYY-MM-DD text, times of day as seconds after
  midnight, money as decimal text.

USAGE:
  store, err := sqlite.New("./data/reservations.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := booking.NewEngine(store, clock, booking.Options{})

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool with versioned migrations.

SEE ALSO:
  - booking/store.go: Interface definitions
  - booking/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/reservation-engine/booking"
)

const dateLayout = "2006-01-02"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements booking.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, queries: queries{q: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
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
		terms_json TEXT NOT NULL,
		PRIMARY KEY (building, floor, room, config, arrange_type)
	);

	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		resource_type TEXT NOT NULL DEFAULT '',
		mode TEXT NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 0,
		home_building TEXT NOT NULL DEFAULT '',
		terms_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resources_type
		ON resources(resource_type);

	CREATE TABLE IF NOT EXISTS reservations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		parent_id INTEGER,
		name TEXT NOT NULL DEFAULT '',
		requested_by TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		period_zone TEXT NOT NULL DEFAULT '',
		time_zone TEXT NOT NULL DEFAULT '',
		attendees_json TEXT,
		comments TEXT NOT NULL DEFAULT '',
		cost TEXT NOT NULL DEFAULT '0',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		modified_by TEXT NOT NULL DEFAULT '',
		modified_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_parent
		ON reservations(parent_id) WHERE parent_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS allocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reservation_id INTEGER NOT NULL REFERENCES reservations(id),
		kind TEXT NOT NULL,
		building TEXT NOT NULL DEFAULT '',
		floor TEXT NOT NULL DEFAULT '',
		room TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL DEFAULT '',
		arrange_type TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 1,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		time_zone TEXT NOT NULL DEFAULT '',
		cost TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		internal_guests INTEGER NOT NULL DEFAULT 0,
		external_guests INTEGER NOT NULL DEFAULT 0,
		comments TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		modified_by TEXT NOT NULL DEFAULT '',
		modified_at TEXT NOT NULL,
		cancelled_at TEXT
	);

	-- Availability lookups (hot path)
	CREATE INDEX IF NOT EXISTS idx_allocations_active
		ON allocations(kind, status, start_date, end_date);

	CREATE INDEX IF NOT EXISTS idx_allocations_reservation
		ON allocations(reservation_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (booking.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store booking.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{queries: queries{q: sqlTx}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// txStore runs every query on the open transaction. It takes no locks.
type txStore struct {
	queries
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"allocations", "reservations", "resources", "room_arrangements"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// queries holds every statement, bound to a database or a transaction.
type queries struct {
	q querier
}

// =============================================================================
// CATALOG (booking.ReservableReader, booking.CatalogWriter)
// =============================================================================

func (qs *queries) SaveRoomArrangement(ctx context.Context, r *booking.RoomArrangement) error {
	terms, err := json.Marshal(r.Terms)
	if err != nil {
		return errors.Wrap(err, "failed to encode room terms")
	}
	_, err = qs.q.ExecContext(ctx, `
		INSERT INTO room_arrangements
		(building, floor, room, config, arrange_type, name, capacity, is_default, terms_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (building, floor, room, config, arrange_type) DO UPDATE SET
			name = excluded.name,
			capacity = excluded.capacity,
			is_default = excluded.is_default,
			terms_json = excluded.terms_json
	`,
		r.Key.Building, r.Key.Floor, r.Key.Room, r.Key.Config, r.Key.ArrangeType,
		r.Name, r.Capacity, r.IsDefault, string(terms),
	)
	if err != nil {
		return errors.Wrap(err, "failed to save room arrangement")
	}
	return nil
}

func (qs *queries) SaveResource(ctx context.Context, r *booking.Resource) error {
	terms, err := json.Marshal(r.Terms)
	if err != nil {
		return errors.Wrap(err, "failed to encode resource terms")
	}
	_, err = qs.q.ExecContext(ctx, `
		INSERT INTO resources (id, name, resource_type, mode, quantity, home_building, terms_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			resource_type = excluded.resource_type,
			mode = excluded.mode,
			quantity = excluded.quantity,
			home_building = excluded.home_building,
			terms_json = excluded.terms_json
	`,
		r.ID, r.Name, r.ResourceType, r.Mode, r.Quantity, r.HomeBuilding, string(terms),
	)
	if err != nil {
		return errors.Wrap(err, "failed to save resource")
	}
	return nil
}

const roomColumns = `building, floor, room, config, arrange_type, name, capacity, is_default, terms_json`

func (qs *queries) RoomArrangement(ctx context.Context, key booking.RoomKey) (*booking.RoomArrangement, error) {
	row := qs.q.QueryRowContext(ctx, `
		SELECT `+roomColumns+` FROM room_arrangements
		WHERE building = ? AND floor = ? AND room = ? AND config = ? AND arrange_type = ?
	`, key.Building, key.Floor, key.Room, key.Config, key.ArrangeType)

	r, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(booking.ErrNotFound, "room arrangement %s", key)
	}
	return r, err
}

func (qs *queries) ListRoomArrangements(ctx context.Context, f booking.CandidateFilter) ([]*booking.RoomArrangement, error) {
	var (
		where []string
		args  []any
	)
	for _, c := range []struct {
		column, value string
	}{
		{"building", f.Building},
		{"floor", f.Floor},
		{"room", f.Room},
		{"arrange_type", f.ArrangeType},
	} {
		if c.value != "" {
			where = append(where, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	where = append(where, "capacity >= ?")
	args = append(args, f.MinCapacity)

	rows, err := qs.q.QueryContext(ctx, `
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

const resourceColumns = `id, name, resource_type, mode, quantity, home_building, terms_json`

func (qs *queries) Resource(ctx context.Context, id string) (*booking.Resource, error) {
	row := qs.q.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(booking.ErrNotFound, "resource %s", id)
	}
	return r, err
}

func (qs *queries) ListResources(ctx context.Context, f booking.CandidateFilter) ([]*booking.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources`
	var args []any
	if f.ResourceType != "" {
		query += ` WHERE resource_type = ?`
		args = append(args, f.ResourceType)
	}
	query += ` ORDER BY id`

	rows, err := qs.q.QueryContext(ctx, query, args...)
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
		// Building and id filters are cheaper to apply here than in SQL.
		if f.MatchesResource(r) {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(row scanner) (*booking.RoomArrangement, error) {
	var (
		r     booking.RoomArrangement
		terms string
	)
	err := row.Scan(
		&r.Key.Building, &r.Key.Floor, &r.Key.Room, &r.Key.Config, &r.Key.ArrangeType,
		&r.Name, &r.Capacity, &r.IsDefault, &terms,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan room arrangement")
	}
	if err := json.Unmarshal([]byte(terms), &r.Terms); err != nil {
		return nil, errors.Wrapf(err, "failed to decode terms of %s", r.Key)
	}
	return &r, nil
}

func scanResource(row scanner) (*booking.Resource, error) {
	var (
		r     booking.Resource
		terms string
	)
	err := row.Scan(&r.ID, &r.Name, &r.ResourceType, &r.Mode, &r.Quantity, &r.HomeBuilding, &terms)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan resource")
	}
	if err := json.Unmarshal([]byte(terms), &r.Terms); err != nil {
		return nil, errors.Wrapf(err, "failed to decode terms of resource %s", r.ID)
	}
	return &r, nil
}

// =============================================================================
// ALLOCATIONS (booking.AllocationReader)
// =============================================================================

const allocationColumns = `
	id, reservation_id, kind, building, floor, room, config, arrange_type,
	resource_id, quantity, start_date, end_date, start_time, end_time, time_zone,
	cost, status, internal_guests, external_guests, comments,
	created_by, created_at, modified_by, modified_at, cancelled_at`

func (qs *queries) ActiveAllocations(ctx context.Context, kind booking.Kind, date time.Time, exclude booking.ReservationID) ([]booking.Allocation, error) {
	day := booking.FormatDate(date)
	return qs.queryAllocations(ctx, `
		SELECT `+allocationColumns+` FROM allocations
		WHERE kind = ?
		  AND status IN (?, ?)
		  AND start_date <= ? AND end_date >= ?
		  AND reservation_id != ?
		ORDER BY reservation_id, id
	`, kind, booking.StatusAwaitingApproval, booking.StatusConfirmed, day, day, int64(exclude))
}

func (qs *queries) ListElapsed(ctx context.Context, before time.Time) ([]booking.Allocation, error) {
	return qs.queryAllocations(ctx, `
		SELECT `+allocationColumns+` FROM allocations
		WHERE status != ? AND end_date < ?
		ORDER BY reservation_id, id
	`, booking.StatusClosed, booking.FormatDate(before))
}

func (qs *queries) Allocation(ctx context.Context, id booking.AllocationID) (*booking.Allocation, error) {
	row := qs.q.QueryRowContext(ctx, `SELECT `+allocationColumns+` FROM allocations WHERE id = ?`, int64(id))
	a, err := scanAllocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(booking.ErrNotFound, "allocation %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (qs *queries) queryAllocations(ctx context.Context, query string, args ...any) ([]booking.Allocation, error) {
	rows, err := qs.q.QueryContext(ctx, query, args...)
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

func scanAllocation(row scanner) (booking.Allocation, error) {
	var (
		a                    booking.Allocation
		id, reservationID    int64
		startDate, endDate   string
		startTime, endTime   int64
		cost                 string
		createdAt            string
		modifiedAt           string
		cancelledAt          sql.NullString
	)
	err := row.Scan(
		&id, &reservationID, &a.Kind,
		&a.Room.Building, &a.Room.Floor, &a.Room.Room, &a.Room.Config, &a.Room.ArrangeType,
		&a.ResourceID, &a.Quantity,
		&startDate, &endDate, &startTime, &endTime, &a.Period.TimeZone,
		&cost, &a.Status, &a.InternalGuests, &a.ExternalGuests, &a.Comments,
		&a.CreatedBy, &createdAt, &a.ModifiedBy, &modifiedAt, &cancelledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, errors.Wrap(err, "failed to scan allocation")
	}

	a.ID = booking.AllocationID(id)
	a.ReservationID = booking.ReservationID(reservationID)
	if a.Period, err = decodePeriod(startDate, endDate, startTime, endTime, a.Period.TimeZone); err != nil {
		return a, err
	}
	a.Cost = parseMoney(cost)
	a.CreatedAt = parseTime(createdAt)
	a.ModifiedAt = parseTime(modifiedAt)
	if cancelledAt.Valid {
		t := parseTime(cancelledAt.String)
		a.CancelledAt = &t
	}
	return a, nil
}

// =============================================================================
// RESERVATIONS
// =============================================================================

const reservationColumns = `
	id, parent_id, name, requested_by, email, status,
	start_date, end_date, start_time, end_time, period_zone, time_zone,
	attendees_json, comments, cost, created_by, created_at, modified_by, modified_at`

func (qs *queries) Reservation(ctx context.Context, id booking.ReservationID) (*booking.Reservation, error) {
	row := qs.q.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, int64(id))

	var (
		r                  booking.Reservation
		rid                int64
		parentID           sql.NullInt64
		startDate, endDate string
		startTime, endTime int64
		periodZone         string
		attendees          sql.NullString
		cost               string
		createdAt          string
		modifiedAt         string
	)
	err := row.Scan(
		&rid, &parentID, &r.Name, &r.RequestedBy, &r.Email, &r.Status,
		&startDate, &endDate, &startTime, &endTime, &periodZone, &r.TimeZone,
		&attendees, &r.Comments, &cost, &r.CreatedBy, &createdAt, &r.ModifiedBy, &modifiedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(booking.ErrNotFound, "reservation %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan reservation")
	}

	r.ID = booking.ReservationID(rid)
	r.ParentID = booking.ReservationID(parentID.Int64)
	if r.Period, err = decodePeriod(startDate, endDate, startTime, endTime, periodZone); err != nil {
		return nil, err
	}
	if attendees.Valid && attendees.String != "" {
		if err := json.Unmarshal([]byte(attendees.String), &r.Attendees); err != nil {
			return nil, errors.Wrapf(err, "failed to decode attendees of reservation %d", id)
		}
	}
	r.Cost = parseMoney(cost)
	r.CreatedAt = parseTime(createdAt)
	r.ModifiedAt = parseTime(modifiedAt)

	allocs, err := qs.queryAllocations(ctx, `
		SELECT `+allocationColumns+` FROM allocations
		WHERE reservation_id = ?
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

// SaveReservation inserts or updates the header and every allocation.
func (qs *queries) SaveReservation(ctx context.Context, r *booking.Reservation) error {
	attendees, err := json.Marshal(r.Attendees)
	if err != nil {
		return errors.Wrap(err, "failed to encode attendees")
	}
	p := r.Period
	args := []any{
		nullInt(int64(r.ParentID)), r.Name, r.RequestedBy, r.Email, r.Status,
		booking.FormatDate(p.StartDate), booking.FormatDate(p.LastDate()),
		seconds(p.StartTime), seconds(p.EndTime), p.TimeZone, r.TimeZone,
		string(attendees), r.Comments, r.Cost.String(),
		r.CreatedBy, formatTime(r.CreatedAt), r.ModifiedBy, formatTime(r.ModifiedAt),
	}

	if r.ID == 0 {
		res, err := qs.q.ExecContext(ctx, `
			INSERT INTO reservations
			(parent_id, name, requested_by, email, status,
			 start_date, end_date, start_time, end_time, period_zone, time_zone,
			 attendees_json, comments, cost, created_by, created_at, modified_by, modified_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, args...)
		if err != nil {
			return errors.Wrap(err, "failed to insert reservation")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "failed to read reservation id")
		}
		r.ID = booking.ReservationID(id)
	} else {
		res, err := qs.q.ExecContext(ctx, `
			UPDATE reservations SET
				parent_id = ?, name = ?, requested_by = ?, email = ?, status = ?,
				start_date = ?, end_date = ?, start_time = ?, end_time = ?, period_zone = ?, time_zone = ?,
				attendees_json = ?, comments = ?, cost = ?, created_by = ?, created_at = ?,
				modified_by = ?, modified_at = ?
			WHERE id = ?
		`, append(args, int64(r.ID))...)
		if err != nil {
			return errors.Wrap(err, "failed to update reservation")
		}
		if n, _ := res.RowsAffected(); n == 0 {
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
	var cancelledAt sql.NullString
	if a.CancelledAt != nil {
		cancelledAt = nullString(formatTime(*a.CancelledAt))
	}
	args := []any{
		int64(a.ReservationID), a.Kind,
		a.Room.Building, a.Room.Floor, a.Room.Room, a.Room.Config, a.Room.ArrangeType,
		a.ResourceID, a.Quantity,
		booking.FormatDate(p.StartDate), booking.FormatDate(p.LastDate()),
		seconds(p.StartTime), seconds(p.EndTime), p.TimeZone,
		a.Cost.String(), a.Status, a.InternalGuests, a.ExternalGuests, a.Comments,
		a.CreatedBy, formatTime(a.CreatedAt), a.ModifiedBy, formatTime(a.ModifiedAt), cancelledAt,
	}

	if a.ID == 0 {
		res, err := qs.q.ExecContext(ctx, `
			INSERT INTO allocations
			(reservation_id, kind, building, floor, room, config, arrange_type,
			 resource_id, quantity, start_date, end_date, start_time, end_time, time_zone,
			 cost, status, internal_guests, external_guests, comments,
			 created_by, created_at, modified_by, modified_at, cancelled_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, args...)
		if err != nil {
			return errors.Wrap(err, "failed to insert allocation")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "failed to read allocation id")
		}
		a.ID = booking.AllocationID(id)
		return nil
	}

	_, err := qs.q.ExecContext(ctx, `
		UPDATE allocations SET
			reservation_id = ?, kind = ?, building = ?, floor = ?, room = ?, config = ?, arrange_type = ?,
			resource_id = ?, quantity = ?, start_date = ?, end_date = ?, start_time = ?, end_time = ?,
			time_zone = ?, cost = ?, status = ?, internal_guests = ?, external_guests = ?, comments = ?,
			created_by = ?, created_at = ?, modified_by = ?, modified_at = ?, cancelled_at = ?
		WHERE id = ?
	`, append(args, int64(a.ID))...)
	if err != nil {
		return errors.Wrap(err, "failed to update allocation")
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func seconds(t booking.TimeOfDay) int64 {
	return int64(t.Duration() / time.Second)
}

func decodePeriod(startDate, endDate string, startTime, endTime int64, zone string) (booking.TimePeriod, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return booking.TimePeriod{}, errors.Wrapf(err, "bad stored date %q", startDate)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return booking.TimePeriod{}, errors.Wrapf(err, "bad stored date %q", endDate)
	}
	p := booking.TimePeriod{
		StartDate: start,
		StartTime: booking.TimeOfDay(time.Duration(startTime) * time.Second),
		EndTime:   booking.TimeOfDay(time.Duration(endTime) * time.Second),
		TimeZone:  zone,
	}
	if end.After(start) {
		p.EndDate = end
	}
	return p, nil
}

func parseMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}
