//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/warp/reservation-engine/booking"
	"github.com/warp/reservation-engine/store/postgres"
)

const (
	testUser     = "test"
	testPassword = "testpass"
)

var (
	day       = booking.Date(2025, time.March, 12)
	boardroom = booking.RoomKey{Building: "HQ", Floor: "1", Room: "101", Config: "STD", ArrangeType: "CONFERENCE"}
)

// newStore starts a throwaway postgres container for the test.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     testUser,
				"POSTGRES_PASSWORD": testPassword,
				"POSTGRES_DB":       "reservations",
			},
			Tmpfs: map[string]string{"/var/lib/postgresql/data": "rw"},
			Cmd:   []string{"postgres", "-c", "fsync=off", "-c", "synchronous_commit=off"},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/reservations?sslmode=disable", testUser, testPassword, host, port.Port())
	s, err := postgres.Connect(ctx, dsn, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func at(h, m int) booking.TimeOfDay {
	return booking.NewTimeOfDay(h, m, 0)
}

func TestStore_SaveAndLoadReservation(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	p := booking.TimePeriod{StartDate: day, EndDate: day.AddDate(0, 0, 1), StartTime: at(9, 0), EndTime: at(17, 0), TimeZone: "UTC"}
	room := booking.NewRoomAllocation(boardroom, p)
	room.Status = booking.StatusConfirmed
	room.Cost = decimal.RequireFromString("12.50")
	r := &booking.Reservation{
		Name:      "Offsite",
		Status:    booking.StatusConfirmed,
		Period:    p,
		Attendees: []string{"ann@example.com"},
		Rooms:     []*booking.Allocation{room},
		Cost:      decimal.RequireFromString("12.50"),
		CreatedAt: time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveReservation(ctx, r))
	require.NotZero(t, r.ID)

	got, err := s.Reservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Offsite", got.Name)
	assert.True(t, got.Period.Equal(p))
	assert.True(t, got.Cost.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, []string{"ann@example.com"}, got.Attendees)
	require.Len(t, got.Rooms, 1)
	assert.Equal(t, boardroom, got.Rooms[0].Room)
	assert.Nil(t, got.Rooms[0].CancelledAt)

	active, err := s.ActiveAllocations(ctx, booking.KindRoom, day.AddDate(0, 0, 1), 0)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = s.Reservation(ctx, r.ID+100)
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestEngine_ConcurrentBookingsOnPostgres(t *testing.T) {
	// GIVEN: One room and eight callers racing for the same slot
	// WHEN: They all save at once through serializable transactions
	// THEN: Exactly one wins, the rest see a conflict

	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.SaveRoomArrangement(ctx, &booking.RoomArrangement{
		Key:      boardroom,
		Capacity: 10,
		Terms:    booking.Terms{Reservable: true, CostUnit: booking.CostPerHour},
	}))

	clock, err := booking.NewZoneClock(nil, "UTC")
	require.NoError(t, err)
	clock.Now = func() time.Time { return time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC) }
	engine := booking.NewEngine(s, clock, booking.Options{Logger: slog.New(slog.DiscardHandler)})

	var won, lost atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			p := booking.SameDay(day, at(9, 0), at(10, 0))
			_, err := engine.CreateOrUpdateReservation(ctx, booking.RequestContext{UserID: fmt.Sprintf("u-%d", i)}, &booking.Reservation{
				Period: p,
				Rooms:  []*booking.Allocation{booking.NewRoomAllocation(boardroom, p)},
			})
			switch {
			case err == nil:
				won.Add(1)
			case booking.IsClientError(err):
				lost.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(7), lost.Load())

	active, err := s.ActiveAllocations(ctx, booking.KindRoom, day, 0)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
