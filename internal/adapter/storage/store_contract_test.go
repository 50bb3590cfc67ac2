package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
	"github.com/PaulinaPacula189/course-reservation/internal/port"
)

// runStoreContract checks the behaviour every driver must share. IDs and
// emails are random so the suite can run against a database that is not empty.
func runStoreContract(t *testing.T, store port.Store) {
	t.Run("GetCourse_NotFound", func(t *testing.T) {
		_, err := store.GetCourse(context.Background(), "missing-"+uuid.NewString())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("CreateCourse_Duplicate", func(t *testing.T) {
		c := seedCourse(t, store, 1)
		if err := store.CreateCourse(context.Background(), *c); !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("ListCourses_InsertionOrder", func(t *testing.T) {
		a := seedCourse(t, store, 1)
		b := seedCourse(t, store, 2)

		courses, err := store.ListCourses(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		posA, posB := -1, -1
		for i, c := range courses {
			switch c.ID {
			case a.ID:
				posA = i
			case b.ID:
				posB = i
			}
		}
		if posA < 0 || posB < 0 || posA > posB {
			t.Errorf("expected %s before %s, got positions %d and %d", a.ID, b.ID, posA, posB)
		}
	})

	t.Run("ReserveSeat_DecrementsByOne", func(t *testing.T) {
		c := seedCourse(t, store, 3)

		res, err := store.ReserveSeat(context.Background(), newReservation(c.ID, "a@example.com", ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.SeatsLeft != 2 {
			t.Errorf("expected 2 seats left, got %d", res.SeatsLeft)
		}
		if res.Replayed {
			t.Error("fresh booking reported as replay")
		}
		if res.Reservation.CourseTitle != c.Title {
			t.Errorf("expected title snapshot %q, got %q", c.Title, res.Reservation.CourseTitle)
		}

		got, _ := store.GetCourse(context.Background(), c.ID)
		if got.Seats != 2 {
			t.Errorf("expected stored seats 2, got %d", got.Seats)
		}
	})

	t.Run("ReserveSeat_SoldOut", func(t *testing.T) {
		c := seedCourse(t, store, 0)

		_, err := store.ReserveSeat(context.Background(), newReservation(c.ID, "a@example.com", ""))
		if !errors.Is(err, domain.ErrSoldOut) {
			t.Fatalf("expected ErrSoldOut, got %v", err)
		}
		list, _ := store.ListReservations(context.Background(), c.ID)
		if len(list) != 0 {
			t.Errorf("expected no reservations, got %d", len(list))
		}
	})

	t.Run("ReserveSeat_UnknownCourse", func(t *testing.T) {
		_, err := store.ReserveSeat(context.Background(), newReservation("missing-"+uuid.NewString(), "a@example.com", ""))
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ReserveSeat_IdempotentRetry", func(t *testing.T) {
		c := seedCourse(t, store, 5)
		key := uuid.NewString()

		first, err := store.ReserveSeat(context.Background(), newReservation(c.ID, "a@example.com", key))
		if err != nil {
			t.Fatalf("first booking: %v", err)
		}
		second, err := store.ReserveSeat(context.Background(), newReservation(c.ID, "a@example.com", key))
		if err != nil {
			t.Fatalf("retry: %v", err)
		}
		if !second.Replayed {
			t.Error("expected retry to be a replay")
		}
		if second.Reservation.ID != first.Reservation.ID {
			t.Errorf("expected reservation %s, got %s", first.Reservation.ID, second.Reservation.ID)
		}

		got, _ := store.GetCourse(context.Background(), c.ID)
		if got.Seats != 4 {
			t.Errorf("expected seats 4 after retry, got %d", got.Seats)
		}
		list, _ := store.ListReservations(context.Background(), c.ID)
		if len(list) != 1 {
			t.Errorf("expected 1 reservation, got %d", len(list))
		}
	})

	t.Run("ReserveSeat_Concurrent", func(t *testing.T) {
		const seats, requests = 10, 40
		c := seedCourse(t, store, seats)

		var wg sync.WaitGroup
		var booked, soldOut atomic.Int32
		for i := 0; i < requests; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.ReserveSeat(context.Background(), newReservation(c.ID, "load@example.com", uuid.NewString()))
				switch {
				case err == nil:
					booked.Add(1)
				case errors.Is(err, domain.ErrSoldOut):
					soldOut.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if booked.Load() != seats {
			t.Errorf("expected %d bookings, got %d", seats, booked.Load())
		}
		if soldOut.Load() != requests-seats {
			t.Errorf("expected %d sold out, got %d", requests-seats, soldOut.Load())
		}
		got, _ := store.GetCourse(context.Background(), c.ID)
		if got.Seats != 0 {
			t.Errorf("expected 0 seats left, got %d", got.Seats)
		}
		list, _ := store.ListReservations(context.Background(), c.ID)
		if len(list) != seats {
			t.Errorf("expected %d reservations, got %d", seats, len(list))
		}
	})

	t.Run("ReserveSeat_ConcurrentSameKey", func(t *testing.T) {
		c := seedCourse(t, store, 5)
		key := uuid.NewString()

		var wg sync.WaitGroup
		ids := make([]string, 8)
		for i := range ids {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := store.ReserveSeat(context.Background(), newReservation(c.ID, "dup@example.com", key))
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				ids[i] = res.Reservation.ID
			}(i)
		}
		wg.Wait()

		for _, id := range ids[1:] {
			if id != ids[0] {
				t.Fatalf("expected one reservation id, got %v", ids)
			}
		}
		got, _ := store.GetCourse(context.Background(), c.ID)
		if got.Seats != 4 {
			t.Errorf("expected seats 4, got %d", got.Seats)
		}
	})

	t.Run("UnknownIDShapedLikeIndexKey", func(t *testing.T) {
		c := seedCourse(t, store, 2)
		if _, err := store.ReserveSeat(context.Background(), newReservation(c.ID, "a@example.com", "")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		for _, id := range []string{c.ID + ":reservations", "course:" + c.ID} {
			if _, err := store.GetCourse(context.Background(), id); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("GetCourse(%q): expected ErrNotFound, got %v", id, err)
			}
			if _, err := store.ReserveSeat(context.Background(), newReservation(id, "b@example.com", "")); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("ReserveSeat(%q): expected ErrNotFound, got %v", id, err)
			}
		}
	})

	t.Run("TitleSnapshotSurvivesRename", func(t *testing.T) {
		c := seedCourse(t, store, 2)
		if _, err := store.ReserveSeat(context.Background(), newReservation(c.ID, "a@example.com", "")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := store.UpdateSeats(context.Background(), c.ID, 7); err != nil {
			t.Fatalf("update seats: %v", err)
		}
		list, _ := store.ListReservations(context.Background(), c.ID)
		if len(list) != 1 || list[0].CourseTitle != c.Title {
			t.Errorf("expected one reservation titled %q, got %+v", c.Title, list)
		}
	})

	t.Run("UpdateSeats", func(t *testing.T) {
		c := seedCourse(t, store, 2)

		got, err := store.UpdateSeats(context.Background(), c.ID, 9)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Seats != 9 {
			t.Errorf("expected 9 seats, got %d", got.Seats)
		}
		if _, err := store.UpdateSeats(context.Background(), c.ID, 9); err != nil {
			t.Errorf("unchanged write should succeed, got %v", err)
		}
		if _, err := store.UpdateSeats(context.Background(), "missing-"+uuid.NewString(), 1); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Users", func(t *testing.T) {
		ctx := context.Background()
		u := domain.User{
			ID:           uuid.NewString(),
			Email:        uuid.NewString() + "@example.com",
			PasswordHash: "hash",
			CreatedAt:    time.Now().UTC(),
		}
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}

		dup := u
		dup.ID = uuid.NewString()
		if err := store.CreateUser(ctx, dup); !errors.Is(err, domain.ErrEmailTaken) {
			t.Errorf("expected ErrEmailTaken, got %v", err)
		}

		if err := store.SetAdmin(ctx, u.Email, true); err != nil {
			t.Fatalf("set admin: %v", err)
		}
		got, err := store.GetUser(ctx, u.ID)
		if err != nil {
			t.Fatalf("get user: %v", err)
		}
		if !got.Admin || got.Email != u.Email || got.PasswordHash != "hash" {
			t.Errorf("unexpected user %+v", got)
		}

		byEmail, err := store.GetUserByEmail(ctx, u.Email)
		if err != nil || byEmail.ID != u.ID {
			t.Errorf("lookup by email: %+v, %v", byEmail, err)
		}
		if _, err := store.GetUser(ctx, "missing-"+uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := store.SetAdmin(ctx, "nobody-"+uuid.NewString()+"@example.com", true); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func seedCourse(t *testing.T, store port.Store, seats int) *domain.Course {
	t.Helper()
	c := domain.Course{
		ID:          uuid.NewString(),
		Title:       "Course " + uuid.NewString()[:8],
		Description: "contract test",
		Price:       49.5,
		Seats:       seats,
		StartDate:   "2026-11-02",
		Category:    domain.CategoryDesign,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	if err := store.CreateCourse(context.Background(), c); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	return &c
}

func newReservation(courseID, email, key string) domain.Reservation {
	return domain.Reservation{
		ID:             uuid.NewString(),
		CourseID:       courseID,
		UserEmail:      email,
		Date:           time.Now().UTC().Truncate(time.Millisecond),
		IdempotencyKey: key,
	}
}
