package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/PaulinaPacula189/course-reservation/internal/adapter/storage"
	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
	"github.com/PaulinaPacula189/course-reservation/internal/core/service"
)

type tally struct {
	booked  atomic.Int32
	soldOut atomic.Int32
	other   atomic.Int32
}

// reserveFunc returns nil on a booking and domain.ErrSoldOut when rejected for
// lack of seats.
type reserveFunc func(ctx context.Context, email string) error

func main() {
	baseURL := flag.String("url", "", "base URL of a running server; empty runs in-process")
	courseID := flag.String("course", "", "course id to book (required with -url)")
	seats := flag.Int("seats", 20, "seats of the in-process course")
	requests := flag.Int("requests", 50, "concurrent reservation attempts")
	flag.Parse()

	ctx := context.Background()
	var reserve reserveFunc
	var remaining func() (int, error)
	initial := *seats

	if *baseURL == "" {
		store := storage.NewMemoryAdapter()
		id := uuid.NewString()
		if err := store.CreateCourse(ctx, domain.Course{
			ID: id, Title: "Stress Test", Seats: *seats, Category: domain.CategoryWebDevelopment, CreatedAt: time.Now().UTC(),
		}); err != nil {
			log.Fatalf("failed to seed course: %v", err)
		}
		svc := service.NewReservationService(store, nil)
		reserve = func(ctx context.Context, email string) error {
			_, err := svc.Reserve(ctx, service.ReserveInput{CourseID: id, Email: email})
			return err
		}
		remaining = func() (int, error) {
			c, err := store.GetCourse(ctx, id)
			if err != nil {
				return 0, err
			}
			return c.Seats, nil
		}
	} else {
		if *courseID == "" {
			log.Fatalf("-course is required with -url")
		}
		client := &http.Client{Timeout: 10 * time.Second}
		remaining = func() (int, error) { return fetchSeats(client, *baseURL, *courseID) }
		n, err := remaining()
		if err != nil {
			log.Fatalf("failed to read course: %v", err)
		}
		initial = n
		reserve = func(ctx context.Context, email string) error {
			return postReservation(client, *baseURL, *courseID, email)
		}
	}

	var counts tally
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *requests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := reserve(ctx, fmt.Sprintf("user-%d@example.com", n))
			switch {
			case err == nil:
				counts.booked.Add(1)
			case errors.Is(err, domain.ErrSoldOut):
				counts.soldOut.Add(1)
			default:
				counts.other.Add(1)
				log.Printf("request %d: %v", n, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	booked, soldOut, other := counts.booked.Load(), counts.soldOut.Load(), counts.other.Load()
	wantBooked := min(initial, *requests)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Seats:    %d\n", initial)
	fmt.Printf("Total Requests:   %d\n", *requests)
	fmt.Printf("Booked:           %d\n", booked)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Other Errors:     %d\n", other)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if int(booked) == wantBooked && int(soldOut) == *requests-wantBooked && other == 0 {
		fmt.Printf("PASS: exactly %d bookings succeeded, %d sold out\n", wantBooked, *requests-wantBooked)
	} else {
		fmt.Printf("FAIL: expected %d booked/%d sold out, got %d/%d (%d other)\n",
			wantBooked, *requests-wantBooked, booked, soldOut, other)
	}

	left, err := remaining()
	if err != nil {
		log.Fatalf("failed to read final seats: %v", err)
	}
	fmt.Printf("Final Seats:      %d\n", left)
	if left == initial-wantBooked {
		fmt.Println("PASS: seat count matches bookings")
	} else {
		fmt.Printf("FAIL: expected %d seats left, got %d\n", initial-wantBooked, left)
	}
}

func fetchSeats(client *http.Client, baseURL, courseID string) (int, error) {
	resp, err := client.Get(baseURL + "/api/courses/" + courseID)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("get course: status %d", resp.StatusCode)
	}
	var c domain.Course
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return 0, err
	}
	return c.Seats, nil
}

func postReservation(client *http.Client, baseURL, courseID, email string) error {
	body, _ := json.Marshal(map[string]string{"email": email})
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/courses/"+courseID+"/reservations", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusCreated:
		return nil
	case http.StatusConflict:
		return domain.ErrSoldOut
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}
