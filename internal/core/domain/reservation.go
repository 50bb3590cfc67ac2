package domain

import "time"

type Reservation struct {
	ID             string    `json:"id"`
	CourseID       string    `json:"courseId"`
	CourseTitle    string    `json:"courseTitle"` // snapshot at booking time
	UserEmail      string    `json:"userEmail"`
	Date           time.Time `json:"date"`
	IdempotencyKey string    `json:"-"`
}

// ReserveResult is what a store reports back from an atomic reservation.
type ReserveResult struct {
	Reservation Reservation
	SeatsLeft   int
	Replayed    bool
}
