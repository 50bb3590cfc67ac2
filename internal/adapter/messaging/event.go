package messaging

import (
	"encoding/json"
	"time"

	"github.com/PaulinaPacula189/course-reservation/internal/core/domain"
)

const ReservationCreated = "reservation.created"

// ReservationEvent is the payload every publisher emits.
type ReservationEvent struct {
	Type          string    `json:"type"`
	ReservationID string    `json:"reservationId"`
	CourseID      string    `json:"courseId"`
	CourseTitle   string    `json:"courseTitle"`
	UserEmail     string    `json:"userEmail"`
	Date          time.Time `json:"date"`
}

func NewReservationEvent(r domain.Reservation) ReservationEvent {
	return ReservationEvent{
		Type:          ReservationCreated,
		ReservationID: r.ID,
		CourseID:      r.CourseID,
		CourseTitle:   r.CourseTitle,
		UserEmail:     r.UserEmail,
		Date:          r.Date.UTC(),
	}
}

func encodeEvent(r domain.Reservation) ([]byte, error) {
	return json.Marshal(NewReservationEvent(r))
}
