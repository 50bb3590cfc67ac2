package domain

import "time"

type Category string

const (
	CategoryWebDevelopment Category = "Web Development"
	CategoryDesign         Category = "Design"
	CategoryMarketing      Category = "Marketing"
)

var categories = []Category{CategoryWebDevelopment, CategoryDesign, CategoryMarketing}

// Categories returns the fixed category set in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

type Course struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Seats       int       `json:"seats"`
	StartDate   string    `json:"startDate"`
	Category    Category  `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (c *Course) SoldOut() bool {
	return c.Seats <= 0
}

// FilterByCategory keeps the courses of one category in their original order.
// An empty category selects everything.
func FilterByCategory(courses []Course, category Category) []Course {
	out := make([]Course, 0, len(courses))
	for _, c := range courses {
		if category == "" || c.Category == category {
			out = append(out, c)
		}
	}
	return out
}
