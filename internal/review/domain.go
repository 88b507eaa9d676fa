// internal/review/domain.go
package review

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	MinRating = 1
	MaxRating = 5
)

var (
	ErrInvalidRating  = errors.New("rating must be between 1 and 5")
	ErrReviewNotFound = errors.New("review not found")
)

// Review is a user's rating of a book. A user has at most one review per book.
type Review struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	BookID    uuid.UUID `json:"book_id"`
	Author    string    `json:"author_name"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Submission is the user-editable part of a review.
type Submission struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (s Submission) validate() error {
	if s.Rating < MinRating || s.Rating > MaxRating {
		return ErrInvalidRating
	}
	return nil
}
