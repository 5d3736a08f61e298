// Package catalog provides the movie record domain model and the persistence contract
// shared by the bulk traversal and event ingestion paths.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Domain bounds enforced on every record before it reaches the catalog.
const (
	MinRating = 0.0
	MaxRating = 10.0
	MinYear   = 1900
	MaxYear   = 2100

	maxTitleLength = 255
	maxGenreLength = 100
)

// Sentinel errors for record validation failures.
var (
	ErrInvalidMovie     = errors.New("invalid movie record")
	ErrNilMovie         = fmt.Errorf("%w: record cannot be nil", ErrInvalidMovie)
	ErrMissingTitle     = fmt.Errorf("%w: title is required", ErrInvalidMovie)
	ErrMissingGenre     = fmt.Errorf("%w: genre is required", ErrInvalidMovie)
	ErrTitleTooLong     = fmt.Errorf("%w: title exceeds %d characters", ErrInvalidMovie, maxTitleLength)
	ErrGenreTooLong     = fmt.Errorf("%w: genre exceeds %d characters", ErrInvalidMovie, maxGenreLength)
	ErrRatingOutOfRange = fmt.Errorf("%w: rating must be between 0 and 10", ErrInvalidMovie)
	ErrYearOutOfRange   = fmt.Errorf("%w: year must be between 1900 and 2100", ErrInvalidMovie)
	ErrMissingID        = fmt.Errorf("%w: id is required for surrogate-key loading", ErrInvalidMovie)
	ErrInvalidID        = fmt.Errorf("%w: id must be a UUID", ErrInvalidMovie)
)

type (
	// Movie is the unit of extraction and loading.
	//
	// ID is empty on the bulk path, where the catalog assigns it. CreatedAt and UpdatedAt
	// hold the raw wire text of the event path; the loader normalizes them before persisting.
	Movie struct {
		ID        string
		Title     string
		Genre     string
		Rating    float64
		Year      int
		CreatedAt string
		UpdatedAt string
	}

	// NaturalKey is the content identity of a record: two records with equal keys are duplicates.
	NaturalKey struct {
		Title  string
		Genre  string
		Rating float64
		Year   int
	}
)

// Normalize trims text fields and rounds the rating to the catalog's one-decimal precision.
// It is applied before validation so that equal content always produces an equal NaturalKey.
func (m *Movie) Normalize() {
	m.ID = strings.TrimSpace(m.ID)
	m.Title = strings.TrimSpace(m.Title)
	m.Genre = strings.TrimSpace(m.Genre)
	m.Rating = RoundRating(m.Rating)
}

// Key returns the natural key of the record.
func (m *Movie) Key() NaturalKey {
	return NaturalKey{
		Title:  m.Title,
		Genre:  m.Genre,
		Rating: m.Rating,
		Year:   m.Year,
	}
}

// String renders the key the way duplicate-skip log lines show it.
func (k NaturalKey) String() string {
	return fmt.Sprintf("%s (%s, %d, rating %s)",
		k.Title, k.Genre, k.Year, strconv.FormatFloat(k.Rating, 'f', 1, 64))
}

// RoundRating rounds half away from zero to one decimal place, matching NUMERIC(3,1).
func RoundRating(rating float64) float64 {
	return math.Round(rating*10) / 10 //nolint:mnd
}

// Validate checks the domain constraints of a record. Text fields are expected to be
// normalized already (see Movie.Normalize).
func Validate(m *Movie) error {
	if m == nil {
		return ErrNilMovie
	}

	if m.Title == "" {
		return ErrMissingTitle
	}

	if len([]rune(m.Title)) > maxTitleLength {
		return ErrTitleTooLong
	}

	if m.Genre == "" {
		return ErrMissingGenre
	}

	if len([]rune(m.Genre)) > maxGenreLength {
		return ErrGenreTooLong
	}

	if math.IsNaN(m.Rating) || m.Rating < MinRating || m.Rating > MaxRating {
		return fmt.Errorf("%w: got %v", ErrRatingOutOfRange, m.Rating)
	}

	if m.Year < MinYear || m.Year > MaxYear {
		return fmt.Errorf("%w: got %d", ErrYearOutOfRange, m.Year)
	}

	return nil
}

// ValidateID checks that a record carries a surrogate identifier usable as the catalog id.
func ValidateID(m *Movie) error {
	if m == nil {
		return ErrNilMovie
	}

	if m.ID == "" {
		return ErrMissingID
	}

	if _, err := uuid.Parse(m.ID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, m.ID)
	}

	return nil
}
