package catalog

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validMovie() *Movie {
	return &Movie{
		Title:  "Inception",
		Genre:  "Sci-Fi",
		Rating: 8.8,
		Year:   2010,
	}
}

func TestValidate_Valid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if err := Validate(validMovie()); err != nil {
		t.Errorf("Validate() failed for valid movie: %v", err)
	}
}

func TestValidate_Boundaries(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name   string
		rating float64
		year   int
	}{
		{"minimum rating and year", 0, 1900},
		{"maximum rating and year", 10, 2100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMovie()
			m.Rating = tt.rating
			m.Year = tt.year

			assert.NoError(t, Validate(m))
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name    string
		mutate  func(m *Movie)
		wantErr error
	}{
		{"empty title", func(m *Movie) { m.Title = "" }, ErrMissingTitle},
		{"empty genre", func(m *Movie) { m.Genre = "" }, ErrMissingGenre},
		{"title too long", func(m *Movie) { m.Title = strings.Repeat("x", 256) }, ErrTitleTooLong},
		{"genre too long", func(m *Movie) { m.Genre = strings.Repeat("g", 101) }, ErrGenreTooLong},
		{"negative rating", func(m *Movie) { m.Rating = -0.1 }, ErrRatingOutOfRange},
		{"rating above ten", func(m *Movie) { m.Rating = 10.1 }, ErrRatingOutOfRange},
		{"NaN rating", func(m *Movie) { m.Rating = math.NaN() }, ErrRatingOutOfRange},
		{"year before 1900", func(m *Movie) { m.Year = 1899 }, ErrYearOutOfRange},
		{"year after 2100", func(m *Movie) { m.Year = 2101 }, ErrYearOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMovie()
			tt.mutate(m)

			err := Validate(m)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}

			if !errors.Is(err, ErrInvalidMovie) {
				t.Errorf("Validate() error %v does not wrap ErrInvalidMovie", err)
			}
		})
	}
}

func TestValidate_Nil(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.ErrorIs(t, Validate(nil), ErrNilMovie)
}

func TestValidateID(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	m := validMovie()
	assert.ErrorIs(t, ValidateID(m), ErrMissingID)

	m.ID = "not-a-uuid"
	assert.ErrorIs(t, ValidateID(m), ErrInvalidID)

	m.ID = "550e8400-e29b-41d4-a716-446655440000"
	assert.NoError(t, ValidateID(m))
}

func TestNormalize(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	m := &Movie{
		ID:     " 550e8400-e29b-41d4-a716-446655440000 ",
		Title:  "  The Matrix ",
		Genre:  "\tAction\n",
		Rating: 8.66,
		Year:   1999,
	}
	m.Normalize()

	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", m.ID)
	assert.Equal(t, "The Matrix", m.Title)
	assert.Equal(t, "Action", m.Genre)
	assert.InDelta(t, 8.7, m.Rating, 1e-9)
}

func TestNormalize_WhitespaceOnlyTitleFailsValidation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	m := validMovie()
	m.Title = "   "
	m.Normalize()

	assert.ErrorIs(t, Validate(m), ErrMissingTitle)
}

func TestRoundRating(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		in   float64
		want float64
	}{
		{8.8, 8.8},
		{8.84, 8.8},
		{8.86, 8.9},
		{7.25, 7.3},
		{0, 0},
		{10, 10},
	}

	for _, tt := range tests {
		if got := RoundRating(tt.in); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("RoundRating(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestKey_EqualContentEqualKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	a := validMovie()
	b := validMovie()
	b.ID = "550e8400-e29b-41d4-a716-446655440000"
	b.CreatedAt = "21/Jul/2025:15:11:36 +0000"

	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "Inception (Sci-Fi, 2010, rating 8.8)", a.Key().String())
}

func TestOutcome(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	inserted := Inserted("abc")
	assert.True(t, inserted.IsInserted())
	assert.Equal(t, "abc", inserted.ID)
	assert.Equal(t, "inserted", inserted.Status.String())

	skipped := AlreadyExists()
	assert.False(t, skipped.IsInserted())
	assert.Empty(t, skipped.ID)
	assert.Equal(t, "already_exists", skipped.Status.String())

	assert.Equal(t, "natural_key", NaturalKeyConflict.String())
	assert.Equal(t, "surrogate_key", SurrogateKeyConflict.String())
}
