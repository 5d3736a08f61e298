package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventID = "6f1c2a7e-3b0d-4c8e-9a51-2d7f0e4b9c13"

func TestDecodeEnvelope(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		body string
	}{
		{
			name: "bare record",
			body: `{"id":"` + eventID + `","title":"Heat","genre":"Crime","rating":8.3,"year":1995,` +
				`"created_at":"10/Oct/2000:13:55:36 -0700"}`,
		},
		{
			name: "wrapped record",
			body: `{"movie":{"id":"` + eventID + `","title":"Heat","genre":"Crime","rating":8.3,"year":1995,` +
				`"created_at":"10/Oct/2000:13:55:36 -0700"}}`,
		},
		{
			name: "surrounding whitespace",
			body: "\n  " + `{"movie":{"id":"` + eventID + `","title":"Heat","genre":"Crime","rating":"8.3","year":1995,` +
				`"created_at":"10/Oct/2000:13:55:36 -0700"}}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeEnvelope([]byte(tt.body))
			require.NoError(t, err)

			assert.Equal(t, eventID, m.ID)
			assert.Equal(t, "Heat", m.Title)
			assert.Equal(t, "Crime", m.Genre)
			assert.InDelta(t, 8.3, m.Rating, 0.0001)
			assert.Equal(t, 1995, m.Year)
			assert.Equal(t, "10/Oct/2000:13:55:36 -0700", m.CreatedAt)
		})
	}
}

func TestDecodeEnvelope_TopLevelRecordWins(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	body := `{"movie":"ignored","title":"Heat","genre":"Crime","rating":8.3,"year":1995}`

	m, err := DecodeEnvelope([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "Heat", m.Title)
}

func TestDecodeEnvelope_Invalid(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"not json", "movie please"},
		{"array", `[{"title":"Heat"}]`},
		{"movie not an object", `{"movie":[1,2]}`},
		{"movie null", `{"movie":null}`},
		{"missing fields", `{"movie":{"title":"Heat"}}`},
		{"rating out of range", `{"title":"Heat","genre":"Crime","rating":11,"year":1995}`},
		{"trailing data", `{"title":"Heat","genre":"Crime","rating":8,"year":1995} {}`},
		{"numeric id", `{"movie":{"id":42,"title":"Heat","genre":"Crime","rating":8,"year":1995}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeEnvelope([]byte(tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
			assert.Nil(t, m)
		})
	}
}
