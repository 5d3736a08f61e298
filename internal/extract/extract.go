// Package extract decodes record files into catalog movies.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/movie-explorer/catalog-ingest/internal/catalog"
)

// DefaultSuffix is the record-file naming convention.
const DefaultSuffix = ".json"

var (
	// ErrParse is matched by every *ParseError.
	ErrParse = errors.New("record parse failed")

	errEmpty         = errors.New("empty payload")
	errInvalidUTF8   = errors.New("payload is not valid UTF-8")
	errTrailingData  = errors.New("unexpected data after record")
	errNotAnInteger  = errors.New("not an integer")
	errNotANumber    = errors.New("not a number")
	errNotAString    = errors.New("not a string")
	errMissingFields = errors.New("missing required field")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseError carries the name of the leaf that failed to decode.
type ParseError struct {
	Name string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Name, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes every ParseError match ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse //nolint:errorlint
}

// wireMovie mirrors the record file. Pointers distinguish absent fields from zero values.
// The id and timestamps stay raw until a caller asks for them.
type wireMovie struct {
	ID        json.RawMessage `json:"id"`
	Title     *string         `json:"title"`
	Genre     *string         `json:"genre"`
	Rating    *number         `json:"rating"`
	Year      *number         `json:"year"`
	CreatedAt json.RawMessage `json:"created_at"` //nolint:tagliatelle
	UpdatedAt json.RawMessage `json:"updated_at"` //nolint:tagliatelle
}

// number accepts a JSON number or a string holding one.
type number struct {
	raw string
}

func (n *number) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: null", errNotANumber)
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}

		n.raw = strings.TrimSpace(s)

		return nil
	}

	n.raw = string(data)

	return nil
}

func (n *number) float() (float64, error) {
	f, err := strconv.ParseFloat(n.raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", errNotANumber, n.raw)
	}

	return f, nil
}

func (n *number) int() (int, error) {
	f, err := n.float()
	if err != nil {
		return 0, err
	}

	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%w: %q", errNotAnInteger, n.raw)
	}

	return int(f), nil
}

// IsRecordFile reports whether name ends in suffix, ignoring case.
func IsRecordFile(name, suffix string) bool {
	if suffix == "" {
		suffix = DefaultSuffix
	}

	return len(name) >= len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix)
}

// Parse decodes one record file. The returned movie is normalized and validated; any id or
// timestamps in the file are dropped unread, whatever their type, since the catalog assigns
// them on the bulk path.
func Parse(name string, data []byte) (*catalog.Movie, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Name: name, Err: errEmpty}
	}

	if !utf8.Valid(data) {
		return nil, &ParseError{Name: name, Err: errInvalidUTF8}
	}

	m, err := decodeRecord(data, false)
	if err != nil {
		return nil, &ParseError{Name: name, Err: err}
	}

	return m, nil
}

// DecodeRecord decodes exactly one JSON record object, including the optional id and
// timestamp fields, then normalizes and validates it. The id and timestamps must be strings
// when present.
func DecodeRecord(data []byte) (*catalog.Movie, error) {
	return decodeRecord(data, true)
}

func decodeRecord(data []byte, withIdentity bool) (*catalog.Movie, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var w wireMovie
	if err := dec.Decode(&w); err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}

	m, err := w.movie()
	if err != nil {
		return nil, err
	}

	if withIdentity {
		if err := w.identity(m); err != nil {
			return nil, err
		}
	}

	m.Normalize()

	if err := catalog.Validate(m); err != nil {
		return nil, err
	}

	return m, nil
}

func (w *wireMovie) movie() (*catalog.Movie, error) {
	var missing []string

	if w.Title == nil {
		missing = append(missing, "title")
	}

	if w.Genre == nil {
		missing = append(missing, "genre")
	}

	if w.Rating == nil {
		missing = append(missing, "rating")
	}

	if w.Year == nil {
		missing = append(missing, "year")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", errMissingFields, strings.Join(missing, ", "))
	}

	rating, err := w.Rating.float()
	if err != nil {
		return nil, fmt.Errorf("rating: %w", err)
	}

	year, err := w.Year.int()
	if err != nil {
		return nil, fmt.Errorf("year: %w", err)
	}

	return &catalog.Movie{
		Title:  *w.Title,
		Genre:  *w.Genre,
		Rating: rating,
		Year:   year,
	}, nil
}

// identity copies the optional id and timestamps into m.
func (w *wireMovie) identity(m *catalog.Movie) error {
	var err error

	if m.ID, err = optionalString("id", w.ID); err != nil {
		return err
	}

	if m.CreatedAt, err = optionalString("created_at", w.CreatedAt); err != nil {
		return err
	}

	m.UpdatedAt, err = optionalString("updated_at", w.UpdatedAt)

	return err
}

// optionalString decodes an absent or null field as "".
func optionalString(field string, raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%s: %w: %s", field, errNotAString, raw)
	}

	return s, nil
}
