// Package migrations embeds the catalog schema and applies it with golang-migrate.
//
// Files follow the strict naming standard NNN_name.(up|down).sql. The set is validated
// (naming, up/down pairing, gap-free sequence, checksum stability) before any
// state-changing operation.
package migrations

import (
	"crypto/sha256"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var embedded embed.FS

// ErrInvalidMigrations is returned when the embedded set fails validation.
var ErrInvalidMigrations = errors.New("invalid migration set")

var filenamePattern = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

type (
	// File describes one parsed migration file.
	File struct {
		Sequence  int
		Name      string
		Direction string
		Filename  string
	}

	// Set is a validated view over a migration filesystem.
	Set struct {
		fs        fs.FS
		checksums map[string]string
	}
)

// FS returns the embedded migration filesystem.
func FS() fs.FS {
	return embedded
}

// NewSet wraps filesystem; nil selects the embedded migrations.
func NewSet(filesystem fs.FS) *Set {
	if filesystem == nil {
		filesystem = embedded
	}

	return &Set{
		fs:        filesystem,
		checksums: make(map[string]string),
	}
}

// FS returns the underlying filesystem.
func (s *Set) FS() fs.FS {
	return s.fs
}

// List returns the conforming .sql files in lexicographic order, which is also apply order.
// Files that do not match the naming standard are ignored.
func (s *Set) List() ([]string, error) {
	entries, err := fs.ReadDir(s.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if path.Ext(name) == ".sql" && filenamePattern.MatchString(name) {
			files = append(files, name)
		}
	}

	sort.Strings(files)

	return files, nil
}

// Content returns the body of one migration file.
func (s *Set) Content(filename string) ([]byte, error) {
	return fs.ReadFile(s.fs, filename)
}

// MaxVersion returns the highest sequence number present, or 0.
func (s *Set) MaxVersion() int {
	files, err := s.List()
	if err != nil {
		return 0
	}

	maxVersion := 0

	for _, name := range files {
		if f, err := ParseFilename(name); err == nil && f.Sequence > maxVersion {
			maxVersion = f.Sequence
		}
	}

	return maxVersion
}

// Validate checks pairing, sequence and checksum stability of the set. Checksums are
// recorded on the first successful call; later calls fail if any file changed.
func (s *Set) Validate() error {
	files, err := s.List()
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("%w: no migration files found", ErrInvalidMigrations)
	}

	parsed := make([]*File, 0, len(files))

	for _, name := range files {
		f, err := ParseFilename(name)
		if err != nil {
			return err
		}

		parsed = append(parsed, f)
	}

	if err := validatePairing(parsed); err != nil {
		return err
	}

	if err := validateSequence(parsed); err != nil {
		return err
	}

	sums := make(map[string]string, len(files))

	for _, name := range files {
		content, err := s.Content(name)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		sum := fmt.Sprintf("%x", sha256.Sum256(content))
		if previous, ok := s.checksums[name]; ok && previous != sum {
			return fmt.Errorf("%w: checksum mismatch for %s", ErrInvalidMigrations, name)
		}

		sums[name] = sum
	}

	s.checksums = sums

	return nil
}

// ParseFilename parses NNN_name.(up|down).sql.
func ParseFilename(filename string) (*File, error) {
	m := filenamePattern.FindStringSubmatch(filename)
	if len(m) != 4 { //nolint:mnd
		return nil, fmt.Errorf("%w: bad filename %q (expected 001_name.up.sql or 001_name.down.sql)",
			ErrInvalidMigrations, filename)
	}

	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad sequence in %q: %w", ErrInvalidMigrations, filename, err)
	}

	return &File{
		Sequence:  seq,
		Name:      m[2],
		Direction: m[3],
		Filename:  filename,
	}, nil
}

func validatePairing(files []*File) error {
	directions := make(map[string]map[string]bool)

	for _, f := range files {
		key := fmt.Sprintf("%03d_%s", f.Sequence, f.Name)
		if directions[key] == nil {
			directions[key] = make(map[string]bool)
		}

		directions[key][f.Direction] = true
	}

	keys := make([]string, 0, len(directions))
	for key := range directions {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		if !directions[key]["up"] {
			return fmt.Errorf("%w: orphaned down migration %s", ErrInvalidMigrations, key)
		}

		if !directions[key]["down"] {
			return fmt.Errorf("%w: orphaned up migration %s", ErrInvalidMigrations, key)
		}
	}

	return nil
}

func validateSequence(files []*File) error {
	seen := make(map[int]bool)

	var sequences []int

	for _, f := range files {
		if !seen[f.Sequence] {
			seen[f.Sequence] = true
			sequences = append(sequences, f.Sequence)
		}
	}

	sort.Ints(sequences)

	if len(sequences) == 0 {
		return nil
	}

	if sequences[0] != 1 {
		return fmt.Errorf("%w: sequence should start with 001, found %03d", ErrInvalidMigrations, sequences[0])
	}

	for i := 1; i < len(sequences); i++ {
		if sequences[i] != sequences[i-1]+1 {
			return fmt.Errorf("%w: gap in sequence, expected %03d, found %03d",
				ErrInvalidMigrations, sequences[i-1]+1, sequences[i])
		}
	}

	return nil
}
