package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movie-explorer/catalog-ingest/internal/catalog"
	"github.com/movie-explorer/catalog-ingest/internal/metrics"
	"github.com/movie-explorer/catalog-ingest/internal/queue"
)

// surrogateLoader skips a record whose id or natural key is already stored.
type surrogateLoader struct {
	mu     sync.Mutex
	ids    map[string]bool
	keys   map[catalog.NaturalKey]bool
	loaded []*catalog.Movie
	err    error
}

func newSurrogateLoader() *surrogateLoader {
	return &surrogateLoader{ids: map[string]bool{}, keys: map[catalog.NaturalKey]bool{}}
}

func (l *surrogateLoader) Load(_ context.Context, m *catalog.Movie, key catalog.ConflictKey) (catalog.Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return catalog.Outcome{}, l.err
	}

	if key != catalog.SurrogateKeyConflict {
		return catalog.Outcome{}, fmt.Errorf("unexpected conflict key %s", key)
	}

	if err := catalog.ValidateID(m); err != nil {
		return catalog.Outcome{}, err
	}

	if l.ids[m.ID] || l.keys[m.Key()] {
		return catalog.AlreadyExists(), nil
	}

	l.ids[m.ID] = true
	l.keys[m.Key()] = true
	l.loaded = append(l.loaded, m)

	return catalog.Inserted(m.ID), nil
}

func message(id, body string) queue.Message {
	return queue.Message{ID: id, Body: []byte(body)}
}

func record(id, title string) string {
	return fmt.Sprintf(`{"movie":{"id":%q,"title":%q,"genre":"Drama","rating":7.5,"year":2001,`+
		`"created_at":"10/Oct/2000:13:55:36 -0700","updated_at":"10/Oct/2000:13:55:36 -0700"}}`, id, title)
}

func TestProcessBatch_AllSucceed(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	loader := newSurrogateLoader()
	p := NewProcessor(loader)

	result, err := p.ProcessBatch(context.Background(), []queue.Message{
		message("m1", record("11111111-1111-4111-8111-111111111111", "Amelie")),
		message("m2", record("22222222-2222-4222-8222-222222222222", "Memento")),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Inserted)
	assert.Zero(t, result.Failed)
	require.Len(t, result.Results, 2)
	assert.Equal(t, "m1", result.Results[0].MessageID)
	assert.Equal(t, "11111111-1111-4111-8111-111111111111", result.Results[0].Outcome.ID)

	require.Len(t, loader.loaded, 2)
	assert.Equal(t, "10/Oct/2000:13:55:36 -0700", loader.loaded[0].CreatedAt, "timestamps reach the loader unnormalized")
}

func TestProcessBatch_MiddleMessageFails(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	loader := newSurrogateLoader()
	recorder := metrics.NewRecorder()
	p := NewProcessor(loader, WithRecorder(recorder))

	batch := []queue.Message{
		message("m1", record("11111111-1111-4111-8111-111111111111", "Amelie")),
		message("m2", `{"movie": {"title": "Broken"`),
		message("m3", record("33333333-3333-4333-8333-333333333333", "Oldboy")),
	}

	result, err := p.ProcessBatch(context.Background(), batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBatchPartialFailure)

	require.NotNil(t, result)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Failed)
	assert.NoError(t, result.Results[0].Err)
	assert.ErrorIs(t, result.Results[1].Err, ErrInvalidEnvelope)
	assert.NoError(t, result.Results[2].Err)
	assert.Len(t, loader.loaded, 2, "siblings of the failed message are still loaded")

	// Redelivery of the whole batch: earlier successes are now duplicates, the bad message fails again.
	result, err = p.ProcessBatch(context.Background(), batch)
	require.ErrorIs(t, err, ErrBatchPartialFailure)
	assert.Equal(t, 2, result.Processed)
	assert.Zero(t, result.Inserted)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, loader.loaded, 2)
}

func TestProcessBatch_MissingIDFails(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	p := NewProcessor(newSurrogateLoader())

	result, err := p.ProcessBatch(context.Background(), []queue.Message{
		message("m1", `{"title":"Heat","genre":"Crime","rating":8.3,"year":1995}`),
	})
	require.ErrorIs(t, err, ErrBatchPartialFailure)
	assert.ErrorIs(t, result.Results[0].Err, catalog.ErrMissingID)
}

func TestProcessBatch_ReconciledIdentity(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	loader := newSurrogateLoader()
	p := NewProcessor(loader)

	// Same content under a different id is still a duplicate.
	result, err := p.ProcessBatch(context.Background(), []queue.Message{
		message("m1", record("11111111-1111-4111-8111-111111111111", "Amelie")),
		message("m2", record("44444444-4444-4444-8444-444444444444", "Amelie")),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, catalog.StatusAlreadyExists, result.Results[1].Outcome.Status)
}

func TestProcessBatch_LoaderError(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	loader := newSurrogateLoader()
	loader.err = fmt.Errorf("load: %w", catalog.ErrUnavailable)

	result, err := NewProcessor(loader).ProcessBatch(context.Background(), []queue.Message{
		message("m1", record("11111111-1111-4111-8111-111111111111", "Amelie")),
	})
	require.ErrorIs(t, err, ErrBatchPartialFailure)
	assert.ErrorIs(t, result.Results[0].Err, catalog.ErrUnavailable)
}

func TestProcessBatch_CancelledContext(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := newSurrogateLoader()

	result, err := NewProcessor(loader).ProcessBatch(ctx, []queue.Message{
		message("m1", record("11111111-1111-4111-8111-111111111111", "Amelie")),
		message("m2", record("22222222-2222-4222-8222-222222222222", "Memento")),
	})
	require.ErrorIs(t, err, ErrBatchPartialFailure)
	assert.Equal(t, 2, result.Failed)
	assert.True(t, errors.Is(result.Results[1].Err, context.Canceled))
	assert.Empty(t, loader.loaded)
}

func TestHandleBatch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	var handler queue.BatchHandler = NewProcessor(newSurrogateLoader())

	require.NoError(t, handler.HandleBatch(context.Background(), nil))
	require.ErrorIs(t,
		handler.HandleBatch(context.Background(), []queue.Message{message("m1", "{}")}),
		ErrBatchPartialFailure)
}
