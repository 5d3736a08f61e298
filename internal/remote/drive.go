package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/movie-explorer/catalog-ingest/internal/config"
)

const (
	folderMimeType        = "application/vnd.google-apps.folder"
	googleNativePrefix    = "application/vnd.google-apps."
	listFields            = "nextPageToken, files(id, name, mimeType, size, modifiedTime, parents)"
	describeFields        = "id, name, mimeType"
	defaultPageSize       = 100
	defaultRequestsPerSec = 10
	defaultBurst          = 5
)

var _ Tree = (*DriveTree)(nil)

type (
	// DriveConfig tunes the Drive client.
	DriveConfig struct {
		PageSize          int64
		RequestsPerSecond float64
		Burst             int
		MaxLeafBytes      int64
	}

	// DriveTree implements Tree over Google Drive v3, including shared drives.
	DriveTree struct {
		svc     *drive.Service
		limiter *rate.Limiter
		cfg     DriveConfig
		logger  *slog.Logger
	}
)

// LoadDriveConfig reads DRIVE_PAGE_SIZE, DRIVE_REQUESTS_PER_SECOND, DRIVE_BURST and MAX_RECORD_BYTES.
func LoadDriveConfig() DriveConfig {
	return DriveConfig{
		PageSize:          config.GetEnvInt64("DRIVE_PAGE_SIZE", defaultPageSize),
		RequestsPerSecond: config.GetEnvFloat("DRIVE_REQUESTS_PER_SECOND", defaultRequestsPerSec),
		Burst:             config.GetEnvInt("DRIVE_BURST", defaultBurst),
		MaxLeafBytes:      config.GetEnvInt64("MAX_RECORD_BYTES", DefaultMaxLeafBytes),
	}
}

// NewDriveTree wraps an authorized Drive service. Zero config fields take defaults.
func NewDriveTree(svc *drive.Service, cfg DriveConfig, logger *slog.Logger) *DriveTree {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSec
	}

	if cfg.Burst <= 0 {
		cfg.Burst = defaultBurst
	}

	if cfg.MaxLeafBytes <= 0 {
		cfg.MaxLeafBytes = DefaultMaxLeafBytes
	}

	if logger == nil {
		logger = config.NewLogger()
	}

	return &DriveTree{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		cfg:     cfg,
		logger:  logger,
	}
}

// ErrRepeatedPageToken is returned when a listing hands back a page token it already used.
var ErrRepeatedPageToken = errors.New("drive returned a repeated page token")

// ListChildren pages through the non-trashed children of folderID. Items listed on more
// than one page, or under several parents, appear once.
func (d *DriveTree) ListChildren(ctx context.Context, folderID string) (*Listing, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false", escapeQueryValue(folderID))

	listing := &Listing{}
	seen := make(map[string]bool)
	tokens := make(map[string]bool)
	pageToken := ""
	pages := 0

	for {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, d.accessError("list", folderID, err)
		}

		call := d.svc.Files.List().
			Q(query).
			PageSize(d.cfg.PageSize).
			Fields(googleapi.Field(listFields)).
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)

		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, d.accessError("list", folderID, err)
		}

		pages++

		for _, f := range resp.Files {
			if f == nil || seen[f.Id] {
				continue
			}

			seen[f.Id] = true

			if f.MimeType == folderMimeType {
				listing.Folders = append(listing.Folders, Folder{ID: f.Id, Name: f.Name})

				continue
			}

			listing.Files = append(listing.Files, leafFromFile(f))
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}

		if tokens[pageToken] {
			return nil, d.accessError("list", folderID, fmt.Errorf("%w after %d pages", ErrRepeatedPageToken, pages))
		}

		tokens[pageToken] = true
	}

	sortListing(listing)

	d.logger.Debug("Listed folder",
		slog.String("folder_id", folderID),
		slog.Int("pages", pages),
		slog.Int("files", len(listing.Files)),
		slog.Int("folders", len(listing.Folders)))

	return listing, nil
}

// FetchLeafBytes downloads a leaf. Content larger than MaxLeafBytes is rejected with KindTooLarge.
func (d *DriveTree) FetchLeafBytes(ctx context.Context, fileID string) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, d.accessError("fetch", fileID, err)
	}

	resp, err := d.svc.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, d.accessError("fetch", fileID, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxLeafBytes+1))
	if err != nil {
		return nil, d.accessError("fetch", fileID, err)
	}

	if int64(len(data)) > d.cfg.MaxLeafBytes {
		return nil, &AccessError{
			Op:   "fetch",
			ID:   fileID,
			Kind: KindTooLarge,
			Err:  fmt.Errorf("content exceeds %d bytes", d.cfg.MaxLeafBytes),
		}
	}

	return data, nil
}

// Describe fetches folder metadata.
func (d *DriveTree) Describe(ctx context.Context, folderID string) (Folder, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return Folder{}, d.accessError("describe", folderID, err)
	}

	f, err := d.svc.Files.Get(folderID).
		Fields(googleapi.Field(describeFields)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return Folder{}, d.accessError("describe", folderID, err)
	}

	return Folder{ID: f.Id, Name: f.Name}, nil
}

// accessError classifies err and logs it with its kind.
func (d *DriveTree) accessError(op, id string, err error) *AccessError {
	kind := KindUnavailable

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			kind = KindNotFound
		case http.StatusForbidden, http.StatusUnauthorized:
			kind = KindAccessDenied
		}
	}

	accessErr := &AccessError{Op: op, ID: id, Kind: kind, Err: err}

	switch kind {
	case KindNotFound:
		d.logger.Error("Drive item not found",
			slog.String("op", op), slog.String("id", id), slog.String("kind", string(kind)))
	case KindAccessDenied:
		d.logger.Error("Drive access denied",
			slog.String("op", op), slog.String("id", id), slog.String("kind", string(kind)))
	default:
		d.logger.Error("Drive request failed",
			slog.String("op", op), slog.String("id", id), slog.String("kind", string(kind)),
			slog.String("error", err.Error()))
	}

	return accessErr
}

func leafFromFile(f *drive.File) Leaf {
	leaf := Leaf{
		ID:        f.Id,
		Name:      f.Name,
		MimeType:  f.MimeType,
		Size:      f.Size,
		SizeKnown: !strings.HasPrefix(f.MimeType, googleNativePrefix),
		Parents:   f.Parents,
	}

	if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
		leaf.ModifiedTime = t
	}

	return leaf
}

// escapeQueryValue escapes a value for a single-quoted Drive query literal.
func escapeQueryValue(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}
