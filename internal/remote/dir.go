package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/movie-explorer/catalog-ingest/internal/config"
)

// RootID is the folder id of the DirTree root.
const RootID = "."

var _ Tree = (*DirTree)(nil)

// DirTree implements Tree over a local directory. Folder and file ids are slash-separated
// paths relative to the root. Symbolic links are not followed.
type DirTree struct {
	root         string
	maxLeafBytes int64
	logger       *slog.Logger
}

// NewDirTree serves the tree rooted at root.
func NewDirTree(root string, maxLeafBytes int64, logger *slog.Logger) (*DirTree, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open tree root %s: %w", root, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("tree root %s is not a directory", root)
	}

	if maxLeafBytes <= 0 {
		maxLeafBytes = DefaultMaxLeafBytes
	}

	if logger == nil {
		logger = config.NewLogger()
	}

	return &DirTree{root: root, maxLeafBytes: maxLeafBytes, logger: logger}, nil
}

// ListChildren reads one directory.
func (d *DirTree) ListChildren(ctx context.Context, folderID string) (*Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.accessError("list", folderID, err)
	}

	dir, err := d.resolve(folderID)
	if err != nil {
		return nil, d.accessError("list", folderID, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, d.accessError("list", folderID, err)
	}

	listing := &Listing{}

	for _, entry := range entries {
		id := path.Join(folderID, entry.Name())

		switch {
		case entry.Type()&fs.ModeSymlink != 0:
			d.logger.Debug("Skipping symbolic link", slog.String("id", id))
		case entry.IsDir():
			listing.Folders = append(listing.Folders, Folder{ID: id, Name: entry.Name()})
		case entry.Type().IsRegular():
			info, err := entry.Info()
			if err != nil {
				continue
			}

			listing.Files = append(listing.Files, Leaf{
				ID:           id,
				Name:         entry.Name(),
				MimeType:     mime.TypeByExtension(filepath.Ext(entry.Name())),
				Size:         info.Size(),
				SizeKnown:    true,
				ModifiedTime: info.ModTime().UTC(),
				Parents:      []string{folderID},
			})
		}
	}

	sortListing(listing)

	return listing, nil
}

// FetchLeafBytes reads one file, rejecting content above the size bound.
func (d *DirTree) FetchLeafBytes(ctx context.Context, fileID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, d.accessError("fetch", fileID, err)
	}

	name, err := d.resolve(fileID)
	if err != nil {
		return nil, d.accessError("fetch", fileID, err)
	}

	f, err := os.Open(name) // #nosec G304 - path is confined to the tree root by resolve
	if err != nil {
		return nil, d.accessError("fetch", fileID, err)
	}

	defer func() {
		_ = f.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(f, d.maxLeafBytes+1))
	if err != nil {
		return nil, d.accessError("fetch", fileID, err)
	}

	if int64(len(data)) > d.maxLeafBytes {
		return nil, &AccessError{
			Op:   "fetch",
			ID:   fileID,
			Kind: KindTooLarge,
			Err:  fmt.Errorf("content exceeds %d bytes", d.maxLeafBytes),
		}
	}

	return data, nil
}

// Describe returns the directory's base name; the root is named after the root directory.
func (d *DirTree) Describe(ctx context.Context, folderID string) (Folder, error) {
	if err := ctx.Err(); err != nil {
		return Folder{}, d.accessError("describe", folderID, err)
	}

	dir, err := d.resolve(folderID)
	if err != nil {
		return Folder{}, d.accessError("describe", folderID, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return Folder{}, d.accessError("describe", folderID, err)
	}

	if !info.IsDir() {
		return Folder{}, d.accessError("describe", folderID, fmt.Errorf("%s is not a folder: %w", folderID, fs.ErrNotExist))
	}

	return Folder{ID: folderID, Name: filepath.Base(filepath.Clean(dir))}, nil
}

// resolve maps an id to a path under root. Ids escaping the root do not exist.
func (d *DirTree) resolve(id string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(id)) && id != RootID {
		return "", fmt.Errorf("%q is outside the tree: %w", id, fs.ErrNotExist)
	}

	return filepath.Join(d.root, filepath.FromSlash(id)), nil
}

func (d *DirTree) accessError(op, id string, err error) *AccessError {
	kind := KindUnavailable

	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = KindNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = KindAccessDenied
	}

	d.logger.Error("Directory tree access failed",
		slog.String("op", op),
		slog.String("id", id),
		slog.String("kind", string(kind)),
		slog.String("error", err.Error()))

	return &AccessError{Op: op, ID: id, Kind: kind, Err: err}
}
