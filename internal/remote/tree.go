// Package remote lists and fetches the folder tree that holds movie record files.
//
// Two backends implement Tree: DriveTree over the Google Drive v3 API and DirTree over a
// local directory. Both return listings sorted by name with no duplicate ids.
package remote

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SizeNotAvailable is shown for leaves whose size the remote does not report.
const SizeNotAvailable = "N/A"

// DefaultMaxLeafBytes bounds FetchLeafBytes when no limit is configured.
const DefaultMaxLeafBytes int64 = 1 << 20

type (
	// Tree is the read-only view of the remote hierarchy used by the traversal.
	Tree interface {
		// ListChildren returns the complete set of direct children of folderID, across all pages.
		ListChildren(ctx context.Context, folderID string) (*Listing, error)

		// FetchLeafBytes downloads the full content of a leaf.
		FetchLeafBytes(ctx context.Context, fileID string) ([]byte, error)

		// Describe returns the metadata of a folder.
		Describe(ctx context.Context, folderID string) (Folder, error)
	}

	// Folder is an interior node.
	Folder struct {
		ID   string
		Name string
	}

	// Leaf is a terminal node whose content may be a record.
	Leaf struct {
		ID           string
		Name         string
		MimeType     string
		Size         int64
		SizeKnown    bool
		ModifiedTime time.Time
		Parents      []string
	}

	// Listing is the direct children of one folder, each list sorted by name.
	Listing struct {
		Folders []Folder
		Files   []Leaf
	}
)

// SizeString renders the leaf size for logs.
func (l Leaf) SizeString() string {
	if !l.SizeKnown {
		return SizeNotAvailable
	}

	return FormatSize(l.Size)
}

// FormatSize renders n bytes with binary units: "500 B", "2.0 KB", "3.5 MB", "1.2 GB".
func FormatSize(n int64) string {
	const unit = 1024

	switch {
	case n < unit:
		return fmt.Sprintf("%d B", n)
	case n < unit*unit:
		return fmt.Sprintf("%.1f KB", float64(n)/unit)
	case n < unit*unit*unit:
		return fmt.Sprintf("%.1f MB", float64(n)/(unit*unit))
	default:
		return fmt.Sprintf("%.1f GB", float64(n)/(unit*unit*unit))
	}
}

// sortListing orders folders and files by name, ties broken by id.
func sortListing(l *Listing) {
	sort.Slice(l.Folders, func(i, j int) bool {
		if l.Folders[i].Name != l.Folders[j].Name {
			return l.Folders[i].Name < l.Folders[j].Name
		}

		return l.Folders[i].ID < l.Folders[j].ID
	})

	sort.Slice(l.Files, func(i, j int) bool {
		if l.Files[i].Name != l.Files[j].Name {
			return l.Files[i].Name < l.Files[j].Name
		}

		return l.Files[i].ID < l.Files[j].ID
	})
}
