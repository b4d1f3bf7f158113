package dbclient

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// FetchPathMap fetches the full path → content hash map from the files
// table, paginated with stable id ordering so pages cannot skip or
// duplicate rows. Rows with a null content hash map to the empty string.
func (c *Client) FetchPathMap(ctx context.Context) (map[string]string, error) {
	pathMap := make(map[string]string)
	offset := 0

	for {
		query := url.Values{}
		query.Set("select", "full_path,content_hash")
		query.Set("order", "id")
		query.Set("offset", strconv.Itoa(offset))
		query.Set("limit", strconv.Itoa(pageSize))

		var page []struct {
			FullPath    string  `json:"full_path"`
			ContentHash *string `json:"content_hash"`
		}
		if err := c.get(ctx, "/files", query, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch path map (offset=%d): %w", offset, err)
		}

		for _, row := range page {
			if row.ContentHash != nil {
				pathMap[row.FullPath] = *row.ContentHash
			} else {
				pathMap[row.FullPath] = ""
			}
		}

		if len(page) < pageSize {
			return pathMap, nil
		}
		offset += pageSize
	}
}

// UpsertContent merges a content row on content_hash. A new digest enters
// in pending upload status server-side; the client never sends a status, so
// an existing row's status is not regressed.
func (c *Client) UpsertContent(ctx context.Context, contentHash string, sizeBytes int64, mimeType string) error {
	query := url.Values{}
	query.Set("on_conflict", "content_hash")

	body := map[string]any{
		"content_hash":  contentHash,
		"size_bytes":    sizeBytes,
		"db_updated_at": nowUTC(),
	}
	if mimeType != "" {
		body["mime_type"] = mimeType
	} else {
		body["mime_type"] = nil
	}

	if err := c.post(ctx, "/file_contents", query, "resolution=merge-duplicates", body, nil); err != nil {
		return fmt.Errorf("failed to upsert content %s: %w", contentHash, err)
	}
	return nil
}

// UpsertFile merges a file row on full_path. The record carries an explicit
// null deleted_at, so a reappearing path resurrects its soft-deleted row.
func (c *Client) UpsertFile(ctx context.Context, rec *FileRecord) error {
	query := url.Values{}
	query.Set("on_conflict", "full_path")

	if err := c.post(ctx, "/files", query, "resolution=merge-duplicates", rec, nil); err != nil {
		return fmt.Errorf("failed to upsert file %s: %w", rec.FullPath, err)
	}
	return nil
}

// TouchFile advances last_seen_at for an unchanged path.
func (c *Client) TouchFile(ctx context.Context, fullPath string) error {
	query := url.Values{}
	query.Set("full_path", "eq."+fullPath)

	body := map[string]any{"last_seen_at": nowUTC()}

	if err := c.patch(ctx, "/files", query, "", body, nil); err != nil {
		return fmt.Errorf("failed to touch file %s: %w", fullPath, err)
	}
	return nil
}

// MarkDeleted soft-deletes every live row under pathPrefix whose
// last_seen_at predates before. Returns the number of rows deleted.
//
// The before timestamp is the scan start, captured before the path map
// fetch, so a concurrent watcher registration (which advances last_seen_at
// past it) is never swept.
func (c *Client) MarkDeleted(ctx context.Context, pathPrefix string, before time.Time) (int, error) {
	query := url.Values{}
	query.Set("last_seen_at", "lt."+before.UTC().Format(time.RFC3339Nano))
	query.Set("deleted_at", "is.null")
	query.Set("full_path", "like."+pathPrefix+"*")

	body := map[string]any{"deleted_at": nowUTC()}

	var deleted []struct {
		FullPath string `json:"full_path"`
	}
	if err := c.patch(ctx, "/files", query, "return=representation", body, &deleted); err != nil {
		return 0, fmt.Errorf("failed to soft-delete files under %s: %w", pathPrefix, err)
	}
	return len(deleted), nil
}
