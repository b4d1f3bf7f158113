package dbclient

import (
	"context"
	"fmt"
)

// errorColumnLimit caps error and reason text stored on content rows.
const errorColumnLimit = 500

// DequeueUploadBatch atomically flips up to batchSize pending content rows
// to uploading and returns them. The RPC filters to content reachable from
// a live file under one of pathPrefixes, and its selection is atomic at the
// database layer, so concurrent workers never receive the same row.
func (c *Client) DequeueUploadBatch(ctx context.Context, batchSize int, pathPrefixes []string) ([]UploadItem, error) {
	body := map[string]any{
		"p_batch_size":    batchSize,
		"p_path_prefixes": pathPrefixes,
	}

	var items []UploadItem
	if err := c.post(ctx, "/rpc/dequeue_upload_batch", nil, "", body, &items); err != nil {
		return nil, fmt.Errorf("failed to dequeue upload batch: %w", err)
	}
	return items, nil
}

// MarkUploadComplete records a successful upload: status uploaded with the
// object-store key in storage_path.
func (c *Client) MarkUploadComplete(ctx context.Context, contentHash, storagePath, mimeType string) error {
	body := map[string]any{
		"p_hash":         contentHash,
		"p_storage_path": storagePath,
		"p_mime_type":    mimeType,
	}

	if err := c.post(ctx, "/rpc/mark_upload_complete", nil, "", body, nil); err != nil {
		return fmt.Errorf("failed to mark upload complete %s: %w", contentHash, err)
	}
	return nil
}

// MarkUploadFailed records a failed upload. The row returns to pending with
// an incremented retry count; the error text is truncated to fit its column.
func (c *Client) MarkUploadFailed(ctx context.Context, contentHash, uploadErr string) error {
	body := map[string]any{
		"p_hash":  contentHash,
		"p_error": truncate(uploadErr, errorColumnLimit),
	}

	if err := c.post(ctx, "/rpc/mark_upload_failed", nil, "", body, nil); err != nil {
		return fmt.Errorf("failed to mark upload failed %s: %w", contentHash, err)
	}
	return nil
}

// MarkUploadSkipped permanently skips a content row. Skipped rows are never
// retried.
func (c *Client) MarkUploadSkipped(ctx context.Context, contentHash, reason string) error {
	body := map[string]any{
		"p_hash":   contentHash,
		"p_reason": truncate(reason, errorColumnLimit),
	}

	if err := c.post(ctx, "/rpc/mark_upload_skipped", nil, "", body, nil); err != nil {
		return fmt.Errorf("failed to mark upload skipped %s: %w", contentHash, err)
	}
	return nil
}

// ResetStuckUploads reverts uploading rows older than the server-side
// threshold back to pending. Called once at uploader startup to recover
// rows orphaned by a crashed worker.
func (c *Client) ResetStuckUploads(ctx context.Context) (int, error) {
	var count int
	if err := c.post(ctx, "/rpc/reset_stuck_uploads", nil, "", map[string]any{}, &count); err != nil {
		return 0, fmt.Errorf("failed to reset stuck uploads: %w", err)
	}
	return count, nil
}
