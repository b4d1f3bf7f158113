package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestHeaders(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-key", 0)
	_, err := c.FetchPathMap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "secret-key", gotHeaders.Get("X-API-Key"))
	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "application/json", gotHeaders.Get("Accept"))
}

func TestFetchPathMapPagination(t *testing.T) {
	// First page completely full, second page with a single row: the client
	// must request both and stop after the short page.
	var offsets []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)
		assert.Equal(t, "full_path,content_hash", r.URL.Query().Get("select"))
		assert.Equal(t, "id", r.URL.Query().Get("order"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, offset)

		w.Header().Set("Content-Type", "application/json")
		if offset == 0 {
			rows := make([]map[string]any, pageSize)
			for i := range rows {
				rows[i] = map[string]any{
					"full_path":    fmt.Sprintf("/data/file-%04d", i),
					"content_hash": fmt.Sprintf("hash-%04d", i),
				}
			}
			_ = json.NewEncoder(w).Encode(rows)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"full_path": "/data/last", "content_hash": nil},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	pathMap, err := c.FetchPathMap(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0, pageSize}, offsets)
	assert.Len(t, pathMap, pageSize+1)
	assert.Equal(t, "hash-0042", pathMap["/data/file-0042"])
	// Null content hash decodes to empty string
	assert.Equal(t, "", pathMap["/data/last"])
}

func TestUpsertContent(t *testing.T) {
	var gotBody map[string]any
	var gotPrefer, gotConflict string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/file_contents", r.URL.Path)
		gotPrefer = r.Header.Get("Prefer")
		gotConflict = r.URL.Query().Get("on_conflict")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	err := c.UpsertContent(context.Background(), "deadbeef", 1234, "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "resolution=merge-duplicates", gotPrefer)
	assert.Equal(t, "content_hash", gotConflict)
	assert.Equal(t, "deadbeef", gotBody["content_hash"])
	assert.Equal(t, float64(1234), gotBody["size_bytes"])
	assert.Equal(t, "application/pdf", gotBody["mime_type"])
	assert.NotEmpty(t, gotBody["db_updated_at"])
}

func TestUpsertContentNullMime(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	require.NoError(t, c.UpsertContent(context.Background(), "deadbeef", 1, ""))

	// Unknown MIME must be an explicit null, not a missing key
	mime, ok := raw["mime_type"]
	require.True(t, ok, "mime_type key missing")
	assert.Equal(t, "null", string(mime))
}

func TestUpsertFileResurrection(t *testing.T) {
	var raw map[string]json.RawMessage
	var gotConflict string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotConflict = r.URL.Query().Get("on_conflict")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	rec := &FileRecord{
		FullPath:    "/data/a.txt",
		ContentHash: "deadbeef",
		Filename:    "a.txt",
		FolderPath:  "data",
		LastSeenAt:  time.Now().UTC(),
	}
	require.NoError(t, c.UpsertFile(context.Background(), rec))

	assert.Equal(t, "full_path", gotConflict)

	// The upsert must carry an explicit deleted_at null so soft-deleted rows
	// are resurrected.
	deleted, ok := raw["deleted_at"]
	require.True(t, ok, "deleted_at key missing")
	assert.Equal(t, "null", string(deleted))
}

func TestTouchFile(t *testing.T) {
	var gotFilter string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		gotFilter = r.URL.Query().Get("full_path")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	require.NoError(t, c.TouchFile(context.Background(), "/data/a.txt"))

	assert.Equal(t, "eq./data/a.txt", gotFilter)
	assert.NotEmpty(t, gotBody["last_seen_at"])
	assert.Len(t, gotBody, 1, "touch must only update last_seen_at")
}

func TestMarkDeleted(t *testing.T) {
	before := time.Date(2026, 8, 24, 2, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "lt."+before.Format(time.RFC3339Nano), q.Get("last_seen_at"))
		assert.Equal(t, "is.null", q.Get("deleted_at"))
		assert.Equal(t, "like./mnt/share*", q.Get("full_path"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotEmpty(t, body["deleted_at"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"full_path": "/mnt/share/gone1"},
			{"full_path": "/mnt/share/gone2"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	count, err := c.MarkDeleted(context.Background(), "/mnt/share", before)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestDequeueUploadBatch(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/dequeue_upload_batch", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"content_hash": "aaa", "full_path": "/mnt/share/a.txt"},
			{"content_hash": "bbb", "full_path": "/mnt/share/b.txt"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	items, err := c.DequeueUploadBatch(context.Background(), 5, []string{"/mnt/share"})
	require.NoError(t, err)

	assert.Equal(t, float64(5), gotBody["p_batch_size"])
	assert.Equal(t, []any{"/mnt/share"}, gotBody["p_path_prefixes"])
	require.Len(t, items, 2)
	assert.Equal(t, "aaa", items[0].ContentHash)
	assert.Equal(t, "/mnt/share/a.txt", items[0].FullPath)
}

func TestMarkUploadComplete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/mark_upload_complete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	require.NoError(t, c.MarkUploadComplete(context.Background(), "aaa", "aaa", "text/plain"))

	assert.Equal(t, "aaa", gotBody["p_hash"])
	assert.Equal(t, "aaa", gotBody["p_storage_path"])
	assert.Equal(t, "text/plain", gotBody["p_mime_type"])
}

func TestMarkUploadFailedTruncates(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	longErr := strings.Repeat("x", 2000)
	require.NoError(t, c.MarkUploadFailed(context.Background(), "aaa", longErr))

	assert.Len(t, gotBody["p_error"], errorColumnLimit)
}

func TestMarkUploadSkipped(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/mark_upload_skipped", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	require.NoError(t, c.MarkUploadSkipped(context.Background(), "aaa", "too large"))

	assert.Equal(t, "too large", gotBody["p_reason"])
}

func TestResetStuckUploads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rpc/reset_stuck_uploads", r.URL.Path)
		_, _ = w.Write([]byte("3"))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	count, err := c.ResetStuckUploads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"duplicate key","details":"files_full_path_key"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	err := c.TouchFile(context.Background(), "/data/a.txt")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "duplicate key", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "files_full_path_key")
}

func TestAPIErrorUnstructuredBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	err := c.TouchFile(context.Background(), "/data/a.txt")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.True(t, apiErr.IsServerError())
	assert.Contains(t, apiErr.Message, "upstream unavailable")
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(srv.URL, "k", 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchPathMap(ctx)
	require.Error(t, err)
}
