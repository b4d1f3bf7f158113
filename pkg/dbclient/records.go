package dbclient

import "time"

// FileRecord is one row of the files table, one per live path.
//
// DeletedAt has no omitempty on purpose: upserts must send an explicit null
// so a soft-deleted row is resurrected when its path reappears.
type FileRecord struct {
	FullPath     string         `json:"full_path"`
	ContentHash  string         `json:"content_hash"`
	Filename     string         `json:"filename"`
	FolderPath   string         `json:"folder_path"`
	FsCreatedAt  time.Time      `json:"fs_created_at"`
	FsModifiedAt time.Time      `json:"fs_modified_at"`
	FsInode      uint64         `json:"fs_inode"`
	FsAttributes map[string]any `json:"fs_attributes,omitempty"`
	AutoMetadata map[string]any `json:"auto_metadata,omitempty"`
	LastSeenAt   time.Time      `json:"last_seen_at"`
	DeletedAt    *time.Time     `json:"deleted_at"`
}

// UploadItem is one entry returned by the dequeue RPC: a content row flipped
// to uploading, together with a live path that references it.
type UploadItem struct {
	ContentHash string `json:"content_hash"`
	FullPath    string `json:"full_path"`
	MimeType    string `json:"mime_type,omitempty"`
}
