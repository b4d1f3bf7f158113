// Package hash computes content digests for the registration pipeline.
//
// Files are addressed by the SHA-256 of their byte stream, encoded as
// lowercase hex. The digest doubles as the object-store key, so identical
// content always lands under the same key no matter how many paths
// reference it.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// chunkSize is the read buffer used while streaming a file through the
// digest. Large enough to amortize syscalls, small enough to keep memory
// flat for multi-gigabyte files.
const chunkSize = 64 * 1024

// Error wraps a per-file hashing failure. Callers treat it as a skip for
// that file, not a fatal pipeline error.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to hash %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// SumFile streams the file at path through SHA-256 and returns the digest
// as lowercase hex. Symbolic links are not followed by callers before
// invoking this; SumFile itself opens whatever path resolves to.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &Error{Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", &Error{Path: path, Err: err}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumBytes returns the lowercase hex SHA-256 of the given bytes.
// Used by tests and anywhere content is already in memory.
func SumBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
