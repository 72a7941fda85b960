// Package hashing streams content through a SHA-256 digest while copying it out.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
)

// DefaultChunkSize is the read size used when callers pass a non-positive chunk size.
const DefaultChunkSize = 8192

// Sink reads src in chunkSize pieces, feeding every chunk to a SHA-256 digest
// and writing the same bytes to dst. It returns the lowercase hex digest once
// src is exhausted. On error dst may hold a partial copy.
func Sink(dst io.Writer, src io.Reader, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	h := sha256.New()
	w := io.MultiWriter(h, dst)
	buf := make([]byte, chunkSize)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return "", werr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
