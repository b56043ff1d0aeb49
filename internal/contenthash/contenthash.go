// Package contenthash computes the engine's content fingerprint, a fast,
// size-aware 64-bit hash over the head and tail of a file (spec.md §4.4).
package contenthash

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

const (
	chunkSize    = 64 * 1024
	tailCutoff   = 2 * chunkSize
)

// Compute returns the 16-character lowercase hex fingerprint for the file
// at path, per the algorithm in spec.md §4.4: size prefix, then the first
// 64 KiB, then (for files over 128 KiB) the last 64 KiB.
func Compute(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file for hashing: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat file for hashing: %w", err)
	}
	size := info.Size()

	h := xxhash.New()

	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(size))
	h.Write(sizeBuf[:])

	head := make([]byte, chunkSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("read head for hashing: %w", err)
	}
	h.Write(head[:n])

	if size > tailCutoff {
		if _, err := f.Seek(size-chunkSize, io.SeekStart); err != nil {
			return "", fmt.Errorf("seek to tail for hashing: %w", err)
		}
		tail := make([]byte, chunkSize)
		n, err := io.ReadFull(f, tail)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return "", fmt.Errorf("read tail for hashing: %w", err)
		}
		h.Write(tail[:n])
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}
