// Package hashid computes the content-address (CAS id) used to identify
// distinct file content without reading whole files.
package hashid

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"lukechampine.com/blake3"
)

// PrefixSize is the maximum number of leading bytes read from a file to
// compute its CAS id. Large files are never read in full.
const PrefixSize = 128 * 1024

// ZeroLengthCasID is the CAS id for any file with length <= 0.
var ZeroLengthCasID = computeFromPrefix(0, nil)

// FromPath computes the CAS id of the file at path, given its length.
// It reads at most the first PrefixSize bytes of the file.
func FromPath(path string, length int64) (string, error) {
	if length <= 0 {
		return ZeroLengthCasID, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s for hashing: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, PrefixSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read prefix of %s: %w", path, err)
	}

	return computeFromPrefix(length, buf[:n]), nil
}

// computeFromPrefix hashes length.to_le_bytes() || prefix and returns the
// first 16 bytes of the digest as lowercase hex.
func computeFromPrefix(length int64, prefix []byte) string {
	h := blake3.New(32, nil)
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(length))
	h.Write(lenBuf[:])
	h.Write(prefix)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
