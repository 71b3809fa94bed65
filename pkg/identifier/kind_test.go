package identifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/latticefs/core/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestClassifyExtensionKnownTable(t *testing.T) {
	require.Equal(t, types.KindImage, ClassifyExtension("png"))
	require.Equal(t, types.KindVideo, ClassifyExtension("mp4"))
	require.Equal(t, types.KindText, ClassifyExtension("md"))
	require.Equal(t, types.KindUnknown, ClassifyExtension("zzz"))
}

func TestClassifyPathSniffsUnrecognizedExtension(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "photo.xyz")
	// A minimal PNG signature is enough for http.DetectContentType to
	// report "image/png"; the real file content beyond the header is
	// irrelevant to sniffing.
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	require.NoError(t, os.WriteFile(path, png, 0o644))

	require.Equal(t, types.KindUnknown, ClassifyExtension("xyz"))
	require.Equal(t, types.KindImage, ClassifyPath("xyz", path))
}

func TestClassifyPathPrefersExtensionTableWhenUnambiguous(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	// Extension already resolves, so ClassifyPath must not need to open
	// the file at all; passing a nonexistent path proves it never tries.
	require.Equal(t, types.KindText, ClassifyPath("txt", filepath.Join(dir, "does-not-exist.txt")))
}

func TestClassifyPathUnreadableFileDegradesToUnknown(t *testing.T) {
	require.Equal(t, types.KindUnknown, ClassifyPath("zzz", "/nonexistent/path/for/sure"))
}
