package identifier

import (
	"net/http"
	"os"
	"strings"

	"github.com/latticefs/core/pkg/types"
)

// kindByExtension resolves an ObjectKind from a lowercased, dot-free file
// extension. Extensions not present fall back to a content sniff in
// ClassifyPath.
var kindByExtension = map[string]types.ObjectKind{
	"jpg": types.KindImage, "jpeg": types.KindImage, "png": types.KindImage,
	"gif": types.KindImage, "webp": types.KindImage, "bmp": types.KindImage,
	"tiff": types.KindImage, "heic": types.KindImage, "avif": types.KindImage,

	"mp4": types.KindVideo, "mov": types.KindVideo, "mkv": types.KindVideo,
	"avi": types.KindVideo, "webm": types.KindVideo, "m4v": types.KindVideo,

	"mp3": types.KindAudio, "wav": types.KindAudio, "flac": types.KindAudio,
	"aac": types.KindAudio, "ogg": types.KindAudio, "m4a": types.KindAudio,

	"pdf": types.KindDocument, "doc": types.KindDocument, "docx": types.KindDocument,
	"xls": types.KindDocument, "xlsx": types.KindDocument, "ppt": types.KindDocument,
	"pptx": types.KindDocument, "odt": types.KindDocument,

	"zip": types.KindArchive, "tar": types.KindArchive, "gz": types.KindArchive,
	"7z": types.KindArchive, "rar": types.KindArchive, "bz2": types.KindArchive,

	"go": types.KindCode, "rs": types.KindCode, "py": types.KindCode,
	"js": types.KindCode, "ts": types.KindCode, "c": types.KindCode,
	"cpp": types.KindCode, "java": types.KindCode, "sh": types.KindCode,

	"txt": types.KindText, "md": types.KindText, "csv": types.KindText,
	"json": types.KindText, "yaml": types.KindText, "yml": types.KindText,
	"toml": types.KindText, "xml": types.KindText,

	"exe": types.KindExecutable, "bin": types.KindExecutable, "app": types.KindExecutable,
}

// ClassifyExtension returns the ObjectKind for a lowercased, dot-free
// extension, defaulting to KindUnknown.
func ClassifyExtension(ext string) types.ObjectKind {
	if kind, ok := kindByExtension[ext]; ok {
		return kind
	}
	return types.KindUnknown
}

// sniffPrefixSize is the number of leading bytes read for content sniffing,
// matching the amount net/http.DetectContentType actually inspects.
const sniffPrefixSize = 512

// kindByMIMEPrefix maps the MIME top-level type/subtype prefixes
// DetectContentType can return to an ObjectKind. Checked in order, first
// match wins, since a handful of subtypes (e.g. "application/zip") live
// outside their type's general prefix.
var kindByMIMEPrefix = []struct {
	prefix string
	kind   types.ObjectKind
}{
	{"image/", types.KindImage},
	{"video/", types.KindVideo},
	{"audio/", types.KindAudio},
	{"application/pdf", types.KindDocument},
	{"application/msword", types.KindDocument},
	{"application/vnd.openxmlformats", types.KindDocument},
	{"application/zip", types.KindArchive},
	{"application/x-gzip", types.KindArchive},
	{"application/x-rar", types.KindArchive},
	{"application/x-7z-compressed", types.KindArchive},
	{"application/x-tar", types.KindArchive},
	{"text/", types.KindText},
}

// ClassifyPath resolves an ObjectKind for ext, falling back to sniffing the
// leading bytes of the file at absPath (via net/http.DetectContentType) when
// the extension is absent from the table or resolves to KindUnknown — e.g.
// an unrecognized extension, or a renamed/spoofed one. Sniff failures (the
// file has vanished, a permission error) degrade to the extension-only
// result rather than failing the caller.
func ClassifyPath(ext, absPath string) types.ObjectKind {
	if kind := ClassifyExtension(ext); kind != types.KindUnknown {
		return kind
	}

	f, err := os.Open(absPath)
	if err != nil {
		return types.KindUnknown
	}
	defer f.Close()

	buf := make([]byte, sniffPrefixSize)
	n, _ := f.Read(buf)
	if n == 0 {
		return types.KindUnknown
	}

	mime := http.DetectContentType(buf[:n])
	for _, m := range kindByMIMEPrefix {
		if strings.HasPrefix(mime, m.prefix) {
			return m.kind
		}
	}
	return types.KindUnknown
}

// ImageExtensions lists the extensions the thumbnailer treats as images.
func ImageExtensions() []string {
	return extensionsOfKind(types.KindImage)
}

// VideoExtensions lists the extensions the thumbnailer treats as videos.
func VideoExtensions() []string {
	return extensionsOfKind(types.KindVideo)
}

func extensionsOfKind(kind types.ObjectKind) []string {
	var out []string
	for ext, k := range kindByExtension {
		if k == kind {
			out = append(out, ext)
		}
	}
	return out
}
