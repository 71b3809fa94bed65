// Package encode provides the pluggable thumbnail encoders the thumbnailer
// pipeline dispatches to by object kind.
package encode

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/chai2010/webp"
	"github.com/latticefs/core/pkg/types"
)

// ErrVideoNotSupported is returned by the default VideoFrameEncoder; video
// thumbnailing requires a codec to be wired in by the caller.
var ErrVideoNotSupported = errors.New("thumbnailer: video frame extraction not supported in this build")

// Quality is the WebP encode quality the specification fixes for images.
const Quality = 75

// Encoder produces a thumbnail for one source file, writing WebP bytes to w.
type Encoder interface {
	Encode(w io.Writer, sourcePath string, kind types.ObjectKind) error
}

// WebPEncoder decodes a still image with the standard library's registered
// image codecs and re-encodes it to WebP at Quality.
type WebPEncoder struct{}

func (WebPEncoder) Encode(w io.Writer, sourcePath string, kind types.ObjectKind) error {
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open source image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode source image: %w", err)
	}

	return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: Quality})
}

// VideoFrameEncoder is the default Encoder for types.KindVideo. It has no
// codec wired in: Encode extracts no frame, writes nothing and always
// returns ErrVideoNotSupported. Video thumbnails need another Encoder for
// types.KindVideo.
type VideoFrameEncoder struct{}

func (VideoFrameEncoder) Encode(w io.Writer, sourcePath string, kind types.ObjectKind) error {
	return ErrVideoNotSupported
}

// ForKind picks the encoder registered for an object kind, or nil if none
// applies and the file_path should be skipped.
func ForKind(kind types.ObjectKind, image Encoder, video Encoder) Encoder {
	switch kind {
	case types.KindImage:
		return image
	case types.KindVideo:
		return video
	default:
		return nil
	}
}
