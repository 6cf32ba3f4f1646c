// Package stream turns an HTTP byte stream of concatenated JPEG images
// into discrete re-encoded frames published for the display bridge.
package stream

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"time"
)

// Encoding is the compression format frames are published in.
type Encoding string

const (
	EncodingJPEG Encoding = "jpeg"
	EncodingPNG  Encoding = "png"
)

// Frame is one encoded screen image. Frames are immutable once published;
// a newer frame supersedes the previous one, nothing is queued.
type Frame struct {
	Pixels     []byte
	Width      int
	Height     int
	Encoding   Encoding
	CapturedAt time.Time
}

// encodeImage compresses img in the requested format. JPEG uses quality
// directly; PNG derives its compression level from quality.
func encodeImage(img image.Image, enc Encoding, quality int) ([]byte, error) {
	var buf bytes.Buffer
	switch enc {
	case EncodingJPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case EncodingPNG:
		e := png.Encoder{CompressionLevel: pngLevel(9 - quality/10)}
		if err := e.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
	return buf.Bytes(), nil
}

// pngLevel buckets a 0-9 compression level onto the png package's levels.
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level <= 0:
		return png.NoCompression
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

// blackFrame synthesizes an all-black frame at the given resolution, the
// fail-soft default served before the first real publication.
func blackFrame(width, height int, enc Encoding, quality int) (*Frame, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	pixels, err := encodeImage(img, enc, quality)
	if err != nil {
		return nil, err
	}
	return &Frame{
		Pixels:     pixels,
		Width:      width,
		Height:     height,
		Encoding:   enc,
		CapturedAt: time.Time{},
	}, nil
}
