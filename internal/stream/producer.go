package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"
)

// JPEG frame delimiters in the source byte stream.
var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

const readChunkSize = 1024

// StopTimeout bounds how long Stop waits for the worker to exit.
const StopTimeout = 5 * time.Second

// ErrStopTimeout reports a worker that failed to exit within StopTimeout.
// This is a fatal condition for the caller, not something to ignore.
var ErrStopTimeout = errors.New("stream: producer worker did not exit before timeout")

// Config holds the frame production policy.
type Config struct {
	// SourceURL is the HTTP(S) endpoint delivering concatenated JPEGs.
	SourceURL string
	// FrameRate is the advisory publication rate target.
	FrameRate int
	// Quality is the re-encode quality, 0-100.
	Quality int
	// Scale downsizes frames by this factor, 0.1-1.0.
	Scale float64
	// Format is the published frame encoding.
	Format Encoding
	// Width and Height describe the source resolution. They size the
	// black placeholder frame; real frames carry their decoded size.
	Width  int
	Height int
}

// Producer runs one background worker that extracts frames from the source
// stream and publishes the latest one. The current-frame slot is an atomic
// pointer: the worker is the sole writer, bridge connections are readers.
type Producer struct {
	cfg    Config
	client *http.Client
	log    *slog.Logger

	current     atomic.Pointer[Frame]
	frames      atomic.Uint64
	failed      atomic.Bool
	placeholder *Frame
	placeOnce   sync.Once

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewProducer creates a stopped producer.
func NewProducer(cfg Config, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 30
	}
	if cfg.Scale <= 0 || cfg.Scale > 1 {
		cfg.Scale = 1
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 80
	}
	if cfg.Format == "" {
		cfg.Format = EncodingJPEG
	}
	return &Producer{
		cfg:    cfg,
		client: &http.Client{},
		log:    log.With("component", "frame_producer"),
	}
}

// Start spawns the capture worker. Starting a running producer is a no-op;
// a producer whose worker exited after a source failure can be started again.
func (p *Producer) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		select {
		case <-p.done:
			// The worker died with the source. Reclaim the slot.
			p.running = false
		default:
			p.log.Warn("Frame producer already running")
			return
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.failed.Store(false)
	go p.capture(ctx)
	p.log.Info("Frame producer started", "url", p.cfg.SourceURL, "framerate", p.cfg.FrameRate, "scale", p.cfg.Scale, "format", p.cfg.Format)
}

// Stop signals the worker and joins it, bounded by StopTimeout. A join
// timeout is returned as ErrStopTimeout.
func (p *Producer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
	case <-time.After(StopTimeout):
		return ErrStopTimeout
	}
	p.running = false
	p.log.Info("Frame producer stopped", "frames", p.frames.Load())
	return nil
}

// GetFrame returns the most recently published frame. Before the first
// publication (and after a failed source, if nothing was ever published)
// it returns a synthesized black frame of the configured resolution. It
// never blocks and never fails.
func (p *Producer) GetFrame() *Frame {
	if f := p.current.Load(); f != nil {
		return f
	}
	p.placeOnce.Do(func() {
		w := int(float64(p.cfg.Width) * p.cfg.Scale)
		h := int(float64(p.cfg.Height) * p.cfg.Scale)
		f, err := blackFrame(w, h, p.cfg.Format, p.cfg.Quality)
		if err != nil {
			// Unreachable for sane dimensions; keep a 1x1 fallback so
			// GetFrame stays infallible.
			f, _ = blackFrame(1, 1, EncodingJPEG, 80)
		}
		p.placeholder = f
	})
	return p.placeholder
}

// FrameCount reports how many frames have been published.
func (p *Producer) FrameCount() uint64 { return p.frames.Load() }

// Failed reports whether the source stream has died. GetFrame keeps
// serving the last good frame regardless.
func (p *Producer) Failed() bool { return p.failed.Load() }

// Resolution returns the published frame dimensions after scaling.
func (p *Producer) Resolution() (int, int) {
	if f := p.current.Load(); f != nil {
		return f.Width, f.Height
	}
	return int(float64(p.cfg.Width) * p.cfg.Scale), int(float64(p.cfg.Height) * p.cfg.Scale)
}

// capture reads the source stream, delimits JPEG frames, and publishes
// them at the configured rate until the context is cancelled or the
// source fails.
func (p *Producer) capture(ctx context.Context) {
	defer close(p.done)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.SourceURL, nil)
	if err != nil {
		p.log.Error("Invalid stream URL", "url", p.cfg.SourceURL, "error", err)
		p.failed.Store(true)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Error("Failed to open frame source", "url", p.cfg.SourceURL, "error", err)
		p.failed.Store(true)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.log.Error("Frame source refused", "url", p.cfg.SourceURL, "status", resp.StatusCode)
		p.failed.Store(true)
		return
	}

	interval := time.Second / time.Duration(p.cfg.FrameRate)
	var lastPublish time.Time
	var buf []byte
	chunk := make([]byte, readChunkSize)

	for {
		if ctx.Err() != nil {
			return
		}
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			// Frame-rate throttle: drop chunks until the interval since
			// the last publication has elapsed. Best-effort, not exact.
			if time.Since(lastPublish) < interval {
				continue
			}
			buf = append(buf, chunk[:n]...)
			for {
				frame, rest, ok := extractJPEG(buf)
				if !ok {
					break
				}
				buf = rest
				published, perr := p.transcode(frame)
				if perr != nil {
					// A bad frame is skipped, the worker keeps going.
					p.log.Debug("Skipping undecodable frame", "error", perr)
					continue
				}
				p.current.Store(published)
				p.frames.Add(1)
				lastPublish = time.Now()
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("Frame source lost", "url", p.cfg.SourceURL, "error", err)
			p.failed.Store(true)
			return
		}
	}
}

// extractJPEG pulls the first complete SOI..EOI delimited image out of buf.
func extractJPEG(buf []byte) (frame, rest []byte, ok bool) {
	start := bytes.Index(buf, jpegSOI)
	if start < 0 {
		return nil, buf, false
	}
	end := bytes.Index(buf[start+2:], jpegEOI)
	if end < 0 {
		return nil, buf, false
	}
	end += start + 2 + 2
	return buf[start:end], buf[end:], true
}

// transcode decodes a delimited JPEG, applies the scale policy, and
// re-encodes it in the configured format.
func (p *Producer) transcode(data []byte) (*Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	if p.cfg.Scale < 1 {
		b := img.Bounds()
		w := int(float64(b.Dx()) * p.cfg.Scale)
		h := int(float64(b.Dy()) * p.cfg.Scale)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	pixels, err := encodeImage(img, p.cfg.Format, p.cfg.Quality)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &Frame{
		Pixels:     pixels,
		Width:      b.Dx(),
		Height:     b.Dy(),
		Encoding:   p.cfg.Format,
		CapturedAt: time.Now(),
	}, nil
}
