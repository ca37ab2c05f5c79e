// Package malgo implements audio.Source and audio.Sink on the local sound
// devices through miniaudio (github.com/gen2brain/malgo).
//
// A single [Devices] value owns the miniaudio context. Capture and playback
// devices are initialised per Open call and torn down on Close, so the
// microphone is only held while a capture is live.
package malgo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/bawa-mj/vanya/pkg/audio"
)

// Devices owns a miniaudio context and opens capture and playback devices on it.
type Devices struct {
	ctx *malgo.AllocatedContext

	mu      sync.Mutex
	closed  bool
	capture *input
	play    *output
}

// Microphone is the audio.Source view of Devices.
type Microphone struct{ d *Devices }

// Speaker is the audio.Sink view of Devices.
type Speaker struct{ d *Devices }

// Compile-time interface assertions.
var (
	_ audio.Source = Microphone{}
	_ audio.Sink   = Speaker{}
)

// Microphone returns the capture side of d.
func (d *Devices) Microphone() Microphone { return Microphone{d: d} }

// Speaker returns the playback side of d.
func (d *Devices) Speaker() Speaker { return Speaker{d: d} }

// Open implements audio.Source.
func (m Microphone) Open(ctx context.Context, f audio.Format) (audio.Input, error) {
	return m.d.openInput(ctx, f)
}

// Open implements audio.Sink.
func (s Speaker) Open(ctx context.Context, f audio.Format) (audio.Output, error) {
	return s.d.openOutput(ctx, f)
}

// New initialises the miniaudio context. Backend log lines go to logger at
// debug level; a nil logger uses slog.Default().
func New(logger *slog.Logger) (*Devices, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Debug("malgo", "msg", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", classify(err))
	}
	return &Devices{ctx: mctx}, nil
}

// Close releases any open devices and the miniaudio context.
func (d *Devices) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	in, out := d.capture, d.play
	d.mu.Unlock()

	if in != nil {
		_ = in.Close()
	}
	if out != nil {
		_ = out.Close()
	}
	_ = d.ctx.Uninit()
	d.ctx.Free()
	return nil
}

// classify maps backend errors onto the audio sentinels. miniaudio reports
// access problems as result codes whose text is all that reaches Go.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "denied"), strings.Contains(msg, "permission"):
		return errors.Join(audio.ErrPermissionDenied, err)
	case strings.Contains(msg, "no device"), strings.Contains(msg, "does not exist"):
		return errors.Join(audio.ErrNoDevice, err)
	default:
		return err
	}
}

// ---- capture ----

type input struct {
	owner  *Devices
	device *malgo.Device
	frames chan audio.AudioFrame
	format audio.Format
	start  time.Time

	mu     sync.Mutex
	closed bool
}

// openInput initialises and starts a capture device in format f.
func (d *Devices) openInput(ctx context.Context, f audio.Format) (audio.Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("malgo: devices closed")
	}
	if d.capture != nil {
		return nil, errors.New("malgo: capture already open")
	}

	in := &input{
		owner:  d,
		frames: make(chan audio.AudioFrame, 64),
		format: f,
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = uint32(f.Channels)
	cfg.Alsa.NoMMap = 1
	cfg.PerformanceProfile = malgo.LowLatency
	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * f.Channels

	dev, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if n == 0 || len(pInput) < n {
				return
			}
			in.push(pInput[:n])
		},
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init capture device: %w", classify(err))
	}
	in.device = dev
	in.start = time.Now()
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("malgo: start capture device: %w", classify(err))
	}
	d.capture = in
	return in, nil
}

// push copies one callback buffer onto the frame channel, dropping it when the
// consumer has fallen behind.
func (in *input) push(pcm []byte) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	data := make([]byte, len(pcm))
	copy(data, pcm)
	select {
	case in.frames <- audio.AudioFrame{
		Data:       data,
		SampleRate: in.format.SampleRate,
		Channels:   in.format.Channels,
		Timestamp:  time.Since(in.start),
	}:
	default:
	}
}

func (in *input) Frames() <-chan audio.AudioFrame { return in.frames }

func (in *input) Close() error {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return nil
	}
	in.closed = true
	in.mu.Unlock()

	// Uninit stops the device and waits for the callback to return.
	in.device.Uninit()
	close(in.frames)

	in.owner.mu.Lock()
	if in.owner.capture == in {
		in.owner.capture = nil
	}
	in.owner.mu.Unlock()
	return nil
}
