package malgo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/bawa-mj/vanya/pkg/audio"
)

// mark fires once playback has consumed the audio queued before it.
type mark struct {
	position int
	done     chan struct{}
}

type output struct {
	owner  *Devices
	device *malgo.Device

	mu      sync.Mutex
	pending []byte
	marks   []mark
	closed  bool
}

// openOutput initialises and starts a playback device in format f.
func (d *Devices) openOutput(ctx context.Context, f audio.Format) (audio.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("malgo: devices closed")
	}
	if d.play != nil {
		return nil, errors.New("malgo: playback already open")
	}

	out := &output{owner: d}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.SampleRate = uint32(f.SampleRate)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(f.Channels)
	cfg.Alsa.NoMMap = 1
	cfg.PeriodSizeInFrames = uint32(f.SampleRate / 20) // ~50ms
	cfg.Periods = 4
	bytesPerFrame := malgo.SampleSizeInBytes(malgo.FormatS16) * f.Channels

	dev, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			out.fill(pOutput, int(frameCount)*bytesPerFrame)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("malgo: init playback device: %w", classify(err))
	}
	out.device = dev
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("malgo: start playback device: %w", classify(err))
	}
	d.play = out
	return out, nil
}

// fill copies queued audio into the device buffer, pads with silence, and
// releases every mark the consumed audio has passed.
func (o *output) fill(dst []byte, need int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if need > len(dst) {
		need = len(dst)
	}
	n := copy(dst[:need], o.pending)
	o.pending = o.pending[n:]
	clear(dst[n:need])

	kept := o.marks[:0]
	for _, m := range o.marks {
		m.position -= n
		if m.position <= 0 {
			close(m.done)
			continue
		}
		kept = append(kept, m)
	}
	o.marks = kept
}

func (o *output) Write(pcm []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return errors.New("malgo: playback closed")
	}
	o.pending = append(o.pending, pcm...)
	return nil
}

func (o *output) Drain(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return errors.New("malgo: playback closed")
	}
	m := mark{position: len(o.pending), done: make(chan struct{})}
	if m.position == 0 {
		o.mu.Unlock()
		return nil
	}
	o.marks = append(o.marks, m)
	o.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *output) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.pending = nil
	for _, m := range o.marks {
		close(m.done)
	}
	o.marks = nil
	o.mu.Unlock()

	o.device.Uninit()

	o.owner.mu.Lock()
	if o.owner.play == o {
		o.owner.play = nil
	}
	o.owner.mu.Unlock()
	return nil
}
