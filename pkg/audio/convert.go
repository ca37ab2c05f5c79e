package audio

import (
	"encoding/binary"
	"log/slog"
	"sync"
)

// Converter reshapes 16-bit PCM between formats. Multi-channel input is
// downmixed by averaging; sample rates are converted by linear interpolation.
// Create one per stream.
type Converter struct {
	From Format
	To   Format

	warnOnce sync.Once
}

// Convert returns pcm in the target format. Input already in the target format
// is returned unchanged. A trailing partial sample is dropped.
func (c *Converter) Convert(pcm []byte) []byte {
	if c.From == c.To {
		return pcm
	}
	c.warnOnce.Do(func() {
		slog.Debug("audio: converting stream",
			"from_rate", c.From.SampleRate, "from_channels", c.From.Channels,
			"to_rate", c.To.SampleRate, "to_channels", c.To.Channels)
	})

	samples := decode(pcm)
	if c.From.Channels > 1 {
		samples = downmix(samples, c.From.Channels)
	}
	samples = resample(samples, c.From.SampleRate, c.To.SampleRate)
	if c.To.Channels > 1 {
		samples = upmix(samples, c.To.Channels)
	}
	return encode(samples)
}

// ConvertStream wraps an input channel with a conversion goroutine. The
// returned channel closes when in closes. Frames that convert to nothing are
// dropped.
func ConvertStream(in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		var conv *Converter
		for frame := range in {
			from := Format{SampleRate: frame.SampleRate, Channels: frame.Channels}
			if conv == nil || conv.From != from {
				conv = &Converter{From: from, To: target}
			}
			data := conv.Convert(frame.Data)
			if len(data) == 0 {
				continue
			}
			out <- AudioFrame{
				Data:       data,
				SampleRate: target.SampleRate,
				Channels:   target.Channels,
				Timestamp:  frame.Timestamp,
			}
		}
	}()
	return out
}

func decode(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func encode(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// downmix averages interleaved channels into mono.
func downmix(samples []int16, channels int) []int16 {
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(samples[i*channels+ch])
		}
		out[i] = int16(sum / int32(channels))
	}
	return out
}

// upmix duplicates each mono sample across channels.
func upmix(samples []int16, channels int) []int16 {
	out := make([]int16, 0, len(samples)*channels)
	for _, s := range samples {
		for range channels {
			out = append(out, s)
		}
	}
	return out
}

// resample converts mono samples from src to dst Hz by linear interpolation.
func resample(samples []int16, src, dst int) []int16 {
	if src <= 0 || dst <= 0 || src == dst || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dst) / int64(src))
	out := make([]int16, n)
	step := float64(src) / float64(dst)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac)
	}
	return out
}
