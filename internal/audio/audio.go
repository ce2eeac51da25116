// Package audio plays short PCM clips through the system output device.
//
// The oto context is process-global and initialized once on first use.
// When no output device is available (headless boards, CI), Available
// reports false and callers fall back to timed sleeps so alarm timing
// still behaves the same.
package audio

import (
	"bytes"
	"context"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	logx "github.com/malcolmhoward/dawn-sub001/pkg/logx"
)

const (
	SampleRate     = 44100
	channels       = 1
	bytesPerSample = 2 // signed 16-bit LE
)

var (
	ctxOnce  sync.Once
	audioCtx *oto.Context
	ctxReady bool
)

func initContext(log logx.Logger) {
	ctxOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			log.Warn("audio context unavailable; falling back to silent playback", logx.Err(err))
			return
		}
		<-ready
		audioCtx = ctx
		ctxReady = true
		log.Debug("audio context initialized", logx.Int("sample_rate", SampleRate))
	})
}

type Engine struct {
	log     logx.Logger
	enabled bool
}

func NewEngine(enabled bool, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{log: log, enabled: enabled}
}

// Available reports whether real playback is possible. First call may block
// briefly while the device comes up.
func (e *Engine) Available() bool {
	if e == nil || !e.enabled {
		return false
	}
	initContext(e.log)
	return ctxReady
}

// Play writes one PCM clip to the device and blocks until it finishes or
// ctx is cancelled. Cancellation halts playback within ~10ms.
func (e *Engine) Play(ctx context.Context, pcm []byte) error {
	if !e.Available() {
		// Keep caller-side timing honest without a device.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Duration(len(pcm))):
			return nil
		}
	}

	p := audioCtx.NewPlayer(bytes.NewReader(pcm))
	defer p.Close()
	p.Play()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for p.IsPlaying() {
		select {
		case <-ctx.Done():
			p.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Duration returns the wall-clock length of a PCM clip.
func Duration(pcmLen int) time.Duration {
	samples := pcmLen / bytesPerSample
	return time.Duration(samples) * time.Second / SampleRate
}

// Tone synthesizes a sine tone as signed 16-bit LE mono PCM.
// volumePct scales amplitude, 1..100.
func Tone(freq float64, d time.Duration, volumePct int) []byte {
	if volumePct <= 0 {
		volumePct = 1
	}
	if volumePct > 100 {
		volumePct = 100
	}
	amp := 0.6 * float64(volumePct) / 100.0 * math.MaxInt16

	n := int(float64(SampleRate) * d.Seconds())
	out := make([]byte, n*bytesPerSample)
	for i := 0; i < n; i++ {
		// Short attack/release ramps avoid clicks at clip boundaries.
		env := 1.0
		const ramp = SampleRate / 100 // 10ms
		if i < ramp {
			env = float64(i) / ramp
		} else if n-i < ramp {
			env = float64(n-i) / ramp
		}
		v := int16(amp * env * math.Sin(2*math.Pi*freq*float64(i)/SampleRate))
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}

// Silence returns a PCM gap of the given length.
func Silence(d time.Duration) []byte {
	n := int(float64(SampleRate) * d.Seconds())
	return make([]byte, n*bytesPerSample)
}
