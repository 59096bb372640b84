// Package audio plays rendered voice streams on the system sound device.
package audio

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// DefaultBufferSize keeps output latency below the scheduler's dispatch lead
const DefaultBufferSize = 20 * time.Millisecond

// oto allows one context per process
var (
	ctxMu   sync.Mutex
	ctx     *oto.Context
	ctxRate int
)

func sharedContext(sampleRate int, buffer time.Duration) (*oto.Context, error) {
	ctxMu.Lock()
	defer ctxMu.Unlock()

	if ctx != nil {
		if ctxRate != sampleRate {
			return nil, fmt.Errorf("audio already open at %d Hz, asked for %d Hz", ctxRate, sampleRate)
		}
		return ctx, nil
	}

	c, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   buffer,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio at %d Hz: %w", sampleRate, err)
	}
	<-ready
	ctx, ctxRate = c, sampleRate
	return ctx, nil
}

// Output pulls mono float32 little-endian samples from a reader and plays
// them until closed
type Output struct {
	mu     sync.Mutex
	player *oto.Player
	log    *zap.Logger
}

// Open starts playing src. A zero buffer uses DefaultBufferSize.
func Open(sampleRate int, buffer time.Duration, src io.Reader, log *zap.Logger) (*Output, error) {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	c, err := sharedContext(sampleRate, buffer)
	if err != nil {
		return nil, err
	}

	o := &Output{player: c.NewPlayer(src), log: log.Named("audio")}
	o.player.Play()
	o.log.Info("output started", zap.Int("sample_rate", sampleRate), zap.Duration("buffer", buffer))
	return o, nil
}

// Playing reports whether the player is still pulling samples
func (o *Output) Playing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.player != nil && o.player.IsPlaying()
}

// Close stops the player. It is safe to call twice.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return nil
	}
	err := o.player.Close()
	o.player = nil
	o.log.Info("output closed")
	return err
}
