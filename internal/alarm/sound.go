package alarm

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
)

// Sound is the audio surface the controller drives. Implementations must
// never block the caller; playback runs on the audio engine's own goroutine.
type Sound interface {
	// Play starts the clip from the beginning, restarting if needed.
	Play()
	// Stop halts playback. Safe to call when nothing is playing.
	Stop()
	// Active reports whether the clip is still audibly playing.
	Active() bool
	Close() error
}

// NewSound builds the best available sound for the configured WAV path. A
// missing or undecodable file degrades to the console bell rather than
// failing startup; a silent monitor is worse than an ugly one.
func NewSound(wavPath string, logger *slog.Logger) Sound {
	if logger == nil {
		logger = slog.Default()
	}
	if wavPath != "" {
		player, err := NewWAVPlayer(wavPath, logger)
		if err == nil {
			return player
		}
		logger.Warn("wav alarm unavailable, falling back to console bell", "path", wavPath, "err", err)
	}
	return &ConsoleBell{logger: logger}
}

// WAVPlayer plays a decoded WAV clip through the system mixer.
type WAVPlayer struct {
	streamer beep.StreamSeekCloser
	logger   *slog.Logger
}

func NewWAVPlayer(path string, logger *slog.Logger) (*WAVPlayer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}

	streamer, format, err := wav.Decode(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("decode wav: %w", err)
	}

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		streamer.Close()
		return nil, fmt.Errorf("init speaker: %w", err)
	}

	return &WAVPlayer{
		streamer: streamer,
		logger:   logger.With("component", "wav_player"),
	}, nil
}

func (p *WAVPlayer) Play() {
	speaker.Clear()
	if err := p.streamer.Seek(0); err != nil {
		p.logger.Warn("failed to rewind alarm clip", "err", err)
		return
	}
	speaker.Play(p.streamer)
}

func (p *WAVPlayer) Stop() {
	speaker.Clear()
	if err := p.streamer.Seek(0); err != nil {
		p.logger.Debug("failed to rewind alarm clip on stop", "err", err)
	}
}

func (p *WAVPlayer) Active() bool {
	speaker.Lock()
	defer speaker.Unlock()
	return p.streamer.Position() < p.streamer.Len()
}

func (p *WAVPlayer) Close() error {
	speaker.Clear()
	return p.streamer.Close()
}

// ConsoleBell is the fallback when no WAV clip can be played. It reports
// itself inactive immediately after each ring so the controller keeps
// re-triggering it while the condition holds.
type ConsoleBell struct {
	logger *slog.Logger
}

func (b *ConsoleBell) Play() {
	fmt.Fprint(os.Stderr, "\a")
}

func (b *ConsoleBell) Stop()        {}
func (b *ConsoleBell) Active() bool { return false }
func (b *ConsoleBell) Close() error { return nil }
