// Package chime plays a short audible cue when an unattended run finishes,
// so an operator standing at the machine knows the outcome without a screen.
package chime

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"github.com/distantorigin/field-updater/internal/logging"
)

const sampleRate = beep.SampleRate(44100)

var (
	speakerOnce  sync.Once
	speakerReady bool
	quiet        bool
)

// note is one tone of a cue; a zero frequency is a rest
type note struct {
	freq     float64
	duration time.Duration
}

var (
	successCue = []note{{523.25, 120 * time.Millisecond}, {659.25, 120 * time.Millisecond}, {783.99, 240 * time.Millisecond}}
	failureCue = []note{{392.00, 250 * time.Millisecond}, {0, 80 * time.Millisecond}, {261.63, 400 * time.Millisecond}}
)

// Init configures the chime package
func Init(quietMode bool) {
	quiet = quietMode
}

func ensureSpeakerInitialized() bool {
	speakerOnce.Do(func() {
		if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
			// Headless devices often have no sound card.
			logging.L("chime").WithError(err).Debug("audio output unavailable")
			return
		}
		speakerReady = true
	})
	return speakerReady
}

// cue assembles the tone sequence for an outcome at volumeDB
func cue(success bool, volumeDB float64) (beep.Streamer, error) {
	notes := failureCue
	if success {
		notes = successCue
	}

	parts := make([]beep.Streamer, 0, len(notes))
	for _, n := range notes {
		samples := sampleRate.N(n.duration)
		if n.freq == 0 {
			parts = append(parts, beep.Silence(samples))
			continue
		}
		tone, err := generators.SineTone(sampleRate, n.freq)
		if err != nil {
			return nil, err
		}
		parts = append(parts, beep.Take(samples, tone))
	}

	return &effects.Volume{
		Streamer: beep.Seq(parts...),
		Base:     2,
		Volume:   volumeDB,
	}, nil
}

// Play sounds the success or failure cue and blocks until it finishes.
// Missing audio hardware is not an error.
func Play(success bool) {
	if quiet {
		return
	}

	streamer, err := cue(success, -1)
	if err != nil {
		logging.L("chime").WithError(err).Debug("failed to build cue")
		return
	}
	if !ensureSpeakerInitialized() {
		return
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		speaker.Clear()
	}
}
