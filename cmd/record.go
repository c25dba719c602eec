package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/voicenotehq/voicenote/internal/playback"
	"github.com/voicenotehq/voicenote/internal/session"
	"github.com/voicenotehq/voicenote/internal/spectrum"

	"github.com/spf13/cobra"
)

var playAfterRecord bool

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a voice message from the microphone",
	Long: `Record a voice message from the default microphone until interrupted.
A live amplitude meter is drawn in the terminal while recording.
Press Ctrl+C to stop; with --play the clip is played back immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess := session.New(cfg, session.Options{
			OnFrame: terminalMeter(cfg.Visual.MinHeight, cfg.Visual.MaxHeight),
		})

		ctx := context.Background()
		sess.ToggleRecording(ctx)
		if sess.State() != session.StateRecording {
			return fmt.Errorf("recording did not start")
		}

		slog.Info("Recording... Press Ctrl+C to stop")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		fmt.Fprintln(os.Stderr)

		slog.Info("Stopping recording...")
		sess.ToggleRecording(ctx)

		artifact := sess.Artifact()
		if artifact == nil || artifact.Empty() {
			return fmt.Errorf("no audio was captured")
		}
		slog.Info("Recording finished", "bytes", artifact.Size(), "mime", artifact.MIME())

		if playAfterRecord {
			slog.Info("Playing back...")
			sess.TogglePlayback()
			waitForPlayback(sess, sigChan)
		}

		return nil
	},
}

func init() {
	recordCmd.Flags().BoolVar(&playAfterRecord, "play", false, "play the clip back after recording stops")
}

// terminalMeter renders a visualiser frame as one line of block glyphs,
// redrawn in place.
func terminalMeter(minHeight, maxHeight float64) func(spectrum.Frame) {
	ramp := []rune(" ▁▂▃▄▅▆▇█")
	span := maxHeight - minHeight
	return func(frame spectrum.Frame) {
		var b strings.Builder
		b.WriteString("\r  ")
		for _, h := range frame {
			idx := int((h - minHeight) / span * float64(len(ramp)-1))
			if idx < 0 {
				idx = 0
			} else if idx >= len(ramp) {
				idx = len(ramp) - 1
			}
			b.WriteRune(ramp[idx])
		}
		fmt.Fprint(os.Stderr, b.String())
	}
}

// waitForPlayback blocks until the clip finishes or the user interrupts.
func waitForPlayback(sess *session.Session, sigChan chan os.Signal) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigChan:
			slog.Info("Playback interrupted")
			return
		case <-ticker.C:
			if sess.PlaybackState() == playback.StateStopped {
				return
			}
		}
	}
}
