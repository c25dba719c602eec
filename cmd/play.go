package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voicenotehq/voicenote/internal/encode"
	"github.com/voicenotehq/voicenote/internal/playback"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play [wav-file]",
	Short: "Play a WAV clip through the speaker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read clip: %w", err)
		}

		ctrl := playback.NewController(playback.NewBeepPlayer())
		ctrl.SetArtifact(encode.NewArtifact(data))

		if err := ctrl.Toggle(); err != nil {
			return fmt.Errorf("failed to start playback: %w", err)
		}
		slog.Info("Playing", "file", args[0], "bytes", len(data))

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-sigChan:
				slog.Info("Playback interrupted")
				return nil
			case <-ticker.C:
				if ctrl.State() == playback.StateStopped {
					return nil
				}
			}
		}
	},
}
