package cmd

import (
	"fmt"

	"github.com/voicenotehq/voicenote/internal/server"
	"github.com/voicenotehq/voicenote/internal/session"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server hosting the browser widget",
	Long: `Start the VoiceNote web server. The browser page shows the recording
widget: a record button, the live amplitude bars, and a play button for
the finished clip. State changes and visualiser frames are pushed to the
page over a server-sent event stream.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.Server.Port = port
		}

		srv := server.New(cfg, session.Options{})
		if err := srv.Start(); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "port for the web server (overrides config)")
}
