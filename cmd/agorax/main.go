package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/michaelRS2002/AgoraX-Video/internal/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "agorax",
	Short: "Many-to-many video calls over WebRTC",
	Long: `AgoraX connects everyone in a named room over direct peer-to-peer
audio/video links. The signaling server only brokers the handshake; media
flows directly between peers in a full mesh.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func main() {
	logging.Init()
	Execute()
}
