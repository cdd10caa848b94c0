package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/michaelRS2002/AgoraX-Video/internal/config"
	"github.com/michaelRS2002/AgoraX-Video/internal/session"
)

var (
	flagJoinDomain   string
	flagJoinSTUN     string
	flagJoinTURN     string
	flagJoinTURNUser string
	flagJoinTURNPass string
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room and connect to every peer in it",
	Long: `Join a room on the signaling server and negotiate a direct media
link with every present and future member.

Examples:
  agorax join standup
  agorax join standup --domain call.example.com`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return joinRoom(args[0])
	},
}

func init() {
	joinCmd.Flags().StringVar(&flagJoinDomain, "domain", "", "signaling server domain")
	joinCmd.Flags().StringVar(&flagJoinSTUN, "stun", "", "STUN server URL")
	joinCmd.Flags().StringVar(&flagJoinTURN, "turn", "", "TURN server URL")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")
	rootCmd.AddCommand(joinCmd)
}

func joinRoom(roomID string) error {
	cfg, err := config.Load(config.Options{
		Domain:     flagJoinDomain,
		STUNServer: flagJoinSTUN,
		TURNServer: flagJoinTURN,
		TURNUser:   flagJoinTURNUser,
		TURNPass:   flagJoinTURNPass,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sess, err := session.New(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.OnRemoteTrack(func(peerID string, track *webrtc.TrackRemote) {
		fmt.Printf("receiving %s from %s\n", track.Kind(), peerID)
	})

	if err := sess.Join(roomID); err != nil {
		return err
	}
	fmt.Printf("joined room %q as %s\n", roomID, sess.ID())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	return nil
}
