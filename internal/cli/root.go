// Package cli implements the minimeet commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Prince200510/mini-meet-prince/internal/config"
	"github.com/Prince200510/mini-meet-prince/internal/session"
	"github.com/Prince200510/mini-meet-prince/internal/ui"
	"github.com/Prince200510/mini-meet-prince/internal/version"
)

var (
	flagSignalingURL string
	flagSTUN         string
	flagTURN         string
	flagTURNUser     string
	flagTURNPass     string
	flagRelay        bool
	flagName         string
	flagWidth        int
	flagHeight       int
	flagAudioOnly    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "minimeet",
	Short:   "Peer-to-peer calls with a shared whiteboard",
	Long:    `minimeet connects two people through a small relay server, then moves audio, video, chat and a collaborative whiteboard onto a direct WebRTC connection. When the direct channel is unavailable, chat and whiteboard traffic falls back to the relay.`,
	Version: version.String(),
}

// Execute runs the root command. It is called once by main.main.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		SignalingURL: flagSignalingURL,
		STUNServer:   flagSTUN,
		TURNServer:   flagTURN,
		TURNUser:     flagTURNUser,
		TURNPass:     flagTURNPass,
		ForceRelay:   flagRelay,
		Width:        flagWidth,
		Height:       flagHeight,
		Name:         flagName,
		AudioOnly:    flagAudioOnly,
	})
	if err != nil {
		return nil, session.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagSignalingURL, "signaling-url", "", "Relay websocket URL (default "+config.DefaultSignalingURL+")")
	flags.StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN servers, comma separated")
	flags.StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	flags.StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	flags.StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	flags.BoolVarP(&flagRelay, "force-relay", "r", false, "Only use TURN relay candidates")
	flags.StringVarP(&flagName, "name", "n", "", "Display name shown next to your chat messages")
	flags.IntVar(&flagWidth, "width", 0, "Whiteboard width in pixels")
	flags.IntVar(&flagHeight, "height", 0, "Whiteboard height in pixels")
	flags.BoolVar(&flagAudioOnly, "audio-only", false, "Do not send video")
}
