package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Prince200510/mini-meet-prince/internal/logging"
	"github.com/Prince200510/mini-meet-prince/internal/ui"
)

const (
	mediaTimeout = 10 * time.Second
	roomTimeout  = 10 * time.Second
)

var joinCmd = &cobra.Command{
	Use:     "join <room>",
	Aliases: []string{"j"},
	Short:   "Join an existing room",
	Long: `Join a room by id and wait for the other participant.

Examples:
  minimeet join brave-otter
  minimeet join --name ada --audio-only brave-otter
  minimeet join --signaling-url wss://meet.example.com/ws brave-otter`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMeeting(args[0])
	},
}

var createCmd = &cobra.Command{
	Use:     "create",
	Aliases: []string{"c"},
	Short:   "Create a room and wait for someone to join",
	Long: `Ask the relay for a fresh room id, join it and print the id to share.

Examples:
  minimeet create
  minimeet create --force-relay --turn turn.example.com -u user -p secret`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMeeting("")
	},
}

// runMeeting joins room, or creates one when room is empty, and runs the
// interactive view until the user leaves.
func runMeeting(room string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.Init(logging.Options{DefaultLevel: slog.LevelError})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sp := ui.NewConnectionSpinner("Connecting to relay...")
	sp.Start()
	m, err := Open(ctx, cfg, logger)
	if err != nil {
		sp.Error("Could not reach the relay")
		return err
	}
	sp.Success("Connected to " + cfg.SignalingURL)

	closed := false
	defer func() {
		if !closed {
			m.Close()
		}
	}()

	sp = ui.NewWaitingSpinner("Starting camera and microphone...")
	sp.Start()
	if err := m.StartMedia(ctx, mediaTimeout); err != nil {
		sp.Error("Continuing without local media: " + err.Error())
	} else {
		sp.Success("Local media ready")
	}

	created := room == ""
	if created {
		sp = ui.NewWaitingSpinner("Creating room...")
		sp.Start()
		room, err = m.Create(ctx, roomTimeout)
		if err != nil {
			sp.Error("Could not create a room")
			return err
		}
		sp.Stop()
	} else if err := m.Join(room); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(ui.RoomBanner{Room: room, Name: cfg.Name, Relay: cfg.SignalingURL, Created: created}.View())
	fmt.Println()

	view := ui.NewMeetUI(room, cfg.Name, newCommander(ctx, m).Execute)
	m.Attach(view)
	view.Start()

	select {
	case <-view.Done():
	case <-m.Done():
	case <-ctx.Done():
	}
	view.Stop()

	summary := m.Summary()
	m.Close()
	closed = true

	if err := view.Err(); err != nil {
		return fmt.Errorf("terminal view: %w", err)
	}
	ui.PrintSessionSummary(os.Stdout, summary)
	return nil
}

func init() {
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(createCmd)
}
