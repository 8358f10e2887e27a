package gatewatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/retailscope/gatewatch/pkg/config"
	"github.com/retailscope/gatewatch/pkg/events"
	"github.com/retailscope/gatewatch/pkg/realtime"
	"github.com/retailscope/gatewatch/pkg/telemetry"
	"github.com/retailscope/gatewatch/pkg/tui"
	"github.com/spf13/cobra"
)

var (
	watchURL       string
	watchTransport string
	watchToken     string
	watchDashboard bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail the live event stream to stdout",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "", "stream URL (default: the local gateway)")
	watchCmd.Flags().StringVar(&watchTransport, "transport", "websocket", "transport: websocket or sse")
	watchCmd.Flags().StringVar(&watchToken, "token", "", "auth token")
	watchCmd.Flags().BoolVar(&watchDashboard, "dashboard", false, "open the interactive dashboard instead of tailing JSON")
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	endpoint := watchURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("ws://127.0.0.1:%d/ws", cfg.Gateway.Port)
	}
	token := watchToken
	if token == "" {
		token = cfg.Gateway.AuthToken
	}
	if token != "" {
		endpoint += "?token=" + token
	}

	logger := telemetry.SetupLogger("warn", "text", os.Stderr)
	ch, err := realtime.New(endpoint, realtime.Options{
		Transport: watchTransport,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if watchDashboard {
		ch.Connect()
		defer ch.Disconnect()
		return tui.Run(ch)
	}

	unsubState := ch.WatchState(func(change realtime.StateChange) {
		fmt.Fprintf(os.Stderr, "# %s -> %s\n", change.From, change.To)
	})
	defer unsubState()

	unsub := ch.Subscribe(func(env events.Envelope) {
		line, err := json.Marshal(env)
		if err != nil {
			return
		}
		fmt.Println(string(line))
	})
	defer unsub()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ch.Connect()
	<-ctx.Done()
	ch.Disconnect()
	return nil
}
