package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omochice/toy-screen-stream/internal/agent"
	"github.com/omochice/toy-screen-stream/internal/capture"
	"github.com/omochice/toy-screen-stream/internal/config"
	"github.com/omochice/toy-screen-stream/internal/discovery"
)

var (
	cfgFile   string
	address   string
	quality   int
	websocket bool
	discover  bool
	pattern   bool
	display   int
)

var rootCmd = &cobra.Command{
	Use:           "agent",
	Short:         "Capture this machine's screen and stream it to a controller",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ~/.screenstream/config.yaml)")
	flags.StringVarP(&address, "address", "a", "", "controller address (host or host:port)")
	flags.IntVarP(&quality, "quality", "q", 0, "initial JPEG quality (1-100)")
	flags.BoolVar(&websocket, "websocket", false, "connect over WebSocket")
	flags.BoolVar(&discover, "discover", false, "find the controller through discovery beacons")
	flags.BoolVar(&pattern, "pattern", false, "stream a synthetic test pattern instead of the screen")
	flags.IntVar(&display, "display", 0, "index of the display to capture")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("address") {
		host, p, err := net.SplitHostPort(address)
		if err != nil {
			host = address
		} else if cfg.ControlPort, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("bad port in %q: %w", address, err)
		}
		cfg.Address = host
		cfg.Discovery = false
	}
	if cmd.Flags().Changed("quality") {
		cfg.Quality = quality
	}
	if cmd.Flags().Changed("websocket") {
		cfg.WebSocket = websocket
	}
	if cmd.Flags().Changed("discover") {
		cfg.Discovery = discover
	}
	if cmd.Flags().Changed("pattern") {
		cfg.Pattern = pattern
	}
	if cmd.Flags().Changed("display") {
		cfg.Display = display
	}
	return cfg, cfg.Validate()
}

func newSource(cfg *config.Config) (capture.Source, error) {
	if cfg.Pattern {
		return capture.NewPattern(cfg.ViewportWidth, cfg.ViewportHeight), nil
	}
	screen, err := capture.NewScreen(cfg.Display)
	if err != nil {
		return nil, err
	}
	return screen, nil
}

// dialable prefixes ws:// when the agent speaks WebSocket.
func dialable(t agent.Target, ws bool) agent.Target {
	if !ws {
		return t
	}
	return func() (string, bool) {
		addr, ok := t()
		if !ok || strings.HasPrefix(addr, "ws://") {
			return addr, ok
		}
		return "ws://" + addr, true
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	target := agent.Static(cfg.ControlAddress())
	if cfg.Discovery {
		w := discovery.NewWatcher(
			net.JoinHostPort("", strconv.Itoa(cfg.DiscoveryPort)),
			cfg.KeepaliveTimeout,
			func(c discovery.Controller, present bool) {
				if present {
					log.Printf("Controller %s (%s) at %s", c.Name, c.Instance, c.Addr)
				} else {
					log.Printf("Controller %s went silent", c.Instance)
				}
			},
		)
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()
		log.Printf("Waiting for discovery beacons on %s", w.Addr())
		target = w.Target
	}

	a := agent.New(source, uint32(cfg.Quality),
		agent.WithCaptureInterval(cfg.CaptureInterval),
		agent.WithReconnectDelay(cfg.ReconnectDelay),
	)

	err = a.Run(ctx, dialable(target, cfg.WebSocket))

	s := a.Stats()
	log.Printf("Agent stopped: frames=%d metadata=%d commands=%d", s.Frames, s.Metadata, s.Commands)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
