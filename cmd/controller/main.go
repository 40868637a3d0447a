package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/omochice/toy-screen-stream/internal/config"
	"github.com/omochice/toy-screen-stream/internal/controller"
	"github.com/omochice/toy-screen-stream/internal/discovery"
	"github.com/omochice/toy-screen-stream/internal/display"
)

var (
	cfgFile   string
	port      int
	quality   int
	websocket bool
	announce  bool
	snapshot  string
)

var rootCmd = &cobra.Command{
	Use:           "controller",
	Short:         "Receive and display a remote agent's screen",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is ~/.screenstream/config.yaml)")
	flags.IntVarP(&port, "port", "p", 0, "control port to listen on")
	flags.IntVarP(&quality, "quality", "q", 0, "initial JPEG quality (1-100)")
	flags.BoolVar(&websocket, "websocket", false, "also accept WebSocket agents on the control port")
	flags.BoolVar(&announce, "announce", false, "broadcast discovery beacons")
	flags.StringVar(&snapshot, "snapshot", "", "write the last presented frame as PNG on exit")
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

	// Flags win over the file.
	if cmd.Flags().Changed("port") {
		cfg.ControlPort = port
	}
	if cmd.Flags().Changed("quality") {
		cfg.Quality = quality
	}
	if cmd.Flags().Changed("websocket") {
		cfg.WebSocket = websocket
	}
	if cmd.Flags().Changed("announce") {
		cfg.Discovery = announce
	}
	return cfg, cfg.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ctrl := controller.New(
		net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.ControlPort)),
		uint32(cfg.Quality),
		controller.WithWebSocket(cfg.WebSocket),
		controller.WithMaxMessagesPerTick(cfg.MaxMessagesPerTick),
	)
	if err := ctrl.Start(); err != nil {
		return err
	}
	defer ctrl.Stop()

	log.Printf("Controller listening on %s", ctrl.Addr())
	if cfg.WebSocket {
		log.Printf("  Accepting both TCP socket and WebSocket agents")
	}

	if cfg.Discovery {
		a := discovery.NewAnnouncer(discovery.BroadcastTarget(cfg.DiscoveryPort), discovery.Beacon{
			Kind:        discovery.KindAccessRequest,
			Instance:    uuid.New(),
			ControlPort: uint16(cfg.ControlPort),
			BulkPort:    uint16(cfg.BulkPort),
			Name:        cfg.Name,
		}, cfg.AnnounceInterval)
		go func() {
			if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Announcer stopped: %v", err)
			}
		}()
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		go func() {
			prompt(os.Stdin, os.Stdout, ctrl)
			cancel()
		}()
	}

	viewport := display.NewViewport(cfg.ViewportWidth, cfg.ViewportHeight)
	err = ctrl.Run(ctx, viewport, cfg.RenderInterval)

	s := ctrl.Stats()
	log.Printf("Shutting down: presented=%d decoded=%d stale=%d out_of_order=%d codec_errors=%d malformed=%d",
		s.Presented, s.Decoded, s.Stale, s.OutOfOrder, s.CodecErrors, s.Malformed)

	if snapshot != "" && viewport.Presented() > 0 {
		if err := writePNG(snapshot, viewport); err != nil {
			log.Printf("Failed to write snapshot: %v", err)
		}
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func writePNG(path string, v *display.Viewport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, v.Snapshot()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
