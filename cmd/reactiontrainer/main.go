package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/rescp17/reactionTrainer/pkg/flash"
	"github.com/rescp17/reactionTrainer/pkg/pair"
	"github.com/rescp17/reactionTrainer/pkg/qr"
	"github.com/rescp17/reactionTrainer/pkg/signaling"
	"github.com/rescp17/reactionTrainer/pkg/trainer"
	"github.com/rescp17/reactionTrainer/pkg/ui"
	rtc "github.com/rescp17/reactionTrainer/pkg/webrtc"
)

type options struct {
	stun    []string
	mdns    bool
	min     float64
	max     float64
	pulse   float64
	icon    string
	speech  bool
	logFile string
	debug   bool
}

func defaultOptions() options {
	cfg := flash.DefaultConfig()
	return options{
		mdns:    true,
		min:     cfg.MinIntervalSeconds,
		max:     cfg.MaxIntervalSeconds,
		pulse:   cfg.PulseSeconds,
		icon:    string(cfg.Icon),
		logFile: "debug.log",
	}
}

func (o options) flashConfig() (flash.Config, error) {
	icon, err := flash.ParseIcon(o.icon)
	if err != nil {
		return flash.Config{}, err
	}
	cfg := flash.DefaultConfig()
	cfg.Icon = icon
	// Widen first so that any valid pair of bounds can be applied in order.
	if cfg, err = cfg.WithMaxInterval(flash.MaxIntervalLimit); err != nil {
		return flash.Config{}, err
	}
	if cfg, err = cfg.WithMinInterval(o.min); err != nil {
		return flash.Config{}, fmt.Errorf("--min: %w", err)
	}
	if cfg, err = cfg.WithMaxInterval(o.max); err != nil {
		return flash.Config{}, fmt.Errorf("--max: %w", err)
	}
	if cfg, err = cfg.WithPulse(o.pulse); err != nil {
		return flash.Config{}, fmt.Errorf("--pulse: %w", err)
	}
	return cfg, nil
}

func (o options) webrtcConfig() rtc.Config {
	cfg := rtc.DefaultConfig()
	cfg.MulticastDNS = o.mdns
	if len(o.stun) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: o.stun}}
	}
	return cfg
}

// setupLogging sends slog, and through it the log package, to the log file
// because the terminal belongs to the TUI.
func setupLogging(path string, debug bool) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})))
	return f, nil
}

func newRootCmd() *cobra.Command {
	opts := defaultOptions()
	var logCloser io.Closer

	cmd := &cobra.Command{
		Use:   "reactionTrainer",
		Short: "A football reaction trainer for one or two devices",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			closer, err := setupLogging(opts.logFile, opts.debug)
			if err != nil {
				return err
			}
			logCloser = closer
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser == nil {
				return
			}
			if err := logCloser.Close(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed to close log file: %v\n", err)
			}
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.logFile, "log-file", opts.logFile, "File to write logs to")
	flags.BoolVar(&opts.debug, "debug", false, "Log at debug level")

	addFlashFlags := func(c *cobra.Command) {
		c.Flags().Float64Var(&opts.min, "min", opts.min, "Minimum seconds between flashes")
		c.Flags().Float64Var(&opts.max, "max", opts.max, "Maximum seconds between flashes")
		c.Flags().Float64Var(&opts.pulse, "pulse", opts.pulse, "Seconds a flash stays on")
		c.Flags().StringVar(&opts.icon, "icon", opts.icon, "Flash icon (ball or player)")
	}

	pairCmd := &cobra.Command{
		Use:   "pair",
		Short: "Pair with another device by trading QR codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.flashConfig()
			if err != nil {
				return err
			}
			controller := pair.NewApp(pair.Options{WebRTC: opts.webrtcConfig(), Flash: cfg})
			return runTUI(cmd.Context(), ui.Pair, controller)
		},
	}
	addFlashFlags(pairCmd)
	pairCmd.Flags().StringArrayVar(&opts.stun, "stun", nil, "STUN server URL (repeatable)")
	pairCmd.Flags().BoolVar(&opts.mdns, "mdns", opts.mdns, "Hide local addresses behind mDNS .local names")

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train alone with left and right cues",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.flashConfig()
			if err != nil {
				return err
			}
			controller := trainer.NewApp(
				trainer.Config{Flash: cfg, Speech: opts.speech},
				trainer.Options{Speaker: trainer.BellSpeaker{W: os.Stderr}},
			)
			return runTUI(cmd.Context(), ui.Train, controller)
		},
	}
	addFlashFlags(trainCmd)
	trainCmd.Flags().BoolVar(&opts.speech, "speech", false, "Announce the direction of every flash")

	decodeCmd := &cobra.Command{
		Use:   "decode <file|->",
		Short: "Print the session description in a QR image or pasted payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decode(args[0], cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(pairCmd, trainCmd, decodeCmd)
	return cmd
}

func runTUI(ctx context.Context, mode ui.Mode, controller ui.AppController) error {
	p := tea.NewProgram(ui.InitialModel(mode, controller), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("terminal UI failed: %w", err)
	}
	return nil
}

// decode reads a payload from an image file, or from in when source is "-".
func decode(source string, in io.Reader, out io.Writer) error {
	var text string
	var err error
	if source == "-" {
		raw, readErr := io.ReadAll(in)
		if readErr != nil {
			return fmt.Errorf("failed to read stdin: %w", readErr)
		}
		text, err = qr.ScanText(string(raw))
	} else {
		text, err = qr.Scan(source)
	}
	if err != nil {
		return err
	}

	payload, err := signaling.Decode(text)
	if err != nil {
		return err
	}
	candidates, err := payload.Candidates()
	if err != nil {
		return fmt.Errorf("failed to list candidates: %w", err)
	}

	fmt.Fprintf(out, "type: %s\n", payload.Type)
	fmt.Fprintf(out, "candidates: %d\n", len(candidates))
	for _, c := range candidates {
		fmt.Fprintf(out, "  %s\n", c.Candidate)
	}
	fmt.Fprintf(out, "\n%s\n", strings.TrimRight(payload.SDP, "\r\n"))
	return nil
}

func main() {
	if err := fang.Execute(context.Background(), newRootCmd()); err != nil {
		os.Exit(1)
	}
}
