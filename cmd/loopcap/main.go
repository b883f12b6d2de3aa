package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Avicted/loopcap/internal/audio"
	"github.com/Avicted/loopcap/internal/capture"
	"github.com/Avicted/loopcap/internal/config"
	"github.com/Avicted/loopcap/internal/control"
	"github.com/Avicted/loopcap/internal/diag"
	"github.com/Avicted/loopcap/internal/ipc"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var version = "dev"

const requestTimeout = 5 * time.Second

var openStream = func(opts audio.LoopbackOptions) (audio.Stream, error) {
	s, err := audio.OpenLoopback(opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func main() {
	if err := run(); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cmd := newRootCmd(os.Stdin, os.Stderr)
	cmd.SetArgs(os.Args[1:])
	return cmd.Execute()
}

type rootFlags struct {
	cfgFile string
}

func newRootCmd(stdin io.Reader, status io.Writer) *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "loopcap [flags] <output.wav>",
		Short: "Record the default output device to a 16-bit PCM WAV file",
		Long: `loopcap records whatever the default render device is playing.

It prints READY on stderr once capture has started and stops when a byte
arrives on stdin, a stop command arrives on the control endpoint, or on
SIGINT/SIGTERM. It then prints DONE <bytes> and exits.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 || args[0] == "" {
				return &config.Error{Err: config.ErrOutputRequired}
			}
			return nil
		},
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return record(cmd, flags, args[0], stdin, status)
		},
	}
	cmd.SetErr(status)

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.cfgFile, "config", "", "config file (yaml, toml or json)")
	pf.String("control", "", fmt.Sprintf("control endpoint address; bare --control uses %s", ipc.DefaultAddr()))
	pf.Lookup("control").NoOptDefVal = ipc.DefaultAddr()

	f := cmd.Flags()
	f.Duration("poll-interval", config.Default().PollInterval, "interval between drain passes")
	f.Duration("buffer", config.Default().BufferDuration, "device buffering window")
	f.String("log-file", "", "append log output to this file")
	f.Duration("stats-interval", 0, "log capture and process stats at this interval (0 disables)")

	cmd.AddCommand(newStopCmd(flags), newStatusCmd(flags), newVersionCmd())
	return cmd
}

func loadConfig(cmd *cobra.Command, flags *rootFlags) (config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	return config.Load(v, flags.cfgFile)
}

func record(cmd *cobra.Command, flags *rootFlags, path string, stdin io.Reader, status io.Writer) error {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	closeLog, err := redirectLog(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	ctl := control.New()
	ctl.WatchContext(ctx)
	ctl.WatchInput(stdin)

	loopback := audio.LoopbackOptions{BufferDuration: cfg.BufferDuration, PeriodDuration: cfg.PollInterval}
	session := capture.NewSession(capture.Options{
		Path:         path,
		ID:           sessionID,
		OpenStream:   func() (audio.Stream, error) { return openStream(loopback) },
		Controller:   ctl,
		PollInterval: cfg.PollInterval,
		Status:       status,
	})

	if cfg.ControlAddr != "" {
		ln, err := ipc.Listen(cfg.ControlAddr)
		if err != nil {
			return fmt.Errorf("listen on control endpoint %s: %w", cfg.ControlAddr, err)
		}
		defer ln.Close()
		go func() {
			if err := ctl.Serve(ln, sessionStatus(sessionID, session)); err != nil {
				diag.Error("serve control endpoint", err)
			}
		}()
		log.Printf("control endpoint listening session=%s addr=%s", sessionID, cfg.ControlAddr)
	}

	statsCtx, cancelStats := context.WithCancel(context.Background())
	defer cancelStats()
	if cfg.StatsInterval > 0 {
		go newStatsReporter(sessionID, session).LogLoop(statsCtx, cfg.StatsInterval)
		go logProcessUsage(statsCtx, cfg.StatsInterval)
	}

	log.Printf("starting capture session=%s path=%s poll=%s buffer=%s", sessionID, path, cfg.PollInterval, cfg.BufferDuration)
	res, err := session.Run()
	cancelStats()
	if err != nil {
		diag.Error("capture", err)
		return err
	}
	log.Printf("capture summary session=%s duration=%s bytes=%d dropped=%d short=%d acquire_failures=%d", sessionID, res.Duration.Round(time.Millisecond), res.Bytes, res.DroppedPackets, res.ShortPackets, res.AcquireFailures)
	logProcessSnapshot()
	return nil
}

func sessionStatus(id string, session *capture.Session) control.StatusFunc {
	return func() ipc.Message {
		stats := session.Stats()
		return ipc.Message{
			Session: id,
			State:   session.State().String(),
			Bytes:   stats.Bytes(),
			Packets: stats.Packets(),
		}
	}
}

// redirectLog sends log output to path when set. The returned func restores
// stderr logging and closes the file.
func redirectLog(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	prev := log.Writer()
	log.SetOutput(f)
	return func() {
		log.SetOutput(prev)
		_ = f.Close()
	}, nil
}
