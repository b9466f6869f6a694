package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"dsumotion/pkg/bridge/foxglove"
	"dsumotion/pkg/bridge/mqtt"
	"dsumotion/pkg/config"
	"dsumotion/pkg/engine"
	"dsumotion/pkg/gesture"
	"dsumotion/pkg/logger"
	"dsumotion/pkg/monitor"
	"dsumotion/pkg/protocol"
	"dsumotion/pkg/transport"
)

const (
	tickInterval = time.Second / 120
	mqttTimeout  = 5 * time.Second
)

type clientFlags struct {
	server    string
	pad       int
	jsonl     string
	tui       bool
	duration  time.Duration
	reconnect time.Duration
}

func newClientCmd(log *slog.Logger, level *slog.LevelVar, root *rootFlags) *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use: "client",

		Short: "Connect to a DSU server and report gestures",

		Long: `client connects to the configured DSU server, polls the pad for motion
data and runs the gesture recognizer on every sample.

Lifecycle changes, gestures and throws go to every sink enabled in the
config. With --tui the terminal monitor is shown and log output is dropped.
`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			file, exists, err := config.LoadOrDefault(root.configPath)
			if err != nil {
				return err
			}
			if root.logLevel == "" {
				if err := setLevel(level, file.Log.Level); err != nil {
					return err
				}
			}
			if !exists {
				log.Info("No config file, using defaults", "path", root.configPath)
			}
			if err := flags.apply(&file); err != nil {
				return err
			}

			ctx := cmd.Context()
			if flags.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, flags.duration)
				defer cancel()
			}

			if flags.tui {
				log = slog.New(slog.DiscardHandler)
			}
			return runClient(ctx, log, file, flags, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.server, "server", "", "DSU server host:port (default: from the config)")
	f.IntVar(&flags.pad, "pad", -1, "pad slot 0-3 (default: from the config)")
	f.StringVar(&flags.jsonl, "jsonl", "", "JSONL event log path, - for stdout (default: log.jsonl from the config)")
	f.BoolVar(&flags.tui, "tui", false, "show the terminal monitor")
	f.DurationVar(&flags.duration, "for", 0, "stop after this long (0 runs until interrupted)")
	f.DurationVar(&flags.reconnect, "reconnect", time.Second, "delay before reconnecting a lost link when dsu.auto_connect is set")

	return cmd
}

// apply folds command-line overrides into file and revalidates it.
func (f clientFlags) apply(file *config.File) error {
	if f.server != "" {
		host, port, err := net.SplitHostPort(f.server)
		if err != nil {
			return fmt.Errorf("invalid --server: %w", err)
		}
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid --server port %q: %w", port, err)
		}
		file.DSU.ServerAddress = host
		file.DSU.ServerPort = n
	}
	if f.pad >= 0 {
		file.DSU.PadID = f.pad
	}
	if f.jsonl != "" {
		file.Log.JSONL = f.jsonl
	}
	if f.tui && file.Log.JSONL == "-" {
		return errors.New("a JSONL log on stdout cannot be combined with --tui")
	}
	return file.Validate()
}

func runClient(ctx context.Context, log *slog.Logger, file config.File, flags clientFlags, stdout io.Writer) error {
	// The hub outlives ctx so the final lifecycle event still reaches the sinks.
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()

	hub := engine.NewHub()
	go hub.Run(hubCtx)

	publish := func(kind engine.EventKind, at time.Time, data any) {
		hub.TryPublish(engine.Event{Kind: kind, Timestamp: at, Data: data})
	}

	var sinks sync.WaitGroup
	closeSinks, err := startSinks(hubCtx, log, file, hub, &sinks, stdout)
	defer func() {
		stopHub()
		sinks.Wait()
		closeSinks()
	}()
	if err != nil {
		return err
	}

	cfg := file.DSU
	queue := engine.NewSampleQueue(cfg.SampleQueueSize)

	lost := make(chan struct{}, 1)
	session, err := transport.NewSession(&cfg, queue,
		transport.WithLogger(log),
		transport.WithLifecycleHandler(func(ev transport.Lifecycle) {
			publish(engine.KindLifecycle, ev.At, ev)
			if ev.State == transport.Disconnected && ev.Reason != transport.ReasonRequested {
				select {
				case lost <- struct{}{}:
				default:
				}
			}
		}),
	)
	if err != nil {
		return err
	}

	rec, err := gesture.NewRecognizer(&cfg,
		gesture.WithLogger(log),
		gesture.WithGestureHandler(func(ev gesture.Event) {
			publish(engine.KindGesture, time.Time{}, ev)
		}),
		gesture.WithThrowHandler(func(t gesture.Throw) {
			publish(engine.KindThrow, time.Time{}, t)
		}),
	)
	if err != nil {
		return err
	}
	consumer := engine.NewConsumer(queue, rec,
		engine.WithSampleHandler(func(s protocol.MotionSample) {
			publish(engine.KindSample, time.Time{}, s)
		}),
	)

	runCtx, cancel := context.WithCancel(ctx)
	var workers sync.WaitGroup
	defer func() {
		cancel()
		workers.Wait()
	}()
	workers.Add(2)
	go func() {
		defer workers.Done()
		consumer.Run(runCtx, tickInterval)
	}()
	go func() {
		defer workers.Done()
		reconnectLoop(runCtx, log, session, lost, flags.reconnect)
	}()

	log.Info("Connecting", "server", cfg.Endpoint(), "pad", cfg.PadID)
	if err := session.ConnectConfigured(runCtx); err != nil {
		return err
	}

	if flags.tui {
		title := fmt.Sprintf("dsumon %s pad %d", cfg.Endpoint(), cfg.PadID)
		if err := monitor.Run(runCtx, hub, monitor.New(title)); err != nil {
			session.Disconnect()
			return fmt.Errorf("monitor: %w", err)
		}
	} else {
		<-runCtx.Done()
	}

	cancel()
	workers.Wait()
	session.Disconnect()

	st := session.Stats()
	log.Info("Session closed",
		"datagrams", st.Datagrams,
		"samples", st.Samples,
		"dropped", st.Dropped,
		"polls", st.Polls,
		"evicted", queue.Dropped(),
	)
	return nil
}

// reconnectLoop reconnects after an implicit disconnect while the current
// config has AutoConnect set.
func reconnectLoop(ctx context.Context, log *slog.Logger, s *transport.Session, lost chan struct{}, delay time.Duration) {
	if delay <= 0 {
		delay = time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-lost:
		}
		if !s.Config().AutoConnect {
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		log.Info("Reconnecting", "server", s.Config().Endpoint())
		if err := s.ConnectConfigured(ctx); err != nil {
			log.Warn("Reconnect failed", "err", err)
			select {
			case lost <- struct{}{}:
			default:
			}
		}
	}
}

// startSinks subscribes every enabled sink to hub. The returned func
// releases what the sinks hold open, also on error; call it once wg is done.
func startSinks(ctx context.Context, log *slog.Logger, file config.File, hub *engine.Hub, wg *sync.WaitGroup, stdout io.Writer) (func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if path := file.Log.JSONL; path != "" {
		out := stdout
		if path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return closeAll, fmt.Errorf("failed to open JSONL log: %w", err)
			}
			closers = append(closers, func() { _ = f.Close() })
			out = f
		}
		w := logger.NewJSONLWriter(out, file.Log.Samples)
		sub := hub.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Consume(ctx, sub)
		}()
		log.Info("Writing JSONL events", "path", path, "samples", file.Log.Samples)
	}

	if file.Foxglove.Enabled {
		srv := foxglove.NewServer(foxglove.FromFile(file.Foxglove), hub, foxglove.WithLogger(log))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				log.Error("Foxglove bridge stopped", "err", err)
			}
		}()
	}

	if file.MQTT.Enabled {
		client, err := mqtt.Dial(file.MQTT, mqttTimeout, log.With("sys", "mqtt"))
		if err != nil {
			return closeAll, err
		}
		closers = append(closers, func() { client.Disconnect(250) })

		sink := mqtt.NewSink(client, file.MQTT.TopicPrefix, byte(file.MQTT.QoS),
			mqtt.WithLogger(log),
			mqtt.WithSamples(file.Log.Samples),
		)
		sub := hub.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Consume(ctx, sub)
		}()
	}

	return closeAll, nil
}
