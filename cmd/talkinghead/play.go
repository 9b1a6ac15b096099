package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/talkinghead/internal/app"
	"github.com/normanking/talkinghead/internal/bus"
	"github.com/normanking/talkinghead/internal/feed"
	"github.com/normanking/talkinghead/internal/stream"
)

// replayGap separates repeats when --watch keeps the utterance looping.
const replayGap = time.Second

type playOptions struct {
	mute  bool
	serve bool
	addr  string
	watch bool
}

func newPlayCmd() *cobra.Command {
	opts := &playOptions{}
	cmd := &cobra.Command{
		Use:   "play [utterance]",
		Short: "Play an utterance and animate the face in sync",
		Long: `Play an utterance from the timing script. The utterance name selects
<audio_dir>/<name>.wav and the emotion overlay. Without a name the script's
default utterance is played.

With --watch the utterance repeats, picking up edits to the timing script
between runs, until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runPlay(cmd.Context(), cmd.OutOrStdout(), name, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.mute, "mute", false, "follow a virtual clock instead of the sound device")
	cmd.Flags().BoolVar(&opts.serve, "serve", false, "stream blend weights over WebSocket")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "stream listen address (overrides stream.addr)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "repeat and reload the timing script on change")
	return cmd
}

func runPlay(parent context.Context, out io.Writer, name string, opts *playOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.mute {
		cfg.Audio.Mute = true
	}
	if opts.serve {
		cfg.Stream.Enabled = true
	}
	if opts.addr != "" {
		cfg.Stream.Addr = opts.addr
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	log := logger.Component("cli")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg, logger.Component("lipsync"))
	defer a.Close()
	logEvents(a.Events(), logger.Component("events"))

	if _, err := a.LoadMesh(); err != nil {
		return err
	}
	if _, err := a.LoadScript(); err != nil {
		return err
	}

	if cfg.Stream.Enabled {
		srv := stream.NewServer(cfg.Stream.Addr, a.EnableStream(), a.Registry(), logger.Component("stream"))
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Weight stream server failed")
				stop()
			}
		}()
	}

	if opts.watch {
		w, err := feed.NewWatcher(cfg.Assets.TimingFile, a.Reload, logger.Component("feed"))
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Timing watcher stopped")
			}
		}()
	}

	for {
		utterance, table, err := a.Script().Utterance(name)
		if err != nil {
			return err
		}
		transport, err := a.Transport(utterance, table)
		if err != nil {
			return err
		}

		log.Info().
			Str("utterance", utterance).
			Int("windows", len(table)).
			Dur("duration", transport.Duration()).
			Msg("Playing")

		if err := a.Play(ctx, utterance, table, transport); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if !opts.watch {
			fmt.Fprintln(out, successStyle.Render("✓ "+utterance+" finished"))
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(replayGap):
		}
	}
}

// logEvents mirrors bus traffic into the debug log.
func logEvents(events *bus.EventBus, log zerolog.Logger) {
	events.SubscribeMultiple([]bus.EventType{
		bus.EventTypeUtteranceStarted,
		bus.EventTypePlaybackStarted,
		bus.EventTypePlaybackEnded,
		bus.EventTypeStateChanged,
		bus.EventTypeWindowActivated,
		bus.EventTypeNeutral,
		bus.EventTypeStopped,
		bus.EventTypeTimingReloaded,
		bus.EventTypeClientConnected,
		bus.EventTypeClientDisconnected,
	}, func(e bus.Event) {
		log.Debug().Str("event", string(e.Type)).Fields(e.Data).Msg("Event")
	})
}
