package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/izgzhen/synthctl/pkg/serial"
)

func newWatchCommand() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <spec.json>",
		Short: "Re-validate a specification on every save",
		Long: `Watch a specification file and re-run schema validation every time
it changes on disk, debouncing rapid successive writes the way an
editor's save does. Exits when the context is cancelled (Ctrl-C) or the
watched file is removed.`,
		Example: `  # Watch a spec file, revalidating on every save
  synthctl watch spec.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			return watchSpec(cmd.Context(), path, debounce)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "delay after a write before revalidating")
	return cmd
}

func watchSpec(ctx context.Context, path string, debounce time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("watching specification for changes")
	revalidate(path)

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping watch")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Remove != 0 {
				log.Info().Str("path", path).Msg("watched specification removed, stopping watch")
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() { revalidate(path) })

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("watcher error")
		}
	}
}

func revalidate(path string) {
	data, err := readSpecFile(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to read specification")
		return
	}
	if err := serial.ValidateSchema(data); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("specification failed schema validation")
		return
	}
	if _, err := serial.Decode(data); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("specification failed to decode")
		return
	}
	log.Info().Str("path", path).Msg("specification is valid")
}
