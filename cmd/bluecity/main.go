package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ritzau/bluecity/pkg/config"
	"github.com/ritzau/bluecity/pkg/investigation"
	"github.com/ritzau/bluecity/pkg/logging"
	"github.com/ritzau/bluecity/pkg/output"
	"github.com/ritzau/bluecity/pkg/persistence"
	"github.com/ritzau/bluecity/pkg/pubsub"
	"github.com/ritzau/bluecity/pkg/share"
	"github.com/ritzau/bluecity/pkg/simulation"
	"github.com/ritzau/bluecity/pkg/web"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const usage = `Usage: bluecity [flags] [serve|status|reset]

Commands:
  serve    run the dashboard API (default)
  status   print the saved projects and investigations
  reset    forget every saved investigation

Flags:
`

func main() {
	// Parse command-line flags
	flags := pflag.NewFlagSet("bluecity", pflag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	flags.String("config", "", "Path to a TOML config file (default ./bluecity.toml)")
	flags.Int("port", 8080, "Port for the web server")
	flags.String("storage.backend", config.BackendFile, "Where investigations are saved: file, sqlite or memory")
	flags.String("storage.path", "", "Directory (file) or database path (sqlite)")
	flags.Bool("storage.watch", true, "Reload when another process replaces the saved state")
	flags.String("share.base_url", "", "Origin and path share links point at")
	flags.String("simulation.url", "", "Routing backend base URL")
	flags.String("verbosity", "", "Log level: trace, debug, info, warn, error")
	flags.CountP("verbose", "v", "Increase log verbosity (repeatable)")
	flags.Bool("json-logs", false, "Log JSON instead of the compact console format")
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logging.SetLevel(logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt))
	logging.SetJSONOutput(cfg.JSONLogs)

	command := "serve"
	if flags.NArg() > 0 {
		command = flags.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		err = serve(ctx, cfg)
	case "status":
		err = status(cfg)
	case "reset":
		err = reset(cfg)
	default:
		flags.Usage()
		os.Exit(2)
	}
	if err != nil {
		logging.Fatal("command failed", "command", command, "error", err)
	}
}

// storage is the configured slot. file is set only for the file backend,
// the one backend able to report external replacements.
type storage struct {
	slot  persistence.Slot
	file  *persistence.FileSlot
	close func() error
}

func openStorage(cfg *config.Config) (*storage, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return &storage{slot: persistence.NewMemorySlot(), close: func() error { return nil }}, nil

	case config.BackendSQLite:
		path := cfg.Storage.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "bluecity.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		slot, err := persistence.NewSQLiteSlot(path)
		if err != nil {
			return nil, err
		}
		return &storage{slot: slot, close: slot.Close}, nil

	default:
		slot, err := persistence.NewFileSlot(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		return &storage{slot: slot, file: slot, close: func() error { return nil }}, nil
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer st.close()

	broker := pubsub.NewBroker()
	defer broker.Close()
	// New subscribers get the latest state event only
	broker.ConfigureTopic(pubsub.TopicInvestigations, pubsub.TopicConfig{BufferSize: 10})
	broker.ConfigureTopic(pubsub.TopicTraffic, pubsub.TopicConfig{BufferSize: 10})

	adapter := persistence.NewAdapter(st.slot, cfg.Storage.Key)
	store := investigation.NewStore(investigation.Options{
		Publisher: broker,
		Writer:    persistence.NewWriter(adapter, cfg.Storage.Debounce),
		Codec:     share.NewCodec(cfg.Share.BaseURL, cfg.Share.Param),
	})
	defer store.Close()
	store.Init("")

	var simulator web.Simulator
	if cfg.Simulation.URL != "" {
		client := simulation.NewClient(cfg.Simulation.URL, cfg.Simulation.Timeout)
		simulator = simulation.NewRunner(client, cfg.Simulation.Pairs)
		logging.Info("simulation backend configured", "url", client.BaseURL())
	}
	server := web.NewServer(store, broker, simulator)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx, fmt.Sprintf(":%d", cfg.Port))
	})
	if st.file != nil && cfg.Storage.Watch {
		changes, err := st.file.Watch(ctx, adapter.Key())
		if err != nil {
			return fmt.Errorf("watching storage: %w", err)
		}
		g.Go(func() error {
			for range changes {
				state, changed := adapter.ReloadExternal()
				if !changed {
					continue
				}
				server.Locked(func(store *investigation.Store) {
					store.Reload(state)
				})
			}
			return nil
		})
	}

	err = g.Wait()
	store.Flush()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func status(cfg *config.Config) error {
	st, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer st.close()

	state := persistence.NewAdapter(st.slot, cfg.Storage.Key).Load()
	output.PrintStatus(os.Stdout, describeSlot(cfg), state)
	return nil
}

func reset(cfg *config.Config) error {
	st, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer st.close()

	persistence.NewAdapter(st.slot, cfg.Storage.Key).Clear()
	fmt.Printf("Cleared saved state in %s\n", describeSlot(cfg))
	return nil
}

func describeSlot(cfg *config.Config) string {
	if cfg.Storage.Backend == config.BackendMemory {
		return "memory"
	}
	return fmt.Sprintf("%s (%s)", cfg.Storage.Path, cfg.Storage.Backend)
}
