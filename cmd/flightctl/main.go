// flightctl inspects and replays flight recorder sessions from a storage
// root written by an embedding gateway process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/polyglot-flight-recorder/internal/config"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/domain"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/recordstore/sqlindex"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/replay"
	"github.com/tjfontaine/polyglot-flight-recorder/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "replay":
		runReplay(logger, os.Args[2:])
	case "sessions":
		runSessions(logger, os.Args[2:])
	case "summary":
		runSummary(logger, os.Args[2:])
	case "lineage":
		runLineage(logger, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: flightctl <replay|sessions|summary|lineage> [flags]")
	fmt.Fprintln(os.Stderr, "  replay   -session <id> [-scenario name] [-preserve-timing] [-speed x] [-from n] [-config file]")
	fmt.Fprintln(os.Stderr, "  sessions [-config file]")
	fmt.Fprintln(os.Stderr, "  summary  -session <id> [-config file]")
	fmt.Fprintln(os.Stderr, "  lineage  -trace <id> [-config file]")
}

func runReplay(logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	sessionID := fs.String("session", "", "session id to replay")
	scenario := fs.String("scenario", "", "scenario name (default: first match)")
	preserve := fs.Bool("preserve-timing", false, "replay recorded inter-event gaps")
	speed := fs.Float64("speed", 0, "playback speed multiplier")
	from := fs.Int("from", 0, "timeline step to start from")
	cfgPath := fs.String("config", "", "config file path")
	fs.Parse(args)

	if *sessionID == "" {
		log.Fatal("replay: -session is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := telemetry.InitTracer("flightctl", logger)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store := recordstore.New(cfg.Storage.Root, logger)

	opts := []replay.EngineOption{replay.WithLogger(logger)}
	if cfg.Storage.Index {
		indexPath := filepath.Join(store.NamespacePath(recordstore.NamespaceIndexes), "records.db")
		if index, err := sqlindex.Open(indexPath); err == nil {
			defer index.Close()
			opts = append(opts, replay.WithIndex(index))
		} else {
			logger.Warn("record index unavailable", slog.String("error", err.Error()))
		}
	}

	engine := replay.NewEngine(store, opts...)
	engine.AddSink(replay.EventSinkFunc(func(ctx context.Context, ev *domain.ReplayEvent) error {
		logger.Info("replay event", slog.String("type", string(ev.Type)))
		return nil
	}))
	engine.AddSink(replay.NewStoreSink(store))

	// A second signal falls through to the default handler and kills the
	// process; the first one stops the replay cleanly.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		signal.Stop(sigCh)
		engine.Stop()
	}()

	replaySpeed := *speed
	if replaySpeed == 0 {
		replaySpeed = cfg.Replay.Speed
	}

	// an explicit flag wins over the configured default, in either direction
	preserveTiming := cfg.Replay.PreserveTiming
	if flagProvided(fs, "preserve-timing") {
		preserveTiming = *preserve
	}

	result, err := engine.StartDynamicReplay(context.Background(), *sessionID, domain.ReplayOptions{
		ScenarioName:      *scenario,
		PreserveTimestamp: preserveTiming,
		ReplayFromStep:    *from,
		Speed:             replaySpeed,
	})
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	printJSON(result)
}

func runSessions(logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	cfgPath := fs.String("config", "", "config file path")
	fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store := recordstore.New(cfg.Storage.Root, logger)
	paths, err := store.ListRecords(recordstore.NamespaceSessions, recordstore.HasPrefix("session-"))
	if err != nil {
		log.Fatalf("failed to list sessions: %v", err)
	}

	for _, path := range paths {
		var summary domain.SessionSummary
		if err := store.ReadRecord(path, &summary); err != nil {
			logger.Warn("skipping unreadable session file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		fmt.Printf("%s  records=%d  transformations=%d  started=%s\n",
			summary.SessionID, summary.RecordCount, summary.TransformationCount,
			summary.StartTime.Format("2006-01-02T15:04:05Z07:00"))
	}
}

// runSummary prints the persisted audit summary of a session as written by
// the audit trail builder under audit/.
func runSummary(logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	sessionID := fs.String("session", "", "session id")
	cfgPath := fs.String("config", "", "config file path")
	fs.Parse(args)

	if *sessionID == "" {
		log.Fatal("summary: -session is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store := recordstore.New(cfg.Storage.Root, logger)
	path := filepath.Join(store.NamespacePath(recordstore.NamespaceAudit), "audit-summary-"+*sessionID+".json")

	var summary json.RawMessage
	if err := store.ReadRecord(path, &summary); err != nil {
		log.Fatalf("failed to read audit summary: %v", err)
	}
	printJSON(summary)
}

// runLineage prints the persisted lineage snapshots rooted at a trace, most
// recent last.
func runLineage(logger *slog.Logger, args []string) {
	fs := flag.NewFlagSet("lineage", flag.ExitOnError)
	traceID := fs.String("trace", "", "root trace id")
	cfgPath := fs.String("config", "", "config file path")
	fs.Parse(args)

	if *traceID == "" {
		log.Fatal("lineage: -trace is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store := recordstore.New(cfg.Storage.Root, logger)
	paths, err := store.ListRecords(recordstore.NamespaceLineage, recordstore.HasPrefix("lineage-"+*traceID+"-"))
	if err != nil {
		log.Fatalf("failed to list lineage snapshots: %v", err)
	}
	if len(paths) == 0 {
		log.Fatalf("no lineage snapshots for trace %s", *traceID)
	}

	for _, path := range paths {
		var lineage domain.Lineage
		if err := store.ReadRecord(path, &lineage); err != nil {
			logger.Warn("skipping unreadable lineage file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		printJSON(lineage)
	}
}

// flagProvided reports whether a flag was set on the command line, as
// opposed to resting at its default.
func flagProvided(fs *flag.FlagSet, name string) bool {
	provided := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			provided = true
		}
	})
	return provided
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}
	fmt.Println(string(out))
}
