package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"tasknotes/internal/agenda"
	"tasknotes/internal/config"
	"tasknotes/internal/dateutil"
	"tasknotes/internal/ics"
	appLog "tasknotes/internal/log"
	"tasknotes/internal/notes"
	"tasknotes/internal/temporal"
	"tasknotes/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	notesDir   string
	date       string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.notesDir != "" {
		conf.NotesDir = flags.notesDir
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"notes_dir", conf.NotesDir,
		"timezone", conf.Timezone,
		"horizon_days", conf.HorizonDays,
		"ics_count", len(conf.ICS),
		"once", flags.once,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.once {
		if err := runOnce(ctx, conf, flags.date); err != nil {
			appLog.Error("agenda run failed", err)
			os.Exit(1)
		}
		return
	}

	runServe(ctx, conf)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", defaultConfigPath(), "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.notesDir, "notes-dir", "", "Notes directory (overrides config if set)")
	flag.StringVar(&cfg.date, "date", "", "Reference date (YYYY-MM-DD, default today)")
	flag.BoolVar(&cfg.once, "once", false, "Print the agenda once and exit")

	flag.Parse()
	return cfg
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./tasknotes.yaml"
	}
	return home + "/.config/tasknotes/config.yaml"
}

// runOnce builds the agenda for one reference date and prints it.
func runOnce(ctx context.Context, conf *config.Config, dateArg string) error {
	loc := conf.Location()
	today := dateutil.TodayIn(loc)
	if dateArg != "" {
		d, err := dateutil.ParseLocalDate(dateArg)
		if err != nil {
			return err
		}
		today = d
	}

	loaded, err := notes.LoadDir(conf.NotesDir, loc)
	if err != nil {
		return err
	}

	var entries []ics.Entry
	if len(conf.ICS) > 0 {
		fetcher := ics.NewFetcher(conf.CacheDir)
		feeds := make([]ics.Feed, 0, len(conf.ICS))
		for _, f := range conf.ICS {
			feeds = append(feeds, ics.Feed{ID: f.ID, Name: f.Name, URL: f.URL})
		}
		results, _ := fetcher.FetchAll(ctx, feeds)
		var events []ics.Event
		for _, res := range results {
			evs, perr := ics.ParseFeed(res.Feed, res.Body)
			if perr != nil {
				continue
			}
			events = append(events, evs...)
		}
		entries, err = ics.ExpandEntries(events, ics.ExpandConfig{
			DisplayLocation: loc,
			From:            today,
			To:              today.AddDays(conf.HorizonDays - 1),
		})
		if err != nil {
			return err
		}
	}

	resolver := &temporal.Resolver{DoneStatuses: conf.DoneStatuses}
	if ww, werr := conf.WorkWeekSet(); werr != nil {
		appLog.Error("invalid work_week config, using monday-friday", werr)
	} else {
		resolver.WorkWeek = ww
	}
	ag := agenda.Build(resolver, loaded.Tasks, entries, today, conf.HorizonDays)
	printAgenda(ag)
	return nil
}

func printAgenda(ag agenda.Agenda) {
	if len(ag.Overdue) > 0 {
		fmt.Println("Overdue:")
		for _, it := range ag.Overdue {
			fmt.Printf("  ! %s (since %s, %s)\n", it.Title, it.Date, it.Basis)
		}
	}
	for _, day := range ag.Days {
		if len(day.Tasks) == 0 && len(day.Feed) == 0 {
			continue
		}
		fmt.Printf("%s:\n", day.Date)
		for _, it := range day.Tasks {
			fmt.Printf("  - [%s] %s\n", it.Kind, it.Title)
		}
		for _, e := range day.Feed {
			if e.AllDay {
				fmt.Printf("  * %s (all day)\n", e.Title)
			} else {
				fmt.Printf("  * %s (%s)\n", e.Title, e.Start.Format("15:04"))
			}
		}
	}
	for id, msg := range ag.Errors {
		fmt.Fprintf(os.Stderr, "skipped %s: %s\n", id, msg)
	}
}

// runServe starts the HTTP API plus a cron-scheduled feed refresh that keeps
// the ICS disk cache warm.
func runServe(ctx context.Context, conf *config.Config) {
	fetcher := ics.NewFetcher(conf.CacheDir)
	feeds := make([]ics.Feed, 0, len(conf.ICS))
	for _, f := range conf.ICS {
		feeds = append(feeds, ics.Feed{ID: f.ID, Name: f.Name, URL: f.URL})
	}

	c := cron.New()
	if len(feeds) > 0 {
		if _, err := c.AddFunc(conf.RefreshCron, func() {
			_, errs := fetcher.FetchAll(ctx, feeds)
			if len(errs) > 0 {
				appLog.Warn("feed refresh completed with errors", "error_count", len(errs))
			}
		}); err != nil {
			appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
			os.Exit(1)
		}
		c.Start()
		defer c.Stop()
	}

	if err := web.StartServer(ctx, conf); err != nil {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}
}
