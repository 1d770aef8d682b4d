package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"

	"github.com/heliotrack/spaceweather/internal/extract"
	"github.com/heliotrack/spaceweather/internal/forecast"
	"github.com/heliotrack/spaceweather/internal/llm"
	"github.com/heliotrack/spaceweather/internal/models"
	"github.com/heliotrack/spaceweather/internal/pipeline"
	"github.com/heliotrack/spaceweather/internal/remote"
	"github.com/heliotrack/spaceweather/internal/scrape"
	"github.com/heliotrack/spaceweather/internal/store"
)

type cli struct {
	DB          string `help:"Path to the SQLite database." default:"data/spaceweather.db" env:"SPACEWEATHER_DB"`
	SnapshotDir string `help:"Directory for per-date JSON snapshots." default:"data/snapshots" env:"SPACEWEATHER_SNAPSHOT_DIR"`

	GroqAPIKey string `help:"API key for the model endpoint." env:"GROQ_API_KEY"`
	Model      string `help:"Chat model name." default:"llama-3.3-70b-versatile" env:"SPACEWEATHER_MODEL"`
	ModelURL   string `help:"OpenAI-compatible base URL." default:"https://api.groq.com/openai/v1" env:"SPACEWEATHER_MODEL_URL"`

	SupabaseURL string `help:"Supabase project URL for the remote tier." env:"SUPABASE_URL"`
	SupabaseKey string `help:"Supabase API key." env:"SUPABASE_KEY"`

	SourceURL  string `help:"Archive site base URL." default:"https://spaceweather.com" env:"SPACEWEATHER_SOURCE_URL"`
	NoaaHost   string `help:"SWPC FTP host for the SRS text fallback." env:"NOAA_FTP_HOST"`
	MaxRetries int    `help:"Extra extraction attempts after a zero-event reply." default:"2"`
	Lookback   int    `help:"Maximum lookback window in days." default:"30"`

	Process processCmd `cmd:"" help:"Fetch, extract, and store records for a date range."`
	Show    showCmd    `cmd:"" help:"Print stored records as JSON."`
	Stats   statsCmd   `cmd:"" help:"Summarize the local database."`
	Sync    syncCmd    `cmd:"" help:"Push unsynced records to the remote tier."`
	Serve   serveCmd   `cmd:"" help:"Run the scheduled refresh and sync loop with a metrics endpoint."`
}

// app carries the wired pipeline shared by all commands. The model
// client is only constructed for commands that extract.
type app struct {
	cli     *cli
	store   *store.Tiered
	primary *store.Store
	clock   clockwork.Clock
	closer  func() error
}

func buildApp(c *cli) (*app, error) {
	primary, err := store.New(c.DB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	snapshot, err := store.NewSnapshot(c.SnapshotDir)
	if err != nil {
		primary.Close()
		return nil, err
	}

	var rs store.RemoteStore
	if c.SupabaseURL != "" && c.SupabaseKey != "" {
		client, err := remote.NewClient(remote.Config{URL: c.SupabaseURL, Key: c.SupabaseKey})
		if err != nil {
			primary.Close()
			return nil, err
		}
		rs = client
	} else {
		log.Println("main: no remote configured, running local-only")
	}

	return &app{
		cli:     c,
		store:   store.NewTiered(primary, snapshot, rs),
		primary: primary,
		clock:   clockwork.NewRealClock(),
		closer:  primary.Close,
	}, nil
}

// processor wires the fetch/extract pipeline; it needs model credentials.
func (a *app) processor() (*pipeline.RangeProcessor, error) {
	if a.cli.GroqAPIKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY required for extraction")
	}

	completer, err := llm.NewClient(llm.Config{
		APIKey:  a.cli.GroqAPIKey,
		BaseURL: a.cli.ModelURL,
		Model:   a.cli.Model,
	})
	if err != nil {
		return nil, err
	}

	provider := scrape.NewMulti(
		scrape.NewClient(scrape.Config{BaseURL: a.cli.SourceURL, Clock: a.clock}),
		scrape.NewNOAAClient(a.cli.NoaaHost),
	)
	orch := pipeline.NewOrchestrator(a.store, provider, extract.NewNormalizer(completer), a.cli.MaxRetries)
	return pipeline.NewRangeProcessor(orch, a.clock, a.cli.Lookback), nil
}

type processCmd struct {
	From  string `help:"Start date (YYYY-MM-DD). Defaults to --days before today."`
	To    string `help:"End date (YYYY-MM-DD). Defaults to today."`
	Days  int    `help:"Process the trailing N-day window ending today." default:"1"`
	Force bool   `help:"Refetch and re-extract even for cached dates."`
}

func (cmd *processCmd) Run(a *app) error {
	proc, err := a.processor()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var records []*models.DateRecord
	if cmd.From != "" || cmd.To != "" {
		start, end, err := cmd.span(a.clock)
		if err != nil {
			return err
		}
		records, err = proc.ProcessRange(ctx, start, end, cmd.Force)
		if err != nil {
			return err
		}
	} else {
		records, err = proc.ProcessDays(ctx, cmd.Days, cmd.Force)
		if err != nil {
			return err
		}
	}

	for _, rec := range records {
		status := fmt.Sprintf("%d events", rec.Events.Total())
		if rec.Error != "" {
			status = "error: " + rec.Error
		}
		log.Printf("main: %s: %s", rec.Date, status)
	}
	return nil
}

func (cmd *processCmd) span(clock clockwork.Clock) (time.Time, time.Time, error) {
	end := clock.Now().UTC()
	if cmd.To != "" {
		var err error
		end, err = time.Parse(models.DateFormat, cmd.To)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --to: %w", err)
		}
	}
	start := end
	if cmd.From != "" {
		var err error
		start, err = time.Parse(models.DateFormat, cmd.From)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --from: %w", err)
		}
	}
	return start, end, nil
}

type showCmd struct {
	Date string `arg:"" help:"Center date (YYYY-MM-DD)."`
	Days int    `help:"Show a window of this many days centered on the date, with forecast projection." default:"0"`
}

func (cmd *showCmd) Run(a *app) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	center, err := time.Parse(models.DateFormat, cmd.Date)
	if err != nil {
		return fmt.Errorf("parse date: %w", err)
	}

	if cmd.Days <= 0 {
		rec, err := a.store.Get(ctx, cmd.Date)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no record for %s", cmd.Date)
		}
		return printJSON(rec)
	}

	forecastDays, err := a.store.Setting(ctx, "forecast_days", "3")
	if err != nil {
		return err
	}
	fd := atoiDefault(forecastDays, 3)

	start, end := pipeline.Window(center, cmd.Days, fd, a.clock)
	var keys []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		keys = append(keys, d.Format(models.DateFormat))
	}

	byDate, err := a.store.GetRange(ctx, keys)
	if err != nil {
		return err
	}

	var records []*models.DateRecord
	for _, k := range keys {
		if rec, ok := byDate[k]; ok {
			records = append(records, rec)
		}
	}
	records = append(records, forecast.Project(records, start, end, a.clock)...)
	return printJSON(records)
}

type statsCmd struct{}

func (cmd *statsCmd) Run(a *app) error {
	version, err := a.primary.MigrationVersion()
	if err != nil {
		return err
	}
	records, err := a.primary.AllDates()
	if err != nil {
		return err
	}

	totalEvents := 0
	byCategory := make(map[models.Category]int)
	for _, rec := range records {
		for cat, n := range rec.Events.CountByCategory() {
			byCategory[cat] += n
			totalEvents += n
		}
	}

	log.Printf("main: schema version %d, %d dates, %d events", version, len(records), totalEvents)
	if len(records) > 0 {
		log.Printf("main: span %s .. %s", records[0].Date, records[len(records)-1].Date)
	}
	for _, cat := range models.Categories() {
		log.Printf("main:   %s: %d", cat, byCategory[cat])
	}
	log.Printf("main: %d dates with significant events", len(models.SignificantEvents(records)))
	return nil
}

type syncCmd struct {
	FromSnapshots bool `help:"Import snapshot files absent from the database before pushing."`
}

func (cmd *syncCmd) Run(a *app) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cmd.FromSnapshots {
		imported, err := a.store.ImportSnapshots()
		if err != nil {
			return err
		}
		log.Printf("main: imported %d snapshot records", imported)
	}

	synced, attempted, err := a.store.SyncPending(ctx)
	if err != nil {
		return err
	}
	log.Printf("main: synced %d/%d pending records", synced, attempted)
	return nil
}

type serveCmd struct {
	Port int `help:"Metrics listen port." default:"9090"`
	Days int `help:"Trailing window refreshed each cycle." default:"14"`
}

func (cmd *serveCmd) Run(a *app) error {
	proc, err := a.processor()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := cron.New()

	if _, err := c.AddFunc("0 * * * *", func() {
		if _, err := proc.ProcessDays(ctx, cmd.Days, false); err != nil {
			log.Printf("main: scheduled refresh: %v", err)
		}
	}); err != nil {
		return err
	}

	if _, err := c.AddFunc("*/10 * * * *", func() {
		if _, _, err := a.store.SyncPending(ctx); err != nil {
			log.Printf("main: scheduled sync: %v", err)
		}
	}); err != nil {
		return err
	}

	c.Start()
	defer c.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cmd.Port), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	// Refresh once at startup rather than waiting for the first tick.
	go func() {
		if _, err := proc.ProcessDays(ctx, cmd.Days, false); err != nil {
			log.Printf("main: startup refresh: %v", err)
		}
	}()

	log.Printf("main: serving metrics on :%d", cmd.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func atoiDefault(s string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n <= 0 {
		return fallback
	}
	return n
}

func main() {
	var c cli
	ktx := kong.Parse(&c,
		kong.Name("spaceweather"),
		kong.Description("Space weather event pipeline: fetch daily reports, extract structured events, and maintain the tiered record store."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	a, err := buildApp(&c)
	if err != nil {
		log.Fatalf("main: %v", err)
	}
	defer a.closer()

	if err := ktx.Run(a); err != nil {
		log.Fatalf("main: %v", err)
	}
}
