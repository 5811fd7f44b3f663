// Command replybot runs the Twitter auto-reply bot: it polls the recent
// search endpoint for posts matching each account's query, lets the LLM
// decide and draft replies, and posts them with durable dedup and token
// state.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jshapland/replybot/internal/bot"
	"github.com/jshapland/replybot/internal/config"
	"github.com/jshapland/replybot/internal/engine"
	"github.com/jshapland/replybot/internal/notifier"
	"github.com/jshapland/replybot/internal/report"
	"github.com/jshapland/replybot/internal/scheduler"
	"github.com/jshapland/replybot/internal/store"
	"github.com/jshapland/replybot/internal/twitter"
)

var (
	configPath string
	dryRun     bool
	handles    []string
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	godotenv.Load()

	root := &cobra.Command{
		Use:           "replybot",
		Short:         "Twitter auto-reply bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to config.toml")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the polling loop for a single account",
		RunE:  runSingle,
	}
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "draft and log replies without posting")
	runCmd.Flags().StringSliceVar(&handles, "handle", nil, "account handle (defaults to the only configured account)")

	runAllCmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run polling loops for all configured accounts concurrently",
		RunE:  runAll,
	}
	runAllCmd.Flags().BoolVar(&dryRun, "dry-run", false, "draft and log replies without posting")
	runAllCmd.Flags().StringSliceVar(&handles, "handle", nil, "limit to these handles (repeatable)")

	onceCmd := &cobra.Command{
		Use:   "once",
		Short: "Run exactly one polling cycle and exit",
		RunE:  runOnce,
	}
	onceCmd.Flags().BoolVar(&dryRun, "dry-run", false, "draft and log replies without posting")
	onceCmd.Flags().StringSliceVar(&handles, "handle", nil, "account handle (defaults to the only configured account)")

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Build today's activity report now",
		RunE:  runReport,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("%s already exists", configPath)
			}
			if err := config.Default().Save(configPath); err != nil {
				return err
			}
			log.Printf("Wrote default config to %s", configPath)
			return nil
		},
	}

	root.AddCommand(runCmd, runAllCmd, onceCmd, reportCmd, initCmd)

	if err := root.Execute(); err != nil {
		log.Fatalf("%v", err)
	}
}

// runtime bundles everything the commands assemble from configuration.
type runtime struct {
	cfg      *config.Config
	archive  *store.Archive
	postgres *store.Postgres
}

func setup(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("could not load config %s: %w", configPath, err)
	}
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("no accounts configured in %s", configPath)
	}

	archive, err := store.OpenArchive(cfg.ArchivePath())
	if err != nil {
		return nil, fmt.Errorf("could not open archive: %w", err)
	}

	rt := &runtime{cfg: cfg, archive: archive}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pg, err := store.NewPostgres(ctx, dbURL)
		if err != nil {
			archive.Close()
			return nil, err
		}
		log.Printf("Storage: PostgreSQL")
		rt.postgres = pg
	} else {
		log.Printf("Storage: JSON files under %s", cfg.Bot.DataDir)
	}
	return rt, nil
}

func (rt *runtime) close() {
	rt.archive.Close()
	if rt.postgres != nil {
		rt.postgres.Close()
	}
}

// buildBot assembles the loop for one account. Missing Twitter credentials
// are fatal; a missing LLM key only disables drafting.
func (rt *runtime) buildBot(ctx context.Context, acct config.AccountConfig) (*bot.Bot, error) {
	handle := config.NormalizeHandle(acct.Handle)
	secrets, err := config.LoadSecrets(rt.cfg, handle)
	if err != nil {
		return nil, err
	}
	if acct.SearchQuery == "" {
		return nil, fmt.Errorf("account @%s has no search_query configured", handle)
	}

	var states store.StateStore
	var tokens store.TokenStore
	if rt.postgres != nil {
		states = rt.postgres.StateStore(handle, rt.cfg.Bot.MaxHistory)
		tokens = rt.postgres.TokenStore(handle)
	} else {
		states, err = store.NewStateFile(rt.cfg.StatePath(handle), rt.cfg.Bot.MaxHistory)
		if err != nil {
			return nil, err
		}
		tokens, err = store.NewTokenFile(rt.cfg.TokenPath(handle))
		if err != nil {
			return nil, err
		}
	}

	client, err := twitter.New(ctx, twitter.Config{
		ClientID:     secrets.TwitterClientID,
		ClientSecret: secrets.TwitterClientSecret,
		AccessToken:  secrets.AccessToken,
		RefreshToken: secrets.RefreshToken,
		SearchQuery:  acct.SearchQuery,
		Scopes:       acct.Scopes,
	}, tokens)
	if err != nil {
		return nil, fmt.Errorf("twitter client for @%s: %w", handle, err)
	}

	var decider bot.Decider
	if secrets.LLMAPIKey != "" {
		eng, err := engine.New(ctx, engine.Config{
			Provider:             rt.cfg.LLM.Provider,
			APIKey:               secrets.LLMAPIKey,
			Model:                rt.cfg.LLM.Model,
			ClassifierModel:      rt.cfg.LLM.ClassifierModel,
			ReplyPrompt:          rt.cfg.LLM.ReplyPrompt,
			ClassificationPrompt: rt.cfg.LLM.ClassificationPrompt,
			ClassifyFirst:        rt.cfg.LLM.ClassifyFirst,
		}, rt.archive)
		if err != nil {
			return nil, fmt.Errorf("decision engine for @%s: %w", handle, err)
		}
		decider = eng
	} else {
		log.Printf("[%s] No LLM API key configured; posts will be logged but not replied to", handle)
	}

	return bot.New(bot.Config{
		Handle:         handle,
		SearchQuery:    acct.SearchQuery,
		PollInterval:   time.Duration(rt.cfg.Bot.PollIntervalSeconds) * time.Second,
		MaxPostsPerRun: rt.cfg.Bot.MaxPostsPerRun,
		IgnoreHandles:  acct.IgnoreHandles,
		DryRun:         dryRun || rt.cfg.Bot.DryRun,
		ReplyLimit:     engine.ReplyLimit,
	}, client, decider, states, engine.Sanitize, rt.archive), nil
}

// selectAccounts resolves the --handle flags against the config, defaulting
// to the single configured account (run/once) or all accounts (run-all).
func selectAccounts(cfg *config.Config, all bool) ([]config.AccountConfig, error) {
	if len(handles) == 0 {
		if all {
			return cfg.Accounts, nil
		}
		if len(cfg.Accounts) == 1 {
			return cfg.Accounts, nil
		}
		return nil, fmt.Errorf("multiple accounts configured; pick one with --handle")
	}
	accts := make([]config.AccountConfig, 0, len(handles))
	for _, h := range handles {
		acct, err := cfg.Account(h)
		if err != nil {
			return nil, err
		}
		accts = append(accts, acct)
	}
	return accts, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSingle(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	accts, err := selectAccounts(rt.cfg, false)
	if err != nil {
		return err
	}
	if len(accts) != 1 {
		return fmt.Errorf("run takes exactly one account; use run-all for several")
	}

	b, err := rt.buildBot(ctx, accts[0])
	if err != nil {
		return err
	}

	stopReports := rt.startReportJob()
	defer stopReports()

	b.Run(ctx)
	return nil
}

func runAll(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	accts, err := selectAccounts(rt.cfg, true)
	if err != nil {
		return err
	}

	// One loop per account; storage paths are disjoint by handle so the
	// loops share nothing. A crashing loop is logged and does not take its
	// siblings down; the process exits when every loop has returned.
	var g errgroup.Group
	for _, acct := range accts {
		b, err := rt.buildBot(ctx, acct)
		if err != nil {
			return err
		}
		handle := config.NormalizeHandle(acct.Handle)
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[%s] Bot loop panicked: %v", handle, r)
				}
			}()
			b.Run(ctx)
			return nil
		})
		log.Printf("Started bot for @%s", handle)
	}

	stopReports := rt.startReportJob()
	defer stopReports()

	g.Wait()
	log.Printf("All bot loops stopped")
	return nil
}

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	accts, err := selectAccounts(rt.cfg, false)
	if err != nil {
		return err
	}
	if len(accts) != 1 {
		return fmt.Errorf("once takes exactly one account")
	}

	b, err := rt.buildBot(ctx, accts[0])
	if err != nil {
		return err
	}
	replies, err := b.RunCycle(ctx)
	if err != nil {
		return err
	}
	log.Printf("Cycle complete. Replies sent: %d", replies)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	r, err := rt.buildReport(ctx)
	if err != nil {
		return err
	}
	log.Printf("Report written to %s", r.FilePath)
	fmt.Println(r.Body)
	return nil
}

// buildReport renders the last 24h of archived replies and emails the
// result when a recipient is configured.
func (rt *runtime) buildReport(_ context.Context) (*report.Report, error) {
	builder, err := report.New(rt.cfg.Report.OutputDir)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	replies, err := rt.archive.RepliesSince(now.Add(-report.Window))
	if err != nil {
		return nil, err
	}
	r, err := builder.Build(replies, now)
	if err != nil {
		return nil, err
	}

	if rt.cfg.Report.EmailTo != "" {
		n, err := notifier.NewFromConfig(rt.cfg.Email)
		if err != nil {
			log.Printf("Report email disabled: %v", err)
		} else if err := n.SendReport(r, rt.cfg.Report.EmailTo); err != nil {
			log.Printf("Failed to email report: %v", err)
		}
	}
	return r, nil
}

// startReportJob schedules the daily report when enabled. The returned
// function stops the scheduler.
func (rt *runtime) startReportJob() func() {
	if !rt.cfg.Report.Enabled {
		return func() {}
	}
	sched, err := scheduler.New(rt.cfg.Report.Timezone)
	if err != nil {
		log.Printf("Report scheduling disabled: %v", err)
		return func() {}
	}
	err = sched.AddDailyJob("daily-report", rt.cfg.Report.Time, func(ctx context.Context) error {
		_, err := rt.buildReport(ctx)
		return err
	})
	if err != nil {
		log.Printf("Report scheduling disabled: %v", err)
		return func() {}
	}
	sched.Start()
	return func() { <-sched.Stop().Done() }
}
