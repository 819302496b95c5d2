package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vkarpenko/newscrawler/internal/adapter"
	"github.com/vkarpenko/newscrawler/internal/config"
	"github.com/vkarpenko/newscrawler/internal/crawler"
	"github.com/vkarpenko/newscrawler/internal/database"
	"github.com/vkarpenko/newscrawler/internal/scheduler"
	"github.com/vkarpenko/newscrawler/internal/storage"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "newscrawler",
	Short:   "Crawl news sources into a local database",
	Long:    "newscrawler collects articles from configured websites, archives, feeds and APIs, deduplicates them and stores them in SQLite and/or CSV.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(articlesCmd)
	rootCmd.AddCommand(statusCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("newscrawler", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ./config.yaml with default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		const target = "config.yaml"
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure sources, storage backends and API keys.")
		return nil
	},
}

// --- crawl command ---

var (
	crawlFrom     string
	crawlTo       string
	crawlSourceID int64
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl all active sources once",
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := resolveRunParams(crawlFrom, crawlTo)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if crawlSourceID > 0 {
			return crawlOne(ctx, params, crawlSourceID)
		}

		summary, err := runCrawl(ctx, params)
		if err != nil {
			return err
		}

		printSummary(summary)
		if summary.Errors > 0 {
			return fmt.Errorf("%d source(s) failed", summary.Errors)
		}
		return nil
	},
}

func init() {
	crawlCmd.Flags().StringVar(&crawlFrom, "from", "", "Range start: date YYYY-MM-DD (archive sources) or page number (API sources)")
	crawlCmd.Flags().StringVar(&crawlTo, "to", "", "Range end: date YYYY-MM-DD or page number (default today / configured max pages)")
	crawlCmd.Flags().Int64Var(&crawlSourceID, "source", 0, "Crawl only the source with this registry ID")
}

func crawlOne(ctx context.Context, params adapter.RunParams, id int64) error {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	sink, err := buildSink(db)
	if err != nil {
		return err
	}
	defer sink.Close()

	stats, err := crawler.New(cfg, db, sink, params).CrawlSourceByID(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d found, %d saved, %d skipped\n", stats.Name, stats.Found, stats.Saved, stats.Skipped)
	return nil
}

// resolveRunParams turns --from/--to into per-run bounds. Dates bound
// the archive day window; plain integers bound the API page window.
func resolveRunParams(from, to string) (adapter.RunParams, error) {
	params := adapter.DefaultRunParams()

	if from != "" {
		date, page, err := parseRangeValue(from)
		if err != nil {
			return params, fmt.Errorf("invalid --from value %q: %w", from, err)
		}
		if page > 0 {
			params.PageStart = page
		} else {
			params.Dates.Start = date
		}
	}
	if to != "" {
		date, page, err := parseRangeValue(to)
		if err != nil {
			return params, fmt.Errorf("invalid --to value %q: %w", to, err)
		}
		if page > 0 {
			params.PageEnd = page
		} else {
			params.Dates.End = date
		}
	}

	if params.Dates.End.Before(params.Dates.Start) {
		return params, fmt.Errorf("--to (%s) is before --from (%s)",
			params.Dates.End.Format("2006-01-02"), params.Dates.Start.Format("2006-01-02"))
	}
	if params.PageEnd > 0 && params.PageStart > params.PageEnd {
		return params, fmt.Errorf("--to page %d is before --from page %d", params.PageEnd, params.PageStart)
	}
	return params, nil
}

// parseRangeValue distinguishes a date from a page number.
func parseRangeValue(v string) (time.Time, int, error) {
	if page, err := strconv.Atoi(v); err == nil {
		if page <= 0 {
			return time.Time{}, 0, fmt.Errorf("page number must be positive")
		}
		return time.Time{}, page, nil
	}
	date, err := time.Parse("2006-01-02", v)
	return date, 0, err
}

func runCrawl(ctx context.Context, params adapter.RunParams) (*crawler.Summary, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	sink, err := buildSink(db)
	if err != nil {
		return nil, err
	}
	defer sink.Close()

	return crawler.New(cfg, db, sink, params).CrawlAll(ctx)
}

// buildSink assembles the storage backends listed in the config.
func buildSink(db *database.DB) (storage.Sink, error) {
	var sinks []storage.Sink
	for _, backend := range cfg.Storage.Backends {
		switch backend {
		case config.BackendDB:
			sinks = append(sinks, storage.NewDBSink(db))
		case config.BackendCSV:
			csvSink, err := storage.NewCSVSink(cfg.Storage.CSVDir)
			if err != nil {
				return nil, err
			}
			fmt.Printf("Writing CSV copy to %s\n", csvSink.Path())
			sinks = append(sinks, csvSink)
		}
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return storage.NewMulti(sinks...), nil
}

func printSummary(s *crawler.Summary) {
	fmt.Println("\nCrawl complete:")
	fmt.Printf("  Sources crawled: %d\n", s.SourcesCrawled)
	fmt.Printf("  Articles found: %d\n", s.Found)
	fmt.Printf("  Saved: %d\n", s.Saved)
	fmt.Printf("  Skipped: %d\n", s.Skipped)
	fmt.Printf("  Errors: %d\n", s.Errors)

	if len(s.PerSource) > 0 {
		fmt.Println("\nBy source:")
		for _, st := range s.PerSource {
			fmt.Printf("  %s: %d found, %d saved, %d skipped\n", st.Name, st.Found, st.Saved, st.Skipped)
		}
	}
}

// --- schedule command ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Crawl on the configured cron cadence until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sched, err := scheduler.New(cfg.Schedule.Cron, func(ctx context.Context) error {
			summary, err := runCrawl(ctx, adapter.DefaultRunParams())
			if err != nil {
				return err
			}
			printSummary(summary)
			return nil
		})
		if err != nil {
			return err
		}

		fmt.Printf("Scheduling crawls (%s). Press Ctrl+C to stop.\n", cfg.Schedule.Cron)
		return sched.Run(ctx)
	},
}

// --- sources command ---

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage registered sources",
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		sources, err := db.ListSources(false)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Println("No sources registered. Run 'newscrawler crawl' to register configured sources.")
			return nil
		}

		fmt.Println("Sources:")
		for _, s := range sources {
			state := " "
			if s.IsActive {
				state = "*"
			}
			last := "never"
			if s.LastCrawled != nil {
				last = *s.LastCrawled
			}
			fmt.Printf("  [%d] %s %s (%s)\n", s.ID, state, s.Name, s.Adapter)
			fmt.Printf("        %s (last crawled: %s)\n", s.URL, last)
		}
		return nil
	},
}

var sourceAdapterKind string

var sourcesAddCmd = &cobra.Command{
	Use:   "add [name] [url]",
	Short: "Register a source manually",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		s, err := db.CreateSource(args[0], args[1], sourceAdapterKind)
		if err != nil {
			return err
		}
		fmt.Printf("Registered source [%d]: %s\n", s.ID, s.Name)
		return nil
	},
}

var sourcesDeactivateCmd = &cobra.Command{
	Use:   "deactivate [id]",
	Short: "Exclude a source from future crawls",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid source ID: %s", args[0])
		}

		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeactivateSource(id); err != nil {
			return err
		}
		fmt.Printf("Deactivated source [%d]\n", id)
		return nil
	},
}

func init() {
	sourcesAddCmd.Flags().StringVar(&sourceAdapterKind, "adapter", config.AdapterHTML, "Adapter kind: html, archive, browser, api, feed")

	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesAddCmd)
	sourcesCmd.AddCommand(sourcesDeactivateCmd)
}

// --- articles command ---

var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Query stored articles",
}

var articlesLimit int

var articlesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the most recently scraped articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		articles, err := db.ListLatest(articlesLimit)
		if err != nil {
			return err
		}
		printArticles(articles)
		return nil
	},
}

var (
	searchFrom string
	searchTo   string
)

var articlesSearchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Search articles by keyword, optionally within a date range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		articles, err := db.SearchArticles(args[0], searchFrom, searchTo, articlesLimit)
		if err != nil {
			return err
		}
		printArticles(articles)
		return nil
	},
}

func printArticles(articles []database.Article) {
	if len(articles) == 0 {
		fmt.Println("No articles found.")
		return
	}
	for _, a := range articles {
		date := ""
		if a.PublishedDate != nil {
			date = *a.PublishedDate + " "
		}
		fmt.Printf("[%d] %s%s (%s)\n", a.ID, date, a.Title, a.SourceName)
		fmt.Printf("      %s\n", a.URL)
	}
}

func init() {
	articlesCmd.PersistentFlags().IntVar(&articlesLimit, "limit", 20, "Maximum number of articles to show")
	articlesSearchCmd.Flags().StringVar(&searchFrom, "from", "", "Earliest published date (YYYY-MM-DD)")
	articlesSearchCmd.Flags().StringVar(&searchTo, "to", "", "Latest published date (YYYY-MM-DD)")

	articlesCmd.AddCommand(articlesListCmd)
	articlesCmd.AddCommand(articlesSearchCmd)
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show article counts per source",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		sources, err := db.ListSources(false)
		if err != nil {
			return err
		}
		counts, err := db.CountArticles()
		if err != nil {
			return err
		}

		total := 0
		fmt.Println("Articles by source:")
		for _, s := range sources {
			fmt.Printf("  %s: %d\n", s.Name, counts[s.Name])
			total += counts[s.Name]
		}
		fmt.Printf("\nTotal: %d\n", total)
		return nil
	},
}
