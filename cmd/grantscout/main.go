package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/grantscout/grantscout/config"
	"github.com/grantscout/grantscout/grants"
	"github.com/grantscout/grantscout/harvest"
	"github.com/grantscout/grantscout/scrape"
	"github.com/grantscout/grantscout/sources"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	metadataPath := getEnv("GRANTSCOUT_METADATA_DSN", "metadata.db")
	grantsPath := getEnv("GRANTSCOUT_GRANTS_DSN", "grants.db")

	// Paths from the config file override the defaults but not explicit env
	fileCfg, err := config.LoadConfigFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if fileCfg != nil {
		if os.Getenv("GRANTSCOUT_METADATA_DSN") == "" && fileCfg.Storage.Metadata.DSN != "" {
			metadataPath = fileCfg.Storage.Metadata.DSN
		}
		if os.Getenv("GRANTSCOUT_GRANTS_DSN") == "" && fileCfg.Storage.Grants.DSN != "" {
			grantsPath = fileCfg.Storage.Grants.DSN
		}
	}

	subcommand := os.Args[1]

	switch subcommand {
	case "sources":
		if len(os.Args) < 3 {
			printSourcesUsage()
			os.Exit(1)
		}
		action := os.Args[2]
		handleSourcesCommand(action, metadataPath, os.Args[3:])
	case "grants":
		if len(os.Args) < 3 {
			printGrantsUsage()
			os.Exit(1)
		}
		action := os.Args[2]
		handleGrantsCommand(action, grantsPath, os.Args[3:])
	case "harvest":
		handleHarvestCommand(metadataPath, grantsPath, fileCfg, os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func handleSourcesCommand(action, metadataPath string, args []string) {
	sourceStore, err := sources.NewSourceStore(metadataPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open source store: %v\n", err)
		os.Exit(1)
	}
	defer sourceStore.Close()

	switch action {
	case "list":
		handleSourcesList(sourceStore, args)
	case "add":
		handleSourcesAdd(sourceStore, args)
	case "delete":
		handleSourcesDelete(sourceStore, args)
	case "help", "--help", "-h":
		printSourcesUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown sources command: %s\n\n", action)
		printSourcesUsage()
		os.Exit(1)
	}
}

func handleGrantsCommand(action, grantsPath string, args []string) {
	grantStore, err := grants.NewStore(grantsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open grant store: %v\n", err)
		os.Exit(1)
	}
	defer grantStore.Close()

	switch action {
	case "list":
		handleGrantsList(grantStore, args)
	case "help", "--help", "-h":
		printGrantsUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown grants command: %s\n\n", action)
		printGrantsUsage()
		os.Exit(1)
	}
}

func handleHarvestCommand(metadataPath, grantsPath string, fileCfg *config.FileConfig, args []string) {
	fs := flag.NewFlagSet("harvest", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	fs.Parse(args)

	var log *zap.Logger
	var err error
	if *verbose {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sourceStore, err := sources.NewSourceStore(metadataPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open source store: %v\n", err)
		os.Exit(1)
	}
	defer sourceStore.Close()

	grantStore, err := grants.NewStore(grantsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open grant store: %v\n", err)
		os.Exit(1)
	}
	defer grantStore.Close()

	var limiterCfg scrape.LimiterConfig
	var fetcherCfg scrape.FetcherConfig
	if fileCfg != nil {
		limiterCfg = fileCfg.LimiterConfig()
		fetcherCfg = fileCfg.FetcherConfig()
	}

	limiter := scrape.NewRateLimiter(limiterCfg, log)
	fetcher := scrape.NewFetcher(fetcherCfg, limiter, log)
	extractor := scrape.NewExtractor(log)

	harvester := harvest.New(sourceStore, grantStore, fetcher, extractor, log)

	// The pause between sources comes from the stored preference
	configStore, err := config.NewConfigStore(metadataPath)
	if err == nil {
		if prefs, err := configStore.GetConfig(); err == nil {
			if pause, err := time.ParseDuration(prefs.DefaultHarvestPause); err == nil {
				harvester.SetPause(pause)
			}
		}
		configStore.Close()
	}

	result, err := harvester.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: harvest failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Harvest complete: %d sources tried, %d failed\n", result.SourcesTried, result.SourcesFailed)
	fmt.Printf("  Grants added: %d\n", result.GrantsAdded)
	fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
	if result.UsedSampleData {
		fmt.Println("  No live data available; loaded sample grants instead.")
	}
}

func printUsage() {
	fmt.Println("grantscout - Grant research CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  grantscout <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  sources    Manage grant sources")
	fmt.Println("  grants     Browse harvested grants")
	fmt.Println("  harvest    Harvest all enabled sources")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GRANTSCOUT_METADATA_DSN  Path to metadata database (default: metadata.db)")
	fmt.Println("  GRANTSCOUT_GRANTS_DSN    Path to grants database (default: grants.db)")
}

func printSourcesUsage() {
	fmt.Println("grantscout sources - Manage grant sources")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  grantscout sources <action> [arguments]")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  list       List all sources")
	fmt.Println("  add        Add a new source")
	fmt.Println("  delete     Delete a source")
	fmt.Println("  help       Show this help message")
}

func printGrantsUsage() {
	fmt.Println("grantscout grants - Browse harvested grants")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  grantscout grants <action> [arguments]")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  list       List harvested grants")
	fmt.Println("  help       Show this help message")
}

func handleSourcesList(sourceStore *sources.SourceStore, args []string) {
	fs := flag.NewFlagSet("sources list", flag.ExitOnError)
	fs.Parse(args)

	srcs, err := sourceStore.ListSources(sources.SourceFilter{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list sources: %v\n", err)
		os.Exit(1)
	}

	if len(srcs) == 0 {
		fmt.Println("No sources configured.")
		return
	}

	fmt.Printf("%-36s %-8s %-40s %s\n", "ID", "TYPE", "NAME", "URL")
	fmt.Println("----------------------------------------------------------------------------------------------------")

	for _, source := range srcs {
		name := source.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		url := source.URL
		if len(url) > 50 {
			url = url[:47] + "..."
		}

		fmt.Printf("%-36s %-8s %-40s %s\n",
			source.SourceID.String(),
			source.SourceType,
			name,
			url,
		)
	}
}

func handleSourcesAdd(sourceStore *sources.SourceStore, args []string) {
	fs := flag.NewFlagSet("sources add", flag.ExitOnError)
	sourceType := fs.String("type", "", "Source type (website or feed)")
	url := fs.String("url", "", "Source URL")
	name := fs.String("name", "", "Source name")
	funder := fs.String("funder", "", "Funder name (optional)")
	fallbacks := fs.String("fallbacks", "", "Comma-separated fallback URLs (optional)")
	selectorsJSON := fs.String("selectors", "", "Selector map as JSON (required for website sources)")
	fs.Parse(args)

	if *sourceType == "" {
		fmt.Fprintf(os.Stderr, "Error: --type is required\n")
		fs.Usage()
		os.Exit(1)
	}
	if *url == "" {
		fmt.Fprintf(os.Stderr, "Error: --url is required\n")
		fs.Usage()
		os.Exit(1)
	}
	if *name == "" {
		fmt.Fprintf(os.Stderr, "Error: --name is required\n")
		fs.Usage()
		os.Exit(1)
	}
	if err := sources.ValidateSourceType(*sourceType); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var selectors *scrape.SelectorMap
	if *selectorsJSON != "" {
		parsed, err := scrape.ParseSelectorMap([]byte(*selectorsJSON))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --selectors: %v\n", err)
			os.Exit(1)
		}
		selectors = parsed
	}
	if *sourceType == "website" && selectors == nil {
		fmt.Fprintf(os.Stderr, "Error: --selectors is required for website sources\n")
		os.Exit(1)
	}

	var fallbackURLs []string
	if *fallbacks != "" {
		for _, u := range strings.Split(*fallbacks, ",") {
			if trimmed := strings.TrimSpace(u); trimmed != "" {
				fallbackURLs = append(fallbackURLs, trimmed)
			}
		}
	}

	// Create the source (enabled by default)
	now := time.Now()
	source, err := sourceStore.CreateSource(*sourceType, *url, *name, *funder, fallbackURLs, selectors, &now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create source: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Created source: %s\n", source.SourceID.String())
	fmt.Printf("  Type: %s\n", source.SourceType)
	fmt.Printf("  Name: %s\n", source.Name)
	fmt.Printf("  URL: %s\n", source.URL)
}

func handleSourcesDelete(sourceStore *sources.SourceStore, args []string) {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Error: source ID is required\n")
		fmt.Fprintf(os.Stderr, "Usage: grantscout sources delete <source-id>\n")
		os.Exit(1)
	}

	sourceID := args[0]

	id, err := uuid.Parse(sourceID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid source ID: %v\n", err)
		os.Exit(1)
	}

	if err := sourceStore.DeleteSource(id); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to delete source: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Deleted source: %s\n", sourceID)
}

func handleGrantsList(grantStore *grants.Store, args []string) {
	fs := flag.NewFlagSet("grants list", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Maximum number of grants to show")
	excludeSample := fs.Bool("exclude-sample", false, "Hide sample data")
	fs.Parse(args)

	list, err := grantStore.List(grants.Filter{
		ExcludeSample: *excludeSample,
		Limit:         *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list grants: %v\n", err)
		os.Exit(1)
	}

	if len(list) == 0 {
		fmt.Println("No grants found. Run 'grantscout harvest' to collect some.")
		return
	}

	for _, g := range list {
		marker := " "
		if g.Sample {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, g.Title)
		if g.Funder != nil {
			fmt.Printf("    Funder:   %s\n", *g.Funder)
		}
		if g.Amount != nil {
			fmt.Printf("    Amount:   %s\n", *g.Amount)
		}
		if g.Deadline != nil {
			fmt.Printf("    Deadline: %s\n", *g.Deadline)
		}
		fmt.Printf("    URL:      %s\n", g.URL)
	}
	fmt.Println()
	fmt.Printf("%d grants shown (* = sample data)\n", len(list))
}
