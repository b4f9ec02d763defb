package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/grantscout/grantscout/api"
	"github.com/grantscout/grantscout/config"
	"github.com/grantscout/grantscout/grants"
	"github.com/grantscout/grantscout/harvest"
	"github.com/grantscout/grantscout/scrape"
	"github.com/grantscout/grantscout/sources"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	metadataPath := getEnv("GRANTSCOUT_METADATA_DSN", "metadata.db")
	grantsPath := getEnv("GRANTSCOUT_GRANTS_DSN", "grants.db")

	fileCfg, err := config.LoadConfigFile()
	if err != nil {
		log.Fatalf("Failed to load config file: %v", err)
	}
	if fileCfg != nil {
		if os.Getenv("GRANTSCOUT_METADATA_DSN") == "" && fileCfg.Storage.Metadata.DSN != "" {
			metadataPath = fileCfg.Storage.Metadata.DSN
		}
		if os.Getenv("GRANTSCOUT_GRANTS_DSN") == "" && fileCfg.Storage.Grants.DSN != "" {
			grantsPath = fileCfg.Storage.Grants.DSN
		}
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Create stores
	sourceStore, err := sources.NewSourceStore(metadataPath)
	if err != nil {
		log.Fatalf("Failed to create source store: %v", err)
	}
	defer sourceStore.Close()

	configStore, err := config.NewConfigStore(metadataPath)
	if err != nil {
		log.Fatalf("Failed to create config store: %v", err)
	}
	defer configStore.Close()

	grantStore, err := grants.NewStore(grantsPath)
	if err != nil {
		log.Fatalf("Failed to create grant store: %v", err)
	}
	defer grantStore.Close()

	// Build the scraping pipeline for harvest-on-demand
	var limiterCfg scrape.LimiterConfig
	var fetcherCfg scrape.FetcherConfig
	if fileCfg != nil {
		limiterCfg = fileCfg.LimiterConfig()
		fetcherCfg = fileCfg.FetcherConfig()
	}
	limiter := scrape.NewRateLimiter(limiterCfg, logger)
	fetcher := scrape.NewFetcher(fetcherCfg, limiter, logger)
	extractor := scrape.NewExtractor(logger)
	harvester := harvest.New(sourceStore, grantStore, fetcher, extractor, logger)

	// Create router with CORS middleware
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}

		c.Next()
	})

	// Mount all route groups on the shared router
	api.NewGrantAPIServer(grantStore, harvester).RegisterRoutes(router)
	sources.NewSourceAPIServer(sourceStore).RegisterRoutes(router)
	config.NewConfigAPIServer(configStore).RegisterRoutes(router)

	addr := getEnv("GRANTSCOUT_API_ADDR", "localhost:8080")
	log.Printf("Starting GrantScout API server on http://%s/api/v1", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
