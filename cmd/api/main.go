package main

import (
	"agmarknet-api/api"
	"agmarknet-api/extractor"
	"agmarknet-api/internal/types"
	"agmarknet-api/utils"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	logger := utils.NewLogger(false)
	config := types.ConfigFromEnv()

	logger.Infof("Using search form %s (parse mode %s, max %d concurrent scrapes)",
		config.SearchURL, config.ParseMode, config.MaxConcurrentRequests)

	prices := extractor.NewPriceExtractor(config, logger)
	defer prices.Close()

	server := api.NewServer(config, logger, prices)
	if err := server.Start(); err != nil {
		logger.Fatalf("API server stopped: %v", err)
	}
}
