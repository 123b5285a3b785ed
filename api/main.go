// @title Vizboard Dataset Service
// @version 0.1
// @description Dataset ingestion backend for the Vizboard analytics dashboard.

// @host localhost:8080
// @BasePath /api
// @query.collection.format multi
// @schemes http

package main

import (
	"log"

	_ "vizboard/dashboard/docs"
	"vizboard/dashboard/internal/app"
	"vizboard/dashboard/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	app.Run(cfg)
}
