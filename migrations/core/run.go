package main

import (
	"embed"

	"github.com/ghuser/fulfillment/pkg/config"
	"github.com/ghuser/fulfillment/pkg/migrator"
)

//go:embed *.sql
var MigrationsFS embed.FS

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := migrator.RunMigrations(cfg.EventStoreDatabaseURL, MigrationsFS); err != nil {
		panic(err)
	}
}
