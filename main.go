package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cppla/microblog/app"
	"github.com/cppla/microblog/config"
	"github.com/cppla/microblog/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	if cfg.SecretKey == config.DefaultSecretKey {
		utils.Sugar.Warn("SECRET_KEY is the built-in development value; set it before exposing the site")
	}

	db, err := config.OpenDatabase(cfg)
	if err != nil {
		utils.Sugar.Fatalf("open database: %v", err)
	}
	applied, err := config.Migrate(db)
	if err != nil {
		utils.Sugar.Fatalf("migrate database: %v", err)
	}
	for _, name := range applied {
		utils.Sugar.Infow("applied migration", "name", name)
	}

	application, err := app.New(cfg, db)
	if err != nil {
		utils.Sugar.Fatalf("build app: %v", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			utils.Sugar.Warnf("shutdown: %v", err)
		}
	}()

	if n, err := application.PromoteAdmins(context.Background()); err != nil {
		utils.Sugar.Warnf("promote admins: %v", err)
	} else if n > 0 {
		utils.Sugar.Infof("granted admin to %d existing account(s)", n)
	}

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, application.Handler()); err != nil {
		utils.Sugar.Errorf("server stopped with error: %v", err)
	}
}
