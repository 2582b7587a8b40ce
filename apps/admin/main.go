package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/fieldkey"
	logsvc "github.com/trezcool/academia/services/logger"
	"github.com/trezcool/academia/storage/database"
)

func main() {
	os.Exit(run())
}

func run() int {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds), conf)
	defer logger.Flush()

	// set up DB
	ctx, cancel := context.WithTimeout(context.Background(), conf.Database.PingTTL)
	store, err := database.Open(ctx, conf)
	cancel()
	if err != nil {
		logger.Error("opening database", err)
		return 1
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("closing database", err)
		}
	}()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	fieldkey.InitValidators(validate, translator)

	// start CLI
	cli := newCommandLine(conf, store, validate, os.Stdout)
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(err.Error(), err)
		}
		return 1
	}
	return 0
}
