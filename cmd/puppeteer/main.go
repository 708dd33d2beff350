package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/yola1107/puppeteer/internal/conf"
	"github.com/yola1107/puppeteer/library/log/zap"
	"github.com/yola1107/puppeteer/log"
)

var (
	flagconf string // -conf path
	tickRate int
	autosave time.Duration
	pawns    int
)

func init() {
	flag.StringVar(&flagconf, "conf", "", "config path, e.g. -conf config.yaml")
	flag.IntVar(&tickRate, "tps", 60, "simulation ticks per second")
	flag.DurationVar(&autosave, "autosave", 30*time.Second, "autosave interval")
	flag.IntVar(&pawns, "pawns", 5, "pawns in the demo colony")
}

func main() {
	flag.Parse()

	bc, err := conf.Load(flagconf)
	if err != nil {
		panic(err)
	}

	logger := zap.NewLogger(bc.Log)
	log.SetLogger(logger)
	defer logger.Close()

	colony := newColony(pawns)
	svc, cleanup, err := wireService(bc, colony)
	if err != nil {
		panic(err)
	}
	defer cleanup()
	colony.registerJobs(svc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		panic(err)
	}
	log.Infof("%s %s started, relay=%s", conf.Name, conf.Version, svc.Client().URL())

	colony.run(ctx, svc, time.Second/time.Duration(max(tickRate, 1)), autosave)

	svc.Saved()
	if err := svc.Stop(); err != nil {
		log.Errorf("stop: %v", err)
	}
}
