// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Command taskloop evaluates JavaScript files, then runs their short and
// delayed tasks to completion.
//
// Usage:
//
//	taskloop [flags] script.js [script.js ...]
//
// Scripts share a single runtime, and are evaluated in order. The scheduler
// runs after each script. The exit code is 1 if any script or task failed.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/dop251/goja"
	taskloop "github.com/joeycumines/go-taskloop"
	"github.com/joeycumines/go-taskloop/gojaengine"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("taskloop", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "path to YAML config file")
	logLevel := fs.String("log-level", "", "log level override (e.g. debug, info, err, disabled)")
	wait := fs.Bool("wait", false, "wait until each delayed task is due")
	timeout := fs.Duration("timeout", 0, "overall timeout, zero for none")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(fs.Output(), "Usage: taskloop [flags] script.js [script.js ...]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg := DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = LoadConfig(*configFile)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "taskloop: %v\n", err)
			return 1
		}
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *wait {
		cfg.WaitForDue = true
	}
	if *timeout != 0 {
		cfg.Timeout = *timeout
	}
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(stderr, "taskloop: %v\n", err)
		return 1
	}

	level, _ := cfg.Level()
	logger := newLogger(stderr, level, cfg.RateLimits())

	engine, err := newEngine(cfg, logger, stdout)
	if err != nil {
		logger.Err().Err(err).Log(`failed to create engine`)
		return 1
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	var failed bool
	for _, path := range fs.Args() {
		src, err := os.ReadFile(path)
		if err != nil {
			logger.Err().Err(err).Str(`script`, path).Log(`failed to read script`)
			return 1
		}
		if err := engine.RunScript(ctx, path, string(src)); err != nil {
			failed = true
			logger.Err().Err(err).Str(`script`, path).Log(`script failed`)
			if ctx.Err() != nil {
				break
			}
		}
	}

	stats := engine.Scheduler().Stats()
	logger.Info().
		Uint64(`short_tasks`, stats.ShortTasks).
		Uint64(`delayed_tasks`, stats.DelayedTasks).
		Uint64(`failures`, stats.Failures).
		Log(`done`)

	if failed {
		return 1
	}
	return 0
}

func newLogger(w io.Writer, level logiface.Level, limits map[time.Duration]int) *logiface.Logger[logiface.Event] {
	options := []logiface.Option[*stumpy.Event]{
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	}
	if limits != nil {
		options = append(options, stumpy.L.WithCategoryRateLimits(limits))
	}
	return stumpy.L.New(options...).Logger()
}

func newEngine(cfg *Config, logger *logiface.Logger[logiface.Event], stdout io.Writer) (*gojaengine.Engine, error) {
	policy, _ := cfg.Policy()
	options := []gojaengine.Option{
		gojaengine.WithLogger(logger),
		gojaengine.WithSchedulerOptions(
			taskloop.WithResetPolicy(policy),
			taskloop.WithWaitForDue(cfg.WaitForDue),
		),
	}
	if cfg.ConsoleEnabled() {
		options = append(options, gojaengine.WithConsole(stdout))
	}
	if cfg.DisableShortTasks {
		options = append(options, gojaengine.WithoutShortTasks())
	}
	if cfg.DisableTimers {
		options = append(options, gojaengine.WithoutTimers())
	}

	engine, err := gojaengine.New(goja.New(), options...)
	if err != nil {
		return nil, err
	}
	if err := engine.Bind(); err != nil {
		return nil, err
	}
	return engine, nil
}
