// Command corewar assembles a set of bot programs, loads them into a
// shared battle core, and runs the battle to completion, printing a
// summary of the outcome. It mirrors the shape of the teacher's
// single-process emulator entrypoint: flag parsing, an slog logger,
// a goroutine-driven simulation with a control channel, and a signal
// handler for graceful shutdown.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/corewar/battle"
	"github.com/rcornwell/corewar/config"
	"github.com/rcornwell/corewar/event"
	"github.com/rcornwell/corewar/util/logger"
)

// Exit codes (spec.md §6).
const (
	exitSuccess = 0
	exitAssemblyError = 1
	exitRuntimeError = 2
	exitInvalidConfig = 3
)

var log *slog.Logger

func main() {
	os.Exit(run())
}

func run() int {
	optConfig := getopt.StringLong("config", 'c', "", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optTurns := getopt.IntLong("turns", 't', 0, "Maximum turns to run (0 = use configured max_turns)")
	optVerbose := getopt.BoolLong("verbose", 'v', "Print every event as it happens")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		return exitSuccess
	}

	var file *os.File
	if *optLogFile != "" {
		f, err := os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "corewar: %v\n", err)
			return exitInvalidConfig
		}
		file = f
		defer file.Close()
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	debug := false
	log = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel}, &debug))
	slog.SetDefault(log)

	cfg := config.Default()
	if *optConfig != "" {
		loaded, err := config.Load(*optConfig)
		if err != nil {
			log.Error("loading configuration", "error", err)
			return exitInvalidConfig
		}
		cfg = loaded
	}
	if *optTurns > 0 {
		cfg.MaxTurns = uint64(*optTurns)
	}

	bots := getopt.Args()
	if len(bots) == 0 {
		fmt.Fprintln(os.Stderr, "corewar: no bot source files given")
		getopt.Usage()
		return exitInvalidConfig
	}

	b := battle.New(cfg)

	for _, path := range bots {
		src, err := os.ReadFile(path)
		if err != nil {
			log.Error("reading bot source", "path", path, "error", err)
			return exitAssemblyError
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if _, err := b.LoadBot(name, string(src)); err != nil {
			log.Error("loading bot", "name", name, "error", err)
			return exitAssemblyError
		}
		log.Info("loaded bot", "name", name, "path", path)
	}

	if *optVerbose {
		ch := make(chan event.Event, 256)
		b.Subscribe(ch)
		go func() {
			for ev := range ch {
				fmt.Printf("turn=%d %s pid=%d bot=%s\n", ev.Turn, ev.Kind, ev.ProcessID, ev.OwnerBot)
			}
		}()
	}

	if err := b.Start(); err != nil {
		log.Error("starting battle", "error", err)
		return exitRuntimeError
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		b.Wait()
		close(done)
	}()

	select {
	case <-sigChan:
		log.Info("received shutdown signal, aborting battle")
		b.Abort()
	case <-done:
	}

	snap := b.Snapshot()
	result := snap.Result
	if result == nil {
		fmt.Println("battle did not complete")
		return exitRuntimeError
	}

	if result.Winner != "" {
		fmt.Printf("winner: %s (turns=%d, reason=%s)\n", result.Winner, result.Turns, result.Reason)
	} else {
		fmt.Printf("no winner (turns=%d, reason=%s)\n", result.Turns, result.Reason)
	}
	for _, p := range snap.Processes {
		fmt.Printf("  pid=%d bot=%s state=%s pc=%d cycles=%d\n", p.ID, p.OwnerBot, p.State, p.PC, p.CyclesUsed)
	}

	return exitSuccess
}
