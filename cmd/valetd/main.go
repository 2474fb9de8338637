package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"valet/internal/config"
	"valet/internal/daemonrun"
)

func main() {
	configFlag := flag.String("config", "", "configuration file path")
	socketFlag := flag.String("socket", "", "IPC socket path override")
	roleFlag := flag.String("role", "all", "worker role to run (all, orchestrator, poster, watchers, supervisor)")
	logLevelFlag := flag.String("log-level", "", "log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, _, _, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	level := *logLevelFlag
	if level == "" {
		level = cfg.Logging.Level
	}

	opts := daemonrun.Options{
		LogLevel:   level,
		SocketPath: *socketFlag,
		Role:       *roleFlag,
	}
	if err := daemonrun.Run(context.Background(), cfg, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
