package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gpsclock/internal/config"
	"gpsclock/internal/fixlog"
)

var version = "dev"

func main() {
	var (
		configPath  string
		showVersion bool
		summarize   string
	)
	flag.StringVar(&configPath, "config", "./gpsclock.yaml", "Path to YAML config")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&summarize, "summarize", "", "Summarize a fix log and exit")
	flag.Parse()

	if showVersion {
		fmt.Fprintf(os.Stderr, "gpslogger version %s\n", version)
		return
	}

	if summarize != "" {
		if err := printSummary(summarize); err != nil {
			log.Printf("summarize failed: %v", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	log.Printf("gpslogger starting version=%s", version)
	if err := run(ctx, cfg); err != nil {
		log.Printf("gpslogger stopped: %v", err)
		os.Exit(1)
	}
	log.Printf("gpslogger stopping")
}

func printSummary(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	entries, err := fixlog.ReadAll(f)
	if err != nil {
		return err
	}
	fmt.Print(summarizeFixLog(entries).String())
	return nil
}
