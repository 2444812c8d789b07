package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/alexflint/go-arg"

	"github.com/alan-mat/vectra/internal/config"
	"github.com/alan-mat/vectra/server"
	"github.com/alan-mat/vectra/worker"
)

const (
	ProgramName   = "Vectra"
	Version       = "v0.1.0"
	RepositoryUrl = "github.com/alan-mat/vectra"
)

type serveCmd struct{}

type workerCmd struct{}

type args struct {
	Server *serveCmd  `arg:"subcommand:serve" help:"start the Vectra API server"`
	Worker *workerCmd `arg:"subcommand:work" help:"start the Vectra worker"`

	Config  string `arg:"--config,-c" default:"vectra.yaml" help:"path to the config file"`
	Verbose bool   `arg:"--verbose,-v" help:"enable debug logging"`
}

func (args) Version() string {
	return fmt.Sprintf("%s %s", ProgramName, Version)
}

func (args) Epilogue() string {
	return fmt.Sprintf("For more information visit %s", RepositoryUrl)
}

func main() {
	var args args

	p, err := arg.NewParser(arg.Config{Program: strings.ToLower(ProgramName)}, &args)
	if err != nil {
		log.Fatalf("there was an error in the definition of the Go struct: %v", err)
	}
	p.MustParse(os.Args[1:])

	if p.Subcommand() == nil {
		p.WriteUsage(os.Stdout)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if args.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Read(args.Config)
	if err != nil {
		slog.Error("failed to read config", "path", args.Config, "err", err)
		os.Exit(1)
	}

	var cmd func(config.Config) error

	switch p.Subcommand().(type) {
	case *serveCmd:
		cmd = startServer
	case *workerCmd:
		cmd = startWorker
	default:
		p.FailSubcommand("unrecognized command", p.SubcommandNames()...)
	}

	if err := cmd(cfg); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func startServer(cfg config.Config) error {
	srv := server.New(cfg)
	return srv.Serve()
}

func startWorker(cfg config.Config) error {
	w := worker.New(cfg)
	return w.Start()
}
