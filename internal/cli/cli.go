// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the scribe command-line entrypoint: a "run"
// subcommand that drives a registered pipeline's steps to quiescence,
// plus "pipelines"/"steps" introspection commands.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/the-crypt-keeper/scribe/internal/config"
	"github.com/the-crypt-keeper/scribe/internal/llm"
	"github.com/the-crypt-keeper/scribe/internal/logger"
	"github.com/the-crypt-keeper/scribe/internal/pipeline"
	"github.com/the-crypt-keeper/scribe/internal/steps"
	"github.com/the-crypt-keeper/scribe/internal/store"
)

// registeredPipelines holds every pipeline a cmd/scribe entrypoint has
// registered via RegisterPipeline, keyed by Name.
var registeredPipelines = map[string]pipeline.Pipeline{}

// RegisterPipeline makes a pipeline available to the "run" subcommand.
// cmd/scribe registers its built-in pipelines before calling Execute.
func RegisterPipeline(p pipeline.Pipeline) {
	registeredPipelines[p.Name] = p
}

// Execute parses os.Args and dispatches to the requested subcommand.
func Execute() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("missing subcommand")
	}

	switch os.Args[1] {
	case "run":
		return runCommand(os.Args[2:])
	case "pipelines":
		return pipelinesCommand()
	case "steps":
		return stepsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand %q", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `scribe <subcommand> [flags]

Subcommands:
  run        drive a registered pipeline's steps to quiescence
  pipelines  list registered pipeline names
  steps      list the step kinds available to --pipeline

Run 'scribe run -h' for run's flags.
`)
}

func pipelinesCommand() error {
	names := make([]string, 0, len(registeredPipelines))
	for name := range registeredPipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// stepFlags collects repeated -step occurrences into an ordered slice.
type stepFlags []string

func (f *stepFlags) String() string   { return strings.Join(*f, ",") }
func (f *stepFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func stepsCommand(args []string) error {
	fs := flag.NewFlagSet("steps", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg := pipeline.NewRegistry()
	steps.Register(reg, buildBackends(cfg))

	kinds := reg.Kinds()
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Println(kind)
	}
	return nil
}

// buildBackends constructs the shared LLM/image clients a process needs
// for the LLM-family and Text2Image step kinds. Either client is left
// nil (and its step kinds unregistered) if its base-URL environment
// variable isn't set, so a pipeline that never uses them still runs.
func buildBackends(cfg *config.AppConfig) steps.Backends {
	b := steps.Backends{
		Sampler:       llm.Sampler(cfg.LLM.DefaultSampler),
		ImageDefaults: cfg.Image,
	}

	if client, err := llm.NewClient(&cfg.LLM); err == nil {
		b.LLM = client
	} else {
		logger.GetCLILogger().Debug().Err(err).Msg("LLM backend not configured, LLMCompletion/LLMExtraction unavailable")
	}

	if client, err := llm.NewImageClient(&cfg.Image); err == nil {
		b.Image = client
	} else {
		logger.GetCLILogger().Debug().Err(err).Msg("image backend not configured, Text2Image unavailable")
	}

	return b
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	project := fs.String("project", "default", "project name, selects the store file")
	pipelineName := fs.String("pipeline", "", "registered pipeline to run")
	var stepSpecs stepFlags
	fs.Var(&stepSpecs, "step", "NAME[/key=value]... clause selecting a step to run, with optional param overrides (repeatable); omit to run every step the pipeline declares")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *pipelineName == "" {
		return fmt.Errorf("--pipeline is required")
	}
	pl, ok := registeredPipelines[*pipelineName]
	if !ok {
		return fmt.Errorf("unknown pipeline %q (see 'scribe pipelines')", *pipelineName)
	}

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Initialize(&cfg.Log); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.CloseGlobal()
	log := logger.GetCLILogger()

	defs, err := resolveSteps(pl, stepSpecs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(&cfg.Store, *project)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if n, err := st.RecoverOrphanClaims(ctx, cfg.Store.OrphanClaimAge); err != nil {
		return fmt.Errorf("recover orphan claims: %w", err)
	} else if n > 0 {
		log.Warn().Int("count", n).Msg("recovered orphan claims before run")
	}

	reg := pipeline.NewRegistry()
	steps.Register(reg, buildBackends(cfg))

	builtSteps := make([]pipeline.Step, 0, len(defs))
	for _, def := range defs {
		step, err := reg.Build(def.Kind, def.Name, def.InKey, def.OutKey, def.Params)
		if err != nil {
			return fmt.Errorf("pipeline %q: %w", pl.Name, err)
		}
		builtSteps = append(builtSteps, step)
	}

	log.Info().Str("pipeline", pl.Name).Str("project", *project).Int("steps", len(builtSteps)).Msg("starting run")
	dispatcher := pipeline.NewDispatcher(st, builtSteps, cfg.Dispatcher)
	if err := dispatcher.RunToQuiescence(ctx); err != nil {
		return fmt.Errorf("run pipeline %q: %w", pl.Name, err)
	}
	log.Info().Str("pipeline", pl.Name).Msg("run complete")
	return nil
}

// resolveSteps picks which of pl's declared steps to run and applies any
// CLI param overrides. No -step flags means "run every declared step".
func resolveSteps(pl pipeline.Pipeline, specs []string) ([]pipeline.Definition, error) {
	if len(specs) == 0 {
		defs := make([]pipeline.Definition, len(pl.Steps))
		copy(defs, pl.Steps)
		return defs, nil
	}

	defs := make([]pipeline.Definition, 0, len(specs))
	for _, spec := range specs {
		name, overrides, err := pipeline.ParseStepSpec(spec)
		if err != nil {
			return nil, err
		}
		def, err := pl.Resolve(name, overrides)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
