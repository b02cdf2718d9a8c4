package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	"github.com/viant/afs"
	"github.com/viant/kernsim"
	"gopkg.in/yaml.v3"
)

const (
	configFlagName     = "config"
	arenaPagesFlagName = "arena-pages"
	pageSizeFlagName   = "page-size"
	maxTasksFlagName   = "max-tasks"
	stackPagesFlagName = "stack-pages"
	consoleFlagName    = "console"
	tasksFlagName      = "tasks"
	yieldsFlagName     = "yields"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "run the demo workload until the kernel is idle",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  configFlagName,
			Usage: "YAML kernel configuration URL (file path, mem://, s3://, gs:// ...)",
		},
		&cli.IntFlag{
			Name:  arenaPagesFlagName,
			Usage: "override arena_pages",
		},
		&cli.IntFlag{
			Name:  pageSizeFlagName,
			Usage: "override page_size_bytes",
		},
		&cli.IntFlag{
			Name:  maxTasksFlagName,
			Usage: "override max_tasks",
		},
		&cli.IntFlag{
			Name:  stackPagesFlagName,
			Usage: "override stack_pages",
		},
		&cli.StringFlag{
			Name:  consoleFlagName,
			Usage: "override console: stdout, memory or an afs URL",
		},
		&cli.IntFlag{
			Name:  tasksFlagName,
			Value: 3,
			Usage: "number of worker tasks",
		},
		&cli.IntFlag{
			Name:  yieldsFlagName,
			Value: 2,
			Usage: "number of times each worker yields",
		},
	},
	Action: run,
}

func run(c *cli.Context) (err error) {
	ctx := c.Context
	fs := afs.New()
	config := kernsim.DefaultConfig()
	if URL := c.String(configFlagName); URL != "" {
		if config, err = kernsim.LoadConfig(ctx, fs, URL); err != nil {
			return err
		}
	}
	if c.IsSet(arenaPagesFlagName) {
		config.ArenaPages = c.Int(arenaPagesFlagName)
	}
	if c.IsSet(pageSizeFlagName) {
		config.PageSizeBytes = c.Int(pageSizeFlagName)
	}
	if c.IsSet(maxTasksFlagName) {
		config.MaxTasks = c.Int(maxTasksFlagName)
	}
	if c.IsSet(stackPagesFlagName) {
		config.StackPages = c.Int(stackPagesFlagName)
	}
	if c.IsSet(consoleFlagName) {
		config.Console = c.String(consoleFlagName)
	}

	options := []kernsim.Option{
		kernsim.WithConfig(config),
		kernsim.WithFileSystem(fs),
		kernsim.WithLogger(logrus.NewEntry(logrus.StandardLogger())),
	}
	if traceFile := c.String(traceFileFlagName); traceFile != "" {
		options = append(options, kernsim.WithTracing(c.App.Name, "0.1.0", traceFile))
	}
	kernel, err := kernsim.New(options...)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := kernel.Close(ctx); cErr != nil && err == nil {
			err = cErr
		}
	}()

	load := workload{Workers: c.Int(tasksFlagName), Yields: c.Int(yieldsFlagName)}
	status, err := load.run(ctx, kernel)
	report := struct {
		Status string        `yaml:"status"`
		Stats  kernsim.Stats `yaml:"stats"`
	}{Status: string(status), Stats: kernel.Stats()}
	encoder := yaml.NewEncoder(c.App.Writer)
	encoder.SetIndent(2)
	if eErr := encoder.Encode(report); eErr != nil {
		return fmt.Errorf("failed to write report: %w", eErr)
	}
	return err
}
