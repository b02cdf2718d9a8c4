package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
)

const (
	logLevelFlagName  = "log-level"
	traceFileFlagName = "trace-file"
)

var appCommands = []*cli.Command{
	runCommand,
}

func app() *cli.App {
	return &cli.App{
		Name:           "kernsim",
		Usage:          "simulate a page allocator and a cooperative scheduler sharing one arena",
		Commands:       appCommands,
		ExitErrHandler: errHandler,
		Before:         beforeApp,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  logLevelFlagName,
				Value: logrus.WarnLevel.String(),
				Usage: "logrus level: trace, debug, info, warn, error",
			},
			&cli.StringFlag{
				Name:  traceFileFlagName,
				Usage: "write OpenTelemetry spans to this file",
			},
		},
	}
}

func beforeApp(c *cli.Context) error {
	level, err := logrus.ParseLevel(c.String(logLevelFlagName))
	if err != nil {
		return fmt.Errorf("logging setup: %w", err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(c.App.ErrWriter)
	return nil
}

func errHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	n := c.App.Name
	if c.Command != nil {
		if nn := c.Command.FullName(); nn != "" {
			n += " " + nn
		}
	}
	cli.HandleExitCoder(cli.Exit(fmt.Errorf("%s: %w", n, err), 1))
}
