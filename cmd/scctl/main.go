// The MIT License (MIT)

// Copyright (c) 2017-2020 Uber Technologies Inc.

// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Command scctl exercises the servicecontrol client facade against a
// local echo transport, for smoke-testing a configuration without a live
// upstream control plane.
package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/svcctl/aggregator/common/config"
	"github.com/svcctl/aggregator/common/log/loggerimpl"
	"github.com/svcctl/aggregator/servicecontrol"
	"github.com/svcctl/aggregator/servicecontrol/client"
)

func getRootDir(c *cli.Context) string {
	rootDir := c.String("root")
	if len(rootDir) == 0 {
		var err error
		if rootDir, err = os.Getwd(); err != nil {
			rootDir = "."
		}
	}
	return rootDir
}

func getConfigDir(c *cli.Context) string {
	return path.Join(getRootDir(c), c.String("config"))
}

func loadConfig(c *cli.Context) (config.Config, error) {
	env := strings.TrimSpace(c.String("env"))
	var cfg config.Config
	if err := config.Load(env, getConfigDir(c), c.String("base"), &cfg); err != nil {
		return config.Config{}, fmt.Errorf("failed to load config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func checkHandler(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	logger, err := loggerimpl.NewDevelopment()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	svc := c.String("service")
	cl := client.New(svc, cfg, newEchoTransport(), client.Options{Logger: logger})
	defer cl.Stop() //nolint:errcheck

	resp, err := cl.Check(context.Background(), servicecontrol.CheckRequest{
		ServiceName: svc,
		Operation: servicecontrol.Operation{
			ConsumerID:    c.String("consumer"),
			OperationName: c.String("operation"),
		},
	})
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	if resp.Allowed() {
		fmt.Fprintln(c.App.Writer, "allowed")
	} else {
		fmt.Fprintln(c.App.Writer, "denied")
	}
	fmt.Fprintln(c.App.Writer, cl.Stats().String())
	return nil
}

func buildCLI() *cli.App {
	app := cli.NewApp()
	app.Name = "scctl"
	app.Usage = "servicecontrol aggregation client harness"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Value: ".", Usage: "root directory of execution environment"},
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "config", Usage: "config dir path relative to root"},
		&cli.StringFlag{Name: "base", Value: "servicecontrol", Usage: "config file base name"},
		&cli.StringFlag{Name: "env", Aliases: []string{"e"}, Value: "development", Usage: "runtime environment"},
	}

	app.Commands = []*cli.Command{
		{
			Name:  "check",
			Usage: "issue one check operation against a local echo transport and print the result",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "service", Value: "svc.example.com", Usage: "control-plane service name"},
				&cli.StringFlag{Name: "consumer", Value: "test-consumer", Usage: "consumer id"},
				&cli.StringFlag{Name: "operation", Value: "test-operation", Usage: "operation name"},
			},
			Action: checkHandler,
		},
	}

	return app
}

func main() {
	app := buildCLI()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
