/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/payq"
	"github.com/blnkfinance/payq/config"
	"github.com/blnkfinance/payq/database"
	"github.com/blnkfinance/payq/internal/notification"
)

// Payq represents the CLI application, encapsulating the root Cobra command.
type Payq struct {
	cmd *cobra.Command
}

// payqInstance holds the runtime Payq and the configuration it was built from.
type payqInstance struct {
	payq *payq.Payq
	cnf  *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration from configFile and builds the Payq instance before any command runs.
func preRun(app *payqInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		// migrations and config printing do not need redis or the processor
		if cmd.Name() == "up" || cmd.Name() == "down" || cmd.Name() == "config" {
			app.cnf = cnf
			return nil
		}

		newPayq, err := setupPayq(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.payq = newPayq
		app.cnf = cnf
		return nil
	}
}

// setupPayq connects to Postgres and builds a Payq on top of it.
func setupPayq(cfg *config.Configuration) (*payq.Payq, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newPayq, err := payq.NewPayq(db)
	if err != nil {
		return nil, fmt.Errorf("error creating payq: %v", err)
	}
	return newPayq, nil
}

// NewCLI creates the root command with the server, workers, migrate and config subcommands.
func NewCLI() *Payq {
	var configFile string
	p := &payqInstance{}

	var rootCmd = &cobra.Command{
		Use:   "payq",
		Short: "Outbound payment queue",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./payq.json", "Configuration file for payq")
	rootCmd.PersistentPreRunE = preRun(p, &configFile)

	rootCmd.AddCommand(serverCommands(p))
	rootCmd.AddCommand(workerCommands(p))
	rootCmd.AddCommand(migrateCommands(p))
	rootCmd.AddCommand(configCommands())

	return &Payq{cmd: rootCmd}
}

func (w Payq) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
