/*
Copyright 2025 Pledger Authors.

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

	"github.com/pledgerhq/pledger"
	"github.com/pledgerhq/pledger/config"
	"github.com/pledgerhq/pledger/database"
	"github.com/pledgerhq/pledger/internal/notification"
)

// Pledger represents the CLI application, encapsulating the root Cobra command.
type Pledger struct {
	cmd *cobra.Command
}

// pledgerInstance holds the service instance and its configuration for the
// lifetime of a CLI invocation.
type pledgerInstance struct {
	pledger *pledger.Pledger
	cnf     *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the service instance
// before any subcommand runs.
func preRun(app *pledgerInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("pledger.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newPledger, err := setupPledger(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.pledger = newPledger
		app.cnf = cnf

		return nil
	}
}

// setupPledger connects the data source and builds the service instance.
func setupPledger(cfg *config.Configuration) (*pledger.Pledger, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newPledger, err := pledger.NewPledger(db)
	if err != nil {
		return nil, fmt.Errorf("error creating pledger: %v", err)
	}
	return newPledger, nil
}

// NewCLI creates the command-line interface for the Pledger application.
func NewCLI() *Pledger {
	var configFile string
	b := &pledgerInstance{}

	var rootCmd = &cobra.Command{
		Use:   "pledger",
		Short: "Financial backbone for collectives",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./pledger.json", "Configuration file for pledger")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(configCommands())

	return &Pledger{cmd: rootCmd}
}

func (w Pledger) executeCLI() {
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
