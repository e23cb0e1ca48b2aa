// Copyright 2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kpirefresh",
	Short: "kpirefresh builds KPI dashboards from Canalyst equity model data",
	Long: `kpirefresh is a command line utility for refreshing company KPI data
from the Canalyst (Tegus) modelverse API. For each tracked company it pulls
the latest equity model, extracts the KPI time series selected in the
mapping files, and pivots them into review-ready tables covering the five
most recent fiscal years and twelve most recent fiscal quarters with
quarter-over-quarter and year-over-year growth.

Tables are exported as per-company CSV files, a consolidated CSV, a
formatted Excel workbook, a parquet file, and a JSON manifest describing
the run. Results can also be stored in a PostgreSQL library and uploaded
to Backblaze B2.

Which companies and KPIs are refreshed is controlled by two mapping files:
company_mappings.csv selects companies (see find-csin to resolve vendor
identifiers) and kpi_mappings.csv selects KPIs per company (see
discover-kpis to browse what the vendor offers).`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.kpirefresh.toml)")

	rootCmd.PersistentFlags().String("company-mappings", "company_mappings.csv", "company mappings CSV file")
	if err := viper.BindPFlag("mappings.company_file", rootCmd.PersistentFlags().Lookup("company-mappings")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for company-mappings failed")
	}

	rootCmd.PersistentFlags().String("kpi-mappings", "kpi_mappings.csv", "kpi mappings CSV file")
	if err := viper.BindPFlag("mappings.kpi_file", rootCmd.PersistentFlags().Lookup("kpi-mappings")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for kpi-mappings failed")
	}

	rootCmd.PersistentFlags().String("output-dir", "output", "directory to write export artifacts to")
	if err := viper.BindPFlag("output.dir", rootCmd.PersistentFlags().Lookup("output-dir")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for output-dir failed")
	}

	rootCmd.PersistentFlags().Float64("rate-limit", 5.0, "maximum API requests per second")
	if err := viper.BindPFlag("canalyst.rate_limit", rootCmd.PersistentFlags().Lookup("rate-limit")); err != nil {
		log.Panic().Err(err).Msg("BindPFlag for rate-limit failed")
	}

	if err := viper.BindEnv("canalyst.token", "CANALYST_API_TOKEN"); err != nil {
		log.Panic().Err(err).Msg("BindEnv for canalyst.token failed")
	}

	if err := viper.BindEnv("database.url", "DATABASE_URL"); err != nil {
		log.Panic().Err(err).Msg("BindEnv for database.url failed")
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".kpirefresh" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("toml")
		viper.SetConfigName(".kpirefresh")
	}

	viper.SetDefault("scheduler.time", "06:00")
	viper.SetDefault("scheduler.timezone", "US/Pacific")

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Info().Str("ConfigFN", viper.ConfigFileUsed()).Msg("Using config file")
	}
}
