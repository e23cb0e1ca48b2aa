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
	"context"
	"time"

	"github.com/hako/durafmt"
	"github.com/penny-vault/kpi-refresh/refresh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	refreshTickers []string
	refreshUpload  bool
	refreshSaveDB  bool
)

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch KPI data and write export artifacts",
	Long: `The refresh sub-command fetches the latest equity model data for every
company in company_mappings.csv (or the subset given with --tickers), builds
KPI tables, and writes CSV, Excel, parquet, and manifest artifacts to the
output directory. A company that fails is recorded in the errors CSV and
does not stop the rest of the batch.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		startTime := time.Now()

		result, err := refresh.Run(ctx, &refresh.Options{
			Tickers:   refreshTickers,
			OutputDir: viper.GetString("output.dir"),
			Upload:    refreshUpload,
			SaveDB:    refreshSaveDB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("refresh failed")
		}

		runTime := time.Since(startTime)

		log.Info().
			Str("RunID", result.RunID.String()).
			Str("RunTime", durafmt.Parse(runTime).String()).
			Int("NumCompanies", len(result.Tables)).
			Int("NumErrors", len(result.Errors)).
			Int("NumArtifacts", len(result.Artifacts)).
			Msg("refresh finished")
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().StringSliceVar(&refreshTickers, "tickers", nil, "restrict the refresh to these tickers")
	refreshCmd.Flags().BoolVar(&refreshUpload, "upload", false, "upload artifacts to backblaze")
	refreshCmd.Flags().BoolVar(&refreshSaveDB, "save-db", false, "save results to the postgres library")
}
