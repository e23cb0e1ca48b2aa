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
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/penny-vault/kpi-refresh/canalyst"
	"github.com/penny-vault/kpi-refresh/mappings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	kpiCategory string
	kpiSearch   string
	kpiAll      bool
)

// listKPIsCmd represents the list-kpis command
var listKPIsCmd = &cobra.Command{
	Use:   "list-kpis <ticker>",
	Short: "List the KPI time series the vendor offers for a company",
	Long: `The list-kpis sub-command queries the latest equity model for a company
and prints every time series flagged as a KPI. Use --category or --search to
narrow the list and --all to include non-KPI time series.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ticker := args[0]

		maps, err := mappings.Load(viper.GetString("mappings.company_file"),
			viper.GetString("mappings.kpi_file"))
		if err != nil {
			log.Fatal().Err(err).Msg("could not load mapping files")
		}

		company, err := maps.CompanyByTicker(ticker)
		if err != nil {
			log.Fatal().Err(err).Str("Ticker", ticker).Msg("ticker is not in company mappings")
		}

		client, err := canalyst.New()
		if err != nil {
			log.Fatal().Err(err).Msg("could not create canalyst client")
		}

		modelVersion, err := client.LatestModelVersion(ctx, company.CompanyID)
		if err != nil {
			log.Fatal().Err(err).Str("Ticker", ticker).Msg("could not resolve latest model version")
		}

		series, err := client.ListTimeSeries(ctx, company.CompanyID, modelVersion, !kpiAll)
		if err != nil {
			log.Fatal().Err(err).Str("Ticker", ticker).Msg("could not list time series")
		}

		bold := lipgloss.NewStyle().Bold(true)
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

		fmt.Println(bold.Render(fmt.Sprintf("%-40s %-24s %-16s %s",
			"CODE", "CATEGORY", "UNITS", "DESCRIPTION")))

		numShown := 0
		for _, ts := range series {
			if kpiCategory != "" && !strings.EqualFold(ts.Category.Description, kpiCategory) {
				continue
			}

			if kpiSearch != "" {
				haystack := strings.ToLower(ts.PrimaryName() + " " + ts.Description)
				if !strings.Contains(haystack, strings.ToLower(kpiSearch)) {
					continue
				}
			}

			numShown++
			fmt.Printf("%-40s %-24s %-16s %s\n",
				ts.PrimaryName(), ts.Category.Description, ts.Unit.Description, ts.Description)
		}

		fmt.Println(dim.Render(fmt.Sprintf("\n%d time series (model %s)", numShown, modelVersion)))
	},
}

func init() {
	rootCmd.AddCommand(listKPIsCmd)

	listKPIsCmd.Flags().StringVar(&kpiCategory, "category", "", "only show kpis in this category")
	listKPIsCmd.Flags().StringVar(&kpiSearch, "search", "", "only show kpis matching this substring")
	listKPIsCmd.Flags().BoolVar(&kpiAll, "all", false, "include time series not flagged as kpis")
}
