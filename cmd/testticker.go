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
	"github.com/penny-vault/kpi-refresh/period"
	"github.com/penny-vault/kpi-refresh/refresh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// testTickerCmd represents the test-ticker command
var testTickerCmd = &cobra.Command{
	Use:   "test-ticker <ticker>",
	Short: "Run a full fetch for one company and show diagnostics",
	Long: `The test-ticker sub-command exercises the complete fetch pipeline for a
single company without writing any artifacts: mapping lookup, model version
resolution, period classification, and KPI data retrieval. Use it to verify
API access and mapping configuration before a full refresh.`,
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

		table, summary, err := refresh.FetchCompany(ctx, client, maps, company)
		if err != nil {
			log.Fatal().Err(err).Str("Ticker", ticker).Msg("fetch failed")
		}

		codes := make([]string, 0)
		for _, metric := range maps.Metrics(company.CompanyID) {
			codes = append(codes, metric.Code)
		}

		forecasts, err := client.FetchForwardObservations(ctx, company.CompanyID, summary.ModelVersion, codes)
		if err != nil {
			log.Error().Err(err).Str("Ticker", ticker).Msg("could not fetch forward estimates")
		}

		numForecast := 0
		for _, obs := range forecasts {
			if obs.IsForecast && obs.Value != nil {
				numForecast++
			}
		}

		numAnnual := 0
		numQuarterly := 0
		for idx := range table.Columns {
			if table.ColumnKinds[idx] == period.Annual {
				numAnnual++
			} else {
				numQuarterly++
			}
		}

		var sb strings.Builder
		keyword := func(s string) string {
			return lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Render(s)
		}

		fmt.Fprintf(&sb,
			"%s\n\nTicker: %s\nCompany: %s\nCompany ID: %s\nModel Version: %s\nObservations: %s\nForward Estimates: %s\nAnnual Periods: %s\nQuarterly Periods: %s\nKPI Rows: %s\nFetch Time: %s\n\n",
			lipgloss.NewStyle().Bold(true).Render("TICKER TEST"),
			keyword(company.SearchTicker),
			keyword(company.Name),
			keyword(company.CompanyID),
			keyword(summary.ModelVersion),
			keyword(fmt.Sprintf("%d", summary.NumObservations)),
			keyword(fmt.Sprintf("%d", numForecast)),
			keyword(fmt.Sprintf("%d", numAnnual)),
			keyword(fmt.Sprintf("%d", numQuarterly)),
			keyword(fmt.Sprintf("%d", len(table.Rows))),
			keyword(summary.EndTime.Sub(summary.StartTime).String()),
		)

		fmt.Fprintln(&sb, lipgloss.NewStyle().Bold(true).Render("Periods"))
		fmt.Fprintf(&sb, "\n%s\n\n", strings.Join(table.Columns, " "))

		fmt.Fprintln(&sb, lipgloss.NewStyle().Bold(true).Render("KPIs with no data"))
		empty := table.EmptyMetrics()
		if len(empty) == 0 {
			fmt.Fprintf(&sb, "\nnone")
		}
		for _, metric := range empty {
			fmt.Fprintf(&sb, "\n%s", keyword(metric.Code))
		}

		fmt.Println(
			lipgloss.NewStyle().
				Width(76).
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("63")).
				Padding(1, 2).
				Render(sb.String()),
		)
	},
}

func init() {
	rootCmd.AddCommand(testTickerCmd)
}
