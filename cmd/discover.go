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
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/penny-vault/kpi-refresh/canalyst"
	"github.com/penny-vault/kpi-refresh/mappings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// discoverKPIsCmd represents the discover-kpis command
var discoverKPIsCmd = &cobra.Command{
	Use:   "discover-kpis <ticker>",
	Short: "Interactively select KPIs for a company",
	Long: `The discover-kpis sub-command lists every KPI time series in a company's
latest equity model, grouped by category, and walks you through selecting
the ones to track. Selections are appended to kpi_mappings.csv; series that
are already mapped are skipped.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var confirmed bool

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

		series, err := client.ListTimeSeries(ctx, company.CompanyID, modelVersion, true)
		if err != nil {
			log.Fatal().Err(err).Str("Ticker", ticker).Msg("could not list kpi time series")
		}

		// skip series already selected in kpi_mappings.csv
		existing := make(map[string]bool)
		for _, kpi := range maps.KPIsForCompany(company.CompanyID) {
			existing[kpi.TimeSeriesName] = true
		}

		available := make(map[string]*canalyst.TimeSeries, len(series))
		byCategory := make(map[string][]*canalyst.TimeSeries)
		for _, ts := range series {
			if existing[ts.PrimaryName()] {
				continue
			}

			available[ts.PrimaryName()] = ts
			byCategory[ts.Category.Description] = append(byCategory[ts.Category.Description], ts)
		}

		if len(available) == 0 {
			fmt.Println("every kpi in the latest model is already mapped")
			return
		}

		categories := make([]string, 0, len(byCategory))
		for category := range byCategory {
			categories = append(categories, category)
		}
		sort.Strings(categories)

		// one multi-select group per category, each with its own value slice
		picks := make([]*[]string, 0, len(byCategory))
		groups := make([]*huh.Group, 0, len(byCategory))
		for _, category := range categories {
			options := make([]huh.Option[string], 0, len(byCategory[category]))
			for _, ts := range byCategory[category] {
				label := fmt.Sprintf("%s (%s)", ts.Description, ts.PrimaryName())
				options = append(options, huh.NewOption(label, ts.PrimaryName()))
			}

			pick := make([]string, 0)
			picks = append(picks, &pick)

			groups = append(groups, huh.NewGroup(
				huh.NewMultiSelect[string]().
					Title(fmt.Sprintf("%s KPIs for %s", category, company.SearchTicker)).
					Options(options...).
					Value(&pick),
			))
		}

		form := huh.NewForm(groups...)
		if err := form.Run(); err != nil {
			log.Fatal().Err(err).Msg("failed to run selection wizard")
		}

		selected := make([]string, 0)
		for _, pick := range picks {
			selected = append(selected, *pick...)
		}

		if len(selected) == 0 {
			fmt.Println("no kpis selected")
			return
		}

		selections := make([]*mappings.KPI, 0, len(selected))
		for _, name := range selected {
			ts := available[name]
			selections = append(selections, &mappings.KPI{
				CompanyID:      company.CompanyID,
				TimeSeriesName: ts.PrimaryName(),
				Description:    ts.Description,
				Units:          ts.Unit.Description,
				Category:       ts.Category.Description,
			})
		}

		// Print selection summary
		{
			var sb strings.Builder
			keyword := func(s string) string {
				return lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Render(s)
			}

			fmt.Fprintf(&sb, "%s\n\nTicker: %s\nModel: %s\n\n",
				lipgloss.NewStyle().Bold(true).Render("NEW KPI SELECTIONS"),
				keyword(company.SearchTicker),
				keyword(modelVersion),
			)

			for _, kpi := range selections {
				fmt.Fprintf(&sb, "%s: %s\n", keyword(kpi.TimeSeriesName), kpi.Description)
			}

			fmt.Println(
				lipgloss.NewStyle().
					Width(76).
					BorderStyle(lipgloss.RoundedBorder()).
					BorderForeground(lipgloss.Color("63")).
					Padding(1, 2).
					Render(sb.String()),
			)
		}

		confirmForm := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Add %d kpis to %s?", len(selections), viper.GetString("mappings.kpi_file"))).
					Value(&confirmed),
			),
		)

		if err := confirmForm.Run(); err != nil {
			log.Fatal().Err(err).Msg("failed to run confirmation wizard")
		}

		if !confirmed {
			return
		}

		if err := mappings.AppendKPIs(viper.GetString("mappings.kpi_file"), selections); err != nil {
			log.Fatal().Err(err).Msg("could not append kpis to mapping file")
		}

		log.Info().Int("NumKPIs", len(selections)).Str("Ticker", ticker).Msg("kpi mappings updated")
	},
}

func init() {
	rootCmd.AddCommand(discoverKPIsCmd)
}
