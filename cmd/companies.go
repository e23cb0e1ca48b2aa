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
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/penny-vault/kpi-refresh/mappings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// listCompaniesCmd represents the list-companies command
var listCompaniesCmd = &cobra.Command{
	Use:   "list-companies",
	Short: "List the companies configured in company_mappings.csv",
	Run: func(cmd *cobra.Command, args []string) {
		maps, err := mappings.Load(viper.GetString("mappings.company_file"),
			viper.GetString("mappings.kpi_file"))
		if err != nil {
			log.Fatal().Err(err).Msg("could not load mapping files")
		}

		p := message.NewPrinter(language.English)
		bold := lipgloss.NewStyle().Bold(true)
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

		fmt.Println(bold.Render(fmt.Sprintf("%-10s %-32s %-34s %-6s %s",
			"TICKER", "NAME", "COMPANY ID", "KPIS", "COVERAGE")))

		for _, company := range maps.Companies {
			coverage := "in coverage"
			if !company.InCoverage {
				coverage = dim.Render("not covered")
			}

			numKPIs := len(maps.KPIsForCompany(company.CompanyID))

			fmt.Println(p.Sprintf("%-10s %-32s %-34s %-6d %s",
				company.SearchTicker, company.Name, company.CompanyID, numKPIs, coverage))
		}

		fmt.Println(dim.Render(p.Sprintf("\n%d companies, %d kpi selections",
			len(maps.Companies), len(maps.KPIs))))
	},
}

func init() {
	rootCmd.AddCommand(listCompaniesCmd)
}
