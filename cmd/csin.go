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
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/penny-vault/kpi-refresh/canalyst"
	"github.com/penny-vault/kpi-refresh/mappings"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	csinTickerType string
	csinSave       bool

	errTickerNotFound = errors.New("no company matched ticker")
)

// findCSINCmd represents the find-csin command
var findCSINCmd = &cobra.Command{
	Use:   "find-csin <ticker>",
	Short: "Resolve a ticker to its vendor company id and CSIN",
	Long: `The find-csin sub-command searches the vendor's company catalog for a
ticker and prints the matching company id and CSIN. By default every
identifier system is tried in order (canalyst, bloomberg, capiq, factset,
thomson) along with region-qualified variants like AAPL_US; use --type to
search a single system. With --save the first match is appended to
company_mappings.csv.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		ticker := args[0]

		client, err := canalyst.New()
		if err != nil {
			log.Fatal().Err(err).Msg("could not create canalyst client")
		}

		company, foundVia, err := findCompany(ctx, client, ticker, csinTickerType)
		if err != nil {
			log.Fatal().Err(err).Str("Ticker", ticker).Msg("search failed")
		}

		csin, err := client.CSIN(ctx, company.CompanyID)
		if err != nil {
			log.Fatal().Err(err).Str("Ticker", ticker).Msg("could not resolve csin")
		}

		fmt.Printf("Ticker: %s\nFound Via: %s\nName: %s\nCompany ID: %s\nCSIN: %s\nSector: %s\nCountry: %s\nIn Coverage: %t\n",
			ticker, foundVia, company.Name, company.CompanyID, csin,
			company.Sector.Path, company.CountryCode, company.InCoverage)

		if csinSave {
			if err := saveCompanyMapping(ticker, foundVia, company, csin); err != nil {
				log.Fatal().Err(err).Str("Ticker", ticker).Msg("could not save company mapping")
			}
			log.Info().Str("Ticker", ticker).Msg("company mapping saved")
		}
	},
}

// bulkFindCSINCmd represents the bulk-find-csin command
var bulkFindCSINCmd = &cobra.Command{
	Use:   "bulk-find-csin <file>",
	Short: "Resolve a file of tickers to vendor identifiers",
	Long: `The bulk-find-csin sub-command reads tickers from a file (one per line,
blank lines and lines starting with # are skipped), resolves each one
exactly like find-csin, and appends the matches to company_mappings.csv.
Failures are logged and do not stop the rest of the file.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		fh, err := os.Open(args[0])
		if err != nil {
			log.Fatal().Err(err).Str("FileName", args[0]).Msg("could not open ticker file")
		}
		defer fh.Close()

		client, err := canalyst.New()
		if err != nil {
			log.Fatal().Err(err).Msg("could not create canalyst client")
		}

		numFound := 0
		numFailed := 0

		scanner := bufio.NewScanner(fh)
		for scanner.Scan() {
			ticker := strings.TrimSpace(scanner.Text())
			if ticker == "" || strings.HasPrefix(ticker, "#") {
				continue
			}

			company, foundVia, err := findCompany(ctx, client, ticker, csinTickerType)
			if err != nil {
				log.Error().Err(err).Str("Ticker", ticker).Msg("search failed")
				numFailed++
				continue
			}

			csin, err := client.CSIN(ctx, company.CompanyID)
			if err != nil {
				log.Error().Err(err).Str("Ticker", ticker).Msg("could not resolve csin")
				numFailed++
				continue
			}

			if err := saveCompanyMapping(ticker, foundVia, company, csin); err != nil {
				log.Error().Err(err).Str("Ticker", ticker).Msg("could not save company mapping")
				numFailed++
				continue
			}

			log.Info().Str("Ticker", ticker).Str("CompanyID", company.CompanyID).
				Str("CSIN", csin).Str("FoundVia", foundVia).Msg("resolved ticker")
			numFound++
		}

		if err := scanner.Err(); err != nil {
			log.Fatal().Err(err).Str("FileName", args[0]).Msg("error reading ticker file")
		}

		log.Info().Int("NumFound", numFound).Int("NumFailed", numFailed).Msg("bulk search finished")
	},
}

// findCompany searches one identifier system, or all of them for "auto",
// returning the first match and the system it was found with.
func findCompany(ctx context.Context, client *canalyst.Client, ticker, tickerType string) (*canalyst.Company, string, error) {
	tickerTypes := []string{tickerType}
	if tickerType == "auto" {
		tickerTypes = canalyst.TickerTypes
	}

	for _, searchType := range tickerTypes {
		companies, err := client.SearchCompanies(ctx, ticker, searchType)
		if err != nil {
			return nil, "", err
		}

		if len(companies) > 0 {
			return companies[0], searchType, nil
		}
	}

	return nil, "", fmt.Errorf("%w: %s", errTickerNotFound, ticker)
}

func saveCompanyMapping(ticker, foundVia string, company *canalyst.Company, csin string) error {
	return mappings.AppendCompany(viper.GetString("mappings.company_file"), &mappings.Company{
		SearchTicker:    ticker,
		FoundVia:        foundVia,
		CompanyID:       company.CompanyID,
		CSIN:            csin,
		Name:            company.Name,
		TickerCanalyst:  company.Tickers["canalyst"],
		TickerBloomberg: company.Tickers["bloomberg"],
		Sector:          company.Sector.Path,
		Country:         company.CountryCode,
		InCoverage:      company.InCoverage,
	})
}

func init() {
	rootCmd.AddCommand(findCSINCmd)
	rootCmd.AddCommand(bulkFindCSINCmd)

	findCSINCmd.Flags().StringVar(&csinTickerType, "type", "auto", "identifier system to search (auto, canalyst, bloomberg, capiq, factset, thomson)")
	findCSINCmd.Flags().BoolVar(&csinSave, "save", false, "append the first match to company_mappings.csv")
	bulkFindCSINCmd.Flags().StringVar(&csinTickerType, "type", "auto", "identifier system to search (auto, canalyst, bloomberg, capiq, factset, thomson)")
}
