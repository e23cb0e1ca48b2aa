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

// Package mappings loads the company and KPI mapping files that drive a
// refresh. The mapping files are plain CSV so they can be reviewed and
// edited outside of kpirefresh.
package mappings

import (
	"errors"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/penny-vault/kpi-refresh/data"
)

var (
	ErrTickerNotFound = errors.New("ticker not found in company mappings")
)

// Company is a single row of company_mappings.csv. SearchTicker is the
// ticker users refer to on the command line; CompanyID and CSIN are the
// vendor identifiers resolved by `kpirefresh find-csin`.
type Company struct {
	SearchTicker    string `csv:"search_ticker"`
	FoundVia        string `csv:"found_via"`
	CompanyID       string `csv:"company_id"`
	CSIN            string `csv:"csin"`
	Name            string `csv:"name"`
	TickerCanalyst  string `csv:"ticker_canalyst"`
	TickerBloomberg string `csv:"ticker_bloomberg"`
	Sector          string `csv:"sector"`
	Country         string `csv:"country"`
	InCoverage      bool   `csv:"in_coverage"`
}

// KPI is a single row of kpi_mappings.csv; it selects one vendor time
// series for a company and pins the units used for display.
type KPI struct {
	CompanyID      string `csv:"company_id"`
	TimeSeriesName string `csv:"time_series_name"`
	Description    string `csv:"kpi_description"`
	Units          string `csv:"units"`
	Category       string `csv:"category"`
}

// Mappings holds the parsed contents of both mapping files.
type Mappings struct {
	Companies []*Company
	KPIs      []*KPI
}

// Load reads company and KPI mappings from the given CSV files.
func Load(companyFN, kpiFN string) (*Mappings, error) {
	companies, err := readCompanies(companyFN)
	if err != nil {
		return nil, err
	}

	kpis, err := readKPIs(kpiFN)
	if err != nil {
		return nil, err
	}

	return &Mappings{
		Companies: companies,
		KPIs:      kpis,
	}, nil
}

func readCompanies(fn string) ([]*Company, error) {
	fh, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	companies := []*Company{}
	if err := gocsv.UnmarshalFile(fh, &companies); err != nil {
		return nil, err
	}

	return companies, nil
}

func readKPIs(fn string) ([]*KPI, error) {
	fh, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	kpis := []*KPI{}
	if err := gocsv.UnmarshalFile(fh, &kpis); err != nil {
		return nil, err
	}

	return kpis, nil
}

// CompanyByTicker returns the mapping row whose search ticker matches
func (m *Mappings) CompanyByTicker(ticker string) (*Company, error) {
	for _, company := range m.Companies {
		if company.SearchTicker == ticker {
			return company, nil
		}
	}

	return nil, ErrTickerNotFound
}

// FilterCompanies returns the mapping rows for the requested tickers; when
// tickers is empty every configured company is returned. Unknown tickers are
// reported in the second return value so the caller can log them.
func (m *Mappings) FilterCompanies(tickers []string) ([]*Company, []string) {
	if len(tickers) == 0 {
		return m.Companies, nil
	}

	selected := make([]*Company, 0, len(tickers))
	missing := make([]string, 0)

	for _, ticker := range tickers {
		company, err := m.CompanyByTicker(ticker)
		if err != nil {
			missing = append(missing, ticker)
			continue
		}

		selected = append(selected, company)
	}

	return selected, missing
}

// KPIsForCompany returns the selected KPIs for a company in file order.
func (m *Mappings) KPIsForCompany(companyID string) []*KPI {
	kpis := make([]*KPI, 0, len(m.KPIs))
	for _, kpi := range m.KPIs {
		if kpi.CompanyID == companyID {
			kpis = append(kpis, kpi)
		}
	}

	return kpis
}

// Metrics converts the selected KPIs for a company into table metrics.
func (m *Mappings) Metrics(companyID string) []data.Metric {
	kpis := m.KPIsForCompany(companyID)
	metrics := make([]data.Metric, 0, len(kpis))

	for _, kpi := range kpis {
		metrics = append(metrics, data.Metric{
			Code:        kpi.TimeSeriesName,
			Description: kpi.Description,
			Units:       kpi.Units,
		})
	}

	return metrics
}

// AppendCompany adds a new company row to company_mappings.csv
func AppendCompany(fn string, company *Company) error {
	companies, err := readCompanies(fn)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		companies = []*Company{}
	}

	companies = append(companies, company)

	fh, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer fh.Close()

	return gocsv.MarshalFile(&companies, fh)
}

// AppendKPIs adds KPI selections to kpi_mappings.csv, skipping rows that
// are already present for the company.
func AppendKPIs(fn string, selections []*KPI) error {
	kpis, err := readKPIs(fn)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		kpis = []*KPI{}
	}

	existing := make(map[string]bool, len(kpis))
	for _, kpi := range kpis {
		existing[kpi.CompanyID+"|"+kpi.TimeSeriesName] = true
	}

	for _, sel := range selections {
		if existing[sel.CompanyID+"|"+sel.TimeSeriesName] {
			continue
		}
		kpis = append(kpis, sel)
	}

	fh, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer fh.Close()

	return gocsv.MarshalFile(&kpis, fh)
}
