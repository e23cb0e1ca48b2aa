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
package canalyst

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// pageEnvelope is the vendor's standard paginated response: a raw results
// array plus a `next` cursor URL that is empty on the last page.
type pageEnvelope struct {
	Results json.RawMessage `json:"results"`
	Next    string          `json:"next"`
	Count   int             `json:"count"`
}

// Company is the vendor's company record.
type Company struct {
	CompanyID            string            `json:"company_id"`
	Name                 string            `json:"name"`
	CountryCode          string            `json:"country_code"`
	Self                 string            `json:"self"`
	EquityModelSeriesSet string            `json:"equity_model_series_set"`
	Tickers              map[string]string `json:"tickers"`
	Sector               companySector     `json:"sector"`
	InCoverage           bool              `json:"is_in_coverage"`
}

type companySector struct {
	Path string `json:"path"`
}

// TimeSeries describes one metric available in a company's equity model.
type TimeSeries struct {
	Slug        string             `json:"slug"`
	Names       []string           `json:"names"`
	Description string             `json:"description"`
	Unit        timeSeriesUnit     `json:"unit"`
	Category    timeSeriesCategory `json:"category"`
	IsKPI       bool               `json:"is_kpi"`
}

type timeSeriesUnit struct {
	Description string `json:"description"`
	Symbol      string `json:"symbol"`
}

type timeSeriesCategory struct {
	Description string `json:"description"`
}

// PrimaryName returns the first vendor name for the series, the identifier
// used everywhere else in the system.
func (ts *TimeSeries) PrimaryName() string {
	if len(ts.Names) == 0 {
		return ts.Slug
	}

	return ts.Names[0]
}

type modelSeries struct {
	Self string `json:"self"`
	CSIN string `json:"csin"`
}

// seriesID extracts the model-series identifier from the record's self URL,
// e.g. ".../equity-model-series/WXYZ0101/" -> "WXYZ0101".
func (series *modelSeries) seriesID() string {
	parts := strings.Split(strings.TrimSuffix(series.Self, "/"), "/")
	return parts[len(parts)-1]
}

type equityModel struct {
	ModelVersion     namedRef `json:"model_version"`
	MostRecentPeriod namedRef `json:"most_recent_period"`
}

type namedRef struct {
	Name string `json:"name"`
}

type apiPeriod struct {
	Name               string `json:"name"`
	PeriodDurationType string `json:"period_duration_type"`
	StartDate          string `json:"start_date"`
	EndDate            string `json:"end_date"`
}

type dataPoint struct {
	TimeSeries dataPointSeries `json:"time_series"`
	Period     apiPeriod       `json:"period"`
	Value      json.RawMessage `json:"value"`
}

type dataPointSeries struct {
	Names       []string       `json:"names"`
	Description string         `json:"description"`
	Unit        timeSeriesUnit `json:"unit"`
}

// parseValue interprets a data point's value field. The vendor serializes
// values as decimal strings; null and empty values both mean "no value".
func parseValue(raw json.RawMessage) (*float64, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	trimmed = strings.Trim(trimmed, `"`)
	if trimmed == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, err
	}

	return &val, nil
}
