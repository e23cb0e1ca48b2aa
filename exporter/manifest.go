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
package exporter

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/penny-vault/kpi-refresh/kpitable"
)

// Manifest is the companion JSON document for a refresh run. Downstream
// consumers use it to verify export completeness, including metrics that
// were requested but returned no data.
type Manifest struct {
	RunID           uuid.UUID       `json:"run_id"`
	Timestamp       time.Time       `json:"timestamp"`
	NumCompanies    int             `json:"num_companies"`
	NumRows         int             `json:"num_rows"`
	Tickers         []string        `json:"tickers"`
	Metrics         []string        `json:"metrics"`
	Periods         []string        `json:"periods"`
	EmptyMetrics    []EmptyMetric   `json:"empty_metrics"`
	CompanyErrors   []*CompanyError `json:"company_errors"`
	AnnualWindow    int             `json:"annual_window"`
	QuarterlyWindow int             `json:"quarterly_window"`
}

// EmptyMetric flags a requested metric for which no data was returned.
type EmptyMetric struct {
	Ticker  string `json:"ticker"`
	KpiCode string `json:"kpi_code"`
}

// NewManifest summarizes a batch of tables and per-company errors.
func NewManifest(runID uuid.UUID, tables []*kpitable.Table, errs []*CompanyError, annualWindow, quarterlyWindow int) *Manifest {
	manifest := &Manifest{
		RunID:           runID,
		Timestamp:       time.Now(),
		NumCompanies:    len(tables),
		CompanyErrors:   errs,
		EmptyMetrics:    make([]EmptyMetric, 0),
		AnnualWindow:    annualWindow,
		QuarterlyWindow: quarterlyWindow,
	}

	tickers := make(map[string]bool)
	metrics := make(map[string]bool)
	periods := make(map[string]bool)

	for _, table := range tables {
		tickers[table.Ticker] = true

		for _, col := range table.Columns {
			periods[col] = true
		}

		for _, row := range table.Rows {
			if row.Kind != kpitable.Base {
				continue
			}

			metrics[row.Metric.Code] = true
			for _, val := range row.Values {
				if val != nil {
					manifest.NumRows++
				}
			}
		}

		for _, metric := range table.EmptyMetrics() {
			manifest.EmptyMetrics = append(manifest.EmptyMetrics, EmptyMetric{
				Ticker:  table.Ticker,
				KpiCode: metric.Code,
			})
		}
	}

	manifest.Tickers = sortedKeys(tickers)
	manifest.Metrics = sortedKeys(metrics)
	manifest.Periods = sortedKeys(periods)

	return manifest
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

// Write saves the manifest as metadata.json in dir.
func (manifest *Manifest) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", err
	}

	fn := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(fn, raw, 0o644); err != nil {
		return "", err
	}

	return fn, nil
}
