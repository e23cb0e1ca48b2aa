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

// Package refresh orchestrates a KPI refresh batch: resolve tracked
// companies, fetch their latest equity model data, pivot the observations
// into KPI tables, and write every export artifact. A single company's
// failure is recorded and never aborts the batch.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/penny-vault/kpi-refresh/backblaze"
	"github.com/penny-vault/kpi-refresh/canalyst"
	"github.com/penny-vault/kpi-refresh/data"
	"github.com/penny-vault/kpi-refresh/exporter"
	"github.com/penny-vault/kpi-refresh/kpitable"
	"github.com/penny-vault/kpi-refresh/library"
	"github.com/penny-vault/kpi-refresh/mappings"
	"github.com/penny-vault/kpi-refresh/period"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ErrNoCompanies = errors.New("no companies selected for refresh")
	ErrNoKPIs      = errors.New("no kpis mapped for company")
)

// Options controls a refresh batch. A nil Tickers slice refreshes every
// company in the mapping file.
type Options struct {
	Tickers   []string
	OutputDir string
	Upload    bool
	SaveDB    bool
}

// Result is everything a refresh batch produced.
type Result struct {
	RunID     uuid.UUID
	Tables    []*kpitable.Table
	Summaries []*data.RunSummary
	Errors    []*exporter.CompanyError
	Artifacts []string
	Manifest  *exporter.Manifest
}

// Run executes a full refresh batch and writes all export artifacts to
// opts.OutputDir.
func Run(ctx context.Context, opts *Options) (*Result, error) {
	runID := uuid.New()
	subLog := log.With().Str("RunID", runID.String()).Logger()
	ctx = subLog.WithContext(ctx)

	maps, err := mappings.Load(viper.GetString("mappings.company_file"),
		viper.GetString("mappings.kpi_file"))
	if err != nil {
		return nil, err
	}

	companies, missing := maps.FilterCompanies(opts.Tickers)
	if len(companies) == 0 {
		return nil, ErrNoCompanies
	}

	result := &Result{
		RunID:     runID,
		Tables:    make([]*kpitable.Table, 0, len(companies)),
		Summaries: make([]*data.RunSummary, 0, len(companies)),
		Errors:    make([]*exporter.CompanyError, 0),
		Artifacts: make([]string, 0),
	}

	for _, ticker := range missing {
		result.Errors = append(result.Errors, &exporter.CompanyError{
			Ticker: ticker,
			Error:  mappings.ErrTickerNotFound.Error(),
		})
	}

	client, err := canalyst.New()
	if err != nil {
		return nil, err
	}

	companyNames := make(map[string]string, len(companies))
	for _, company := range companies {
		companyNames[company.CompanyID] = company.Name

		table, summary, err := FetchCompany(ctx, client, maps, company)
		summary.RunID = runID
		result.Summaries = append(result.Summaries, summary)

		if err != nil {
			subLog.Error().Err(err).Str("Ticker", company.SearchTicker).Msg("company refresh failed")
			result.Errors = append(result.Errors, &exporter.CompanyError{
				Ticker: company.SearchTicker,
				Error:  err.Error(),
			})
			continue
		}

		result.Tables = append(result.Tables, table)
	}

	asOf := time.Now()
	if err := writeArtifacts(result, opts.OutputDir, companyNames, asOf); err != nil {
		return nil, err
	}

	if opts.SaveDB {
		if err := saveToLibrary(ctx, result, companies); err != nil {
			subLog.Error().Err(err).Msg("saving refresh results to database failed")
		}
	}

	if opts.Upload {
		bucket := viper.GetString("backblaze.bucket")
		dirname := asOf.Format("2006-01-02")
		if err := backblaze.UploadAll(result.Artifacts, bucket, dirname); err != nil {
			subLog.Error().Err(err).Str("Bucket", bucket).Msg("uploading artifacts failed")
		}
	}

	subLog.Info().Int("NumCompanies", len(result.Tables)).
		Int("NumErrors", len(result.Errors)).
		Msg("refresh complete")

	return result, nil
}

// FetchCompany retrieves one company's latest model and pivots its KPI
// observations into a table. The returned summary is populated even when an
// error is returned.
func FetchCompany(ctx context.Context, client *canalyst.Client, maps *mappings.Mappings, company *mappings.Company) (*kpitable.Table, *data.RunSummary, error) {
	summary := &data.RunSummary{
		Ticker:    company.SearchTicker,
		CompanyID: company.CompanyID,
		StartTime: time.Now(),
	}
	defer func() {
		summary.EndTime = time.Now()
	}()

	metrics := maps.Metrics(company.CompanyID)
	if len(metrics) == 0 {
		return nil, summary, fmt.Errorf("%w: %s", ErrNoKPIs, company.SearchTicker)
	}

	modelVersion, err := client.LatestModelVersion(ctx, company.CompanyID)
	if err != nil {
		return nil, summary, err
	}
	summary.ModelVersion = modelVersion

	periods, err := client.FetchPeriods(ctx, company.CompanyID, modelVersion)
	if err != nil {
		return nil, summary, err
	}

	catalog := period.NewCatalog(periods)
	builder := kpitable.NewBuilder(company.SearchTicker, company.CompanyID, catalog, metrics)

	codes := make([]string, 0, len(metrics))
	for _, metric := range metrics {
		codes = append(codes, metric.Code)
	}

	observations, err := client.FetchObservations(ctx, company.CompanyID, modelVersion, codes)
	if err != nil {
		return nil, summary, err
	}

	for _, obs := range observations {
		obs.Ticker = company.SearchTicker
		// rejection is already logged and tracked by the builder
		_ = builder.Add(obs)
	}
	summary.NumObservations = len(observations)

	return builder.Build(), summary, nil
}

// writeArtifacts renders every export format into dir and records the
// written file names on the result.
func writeArtifacts(result *Result, dir string, companyNames map[string]string, asOf time.Time) error {
	for _, table := range result.Tables {
		fn, err := exporter.WriteCompanyCSV(dir, table, companyNames[table.CompanyID])
		if err != nil {
			return err
		}
		result.Artifacts = append(result.Artifacts, fn)
	}

	fn, err := exporter.WriteConsolidatedCSV(dir, result.Tables, companyNames)
	if err != nil {
		return err
	}
	result.Artifacts = append(result.Artifacts, fn)

	fn, err = exporter.WriteWorkbook(dir, result.Tables, companyNames, asOf)
	if err != nil {
		return err
	}
	result.Artifacts = append(result.Artifacts, fn)

	fn, err = exporter.WriteParquet(dir, result.Tables, companyNames)
	if err != nil {
		return err
	}
	result.Artifacts = append(result.Artifacts, fn)

	fn, err = exporter.WriteErrorsCSV(dir, result.Errors, asOf)
	if err != nil {
		return err
	}
	if fn != "" {
		result.Artifacts = append(result.Artifacts, fn)
	}

	result.Manifest = exporter.NewManifest(result.RunID, result.Tables, result.Errors,
		period.MaxAnnual, period.MaxQuarterly)
	fn, err = result.Manifest.Write(dir)
	if err != nil {
		return err
	}
	result.Artifacts = append(result.Artifacts, fn)

	return nil
}

// saveToLibrary stores the batch into the configured Postgres library.
func saveToLibrary(ctx context.Context, result *Result, companies []*mappings.Company) error {
	myLibrary := &library.Library{
		DBUrl: viper.GetString("database.url"),
	}
	if err := myLibrary.Connect(ctx); err != nil {
		return err
	}
	defer myLibrary.Close()

	for _, company := range companies {
		if err := myLibrary.SaveCompany(ctx, company.SearchTicker, company.CompanyID,
			company.Name, company.CSIN); err != nil {
			log.Error().Err(err).Str("Ticker", company.SearchTicker).Msg("cannot save company")
		}
	}

	queue := make(chan *data.Observation, 100)
	var wg sync.WaitGroup
	wg.Add(1)
	go myLibrary.SaveObservations(queue, &wg)

	for _, table := range result.Tables {
		sendObservations(queue, table)
	}
	close(queue)
	wg.Wait()

	for _, summary := range result.Summaries {
		var runErr error
		for _, companyErr := range result.Errors {
			if companyErr.Ticker == summary.Ticker {
				runErr = errors.New(companyErr.Error)
				break
			}
		}

		if err := myLibrary.SaveRun(ctx, summary, runErr); err != nil {
			log.Error().Err(err).Str("Ticker", summary.Ticker).Msg("cannot save refresh run")
		}
	}

	return nil
}

// sendObservations converts a table's base rows back into observations for
// database storage. Growth rows are derived and not persisted.
func sendObservations(queue chan<- *data.Observation, table *kpitable.Table) {
	for _, row := range table.Rows {
		if row.Kind != kpitable.Base {
			continue
		}

		for idx, val := range row.Values {
			if val == nil {
				continue
			}

			queue <- &data.Observation{
				Ticker:            table.Ticker,
				CompanyID:         table.CompanyID,
				MetricCode:        row.Metric.Code,
				MetricDescription: row.Metric.Description,
				Units:             row.Units(),
				PeriodName:        table.Columns[idx],
				Value:             val,
				ObservationDate:   table.RetrievedAt,
			}
		}
	}
}
