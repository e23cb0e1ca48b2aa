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

// Package canalyst is a client for the Canalyst/Tegus REST API. All calls
// are rate limited against a configured requests-per-second ceiling,
// retried a bounded number of times on transient failures, and follow the
// vendor's next-cursor pagination until exhausted.
package canalyst

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/penny-vault/kpi-refresh/data"
	"github.com/penny-vault/kpi-refresh/period"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.canalyst.com/api"

	// maxPages is a protective bound on cursor pagination so a misbehaving
	// `next` cursor cannot put the client into an infinite loop
	maxPages = 1000

	retryAttempts     = 3
	retryWaitMin      = 4 * time.Second
	retryWaitMax      = 10 * time.Second
	defaultRateLimit  = 5.0
	defaultPageSize   = "200"
	dataPointPageSize = "500"
)

var (
	ErrMissingToken      = errors.New("canalyst API token is not configured")
	ErrInvalidStatusCode = errors.New("invalid status code received")
	ErrCompanyNotFound   = errors.New("company not found")
	ErrNoModelSeries     = errors.New("no equity model series found for company")
	ErrMalformedRecord   = errors.New("malformed vendor record")
	ErrTooManyPages      = errors.New("pagination cursor did not terminate")
)

// TickerTypes are the identifier systems the /companies/ endpoint can be
// searched by, in the order find-csin tries them.
var TickerTypes = []string{"canalyst", "bloomberg", "capiq", "factset", "thomson"}

var tickerParams = map[string]string{
	"canalyst":  "ticker_canalyst",
	"bloomberg": "ticker_bloomberg",
	"capiq":     "ticker_capiq",
	"factset":   "ticker_factset",
	"thomson":   "ticker_thomson",
}

// tickerSuffixes are appended to a bare ticker when an exact search returns
// nothing; vendor tickers are region qualified (AAPL -> AAPL_US).
var tickerSuffixes = []string{"_US", "_CN", "_CA", "_GB"}

type Client struct {
	api     *resty.Client
	limiter *rate.Limiter

	// companyID -> model series ID; one lookup per company per process
	seriesIDs *haxmap.Map[string, string]
}

// New creates a client from viper configuration. A missing API token is a
// fatal configuration error reported before any network call is made.
func New() (*Client, error) {
	token := viper.GetString("canalyst.token")
	if token == "" {
		return nil, ErrMissingToken
	}

	baseURL := viper.GetString("canalyst.base_url")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	requestsPerSecond := viper.GetFloat64("canalyst.rate_limit")
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRateLimit
	}

	api := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(retryAttempts).
		SetRetryWaitTime(retryWaitMin).
		SetRetryMaxWaitTime(retryWaitMax).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() == 429 || resp.StatusCode() >= 500
		}).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// honor the vendor's Retry-After on rate-limit responses
			if resp != nil {
				if seconds, err := strconv.Atoi(resp.Header().Get("Retry-After")); err == nil && seconds > 0 {
					return time.Duration(seconds) * time.Second, nil
				}
			}
			return 0, nil
		})

	return &Client{
		api:       api,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		seriesIDs: haxmap.New[string, string](),
	}, nil
}

// RestyClient exposes the underlying resty client for transport injection
func (client *Client) RestyClient() *resty.Client {
	return client.api
}

// get issues a single rate-limited GET and decodes the page envelope.
func (client *Client) get(ctx context.Context, url string, params map[string]string) (*pageEnvelope, error) {
	logger := zerolog.Ctx(ctx)

	if err := client.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var envelope pageEnvelope
	req := client.api.R().SetContext(ctx).SetResult(&envelope)
	if params != nil {
		req.SetQueryParams(params)
	}

	resp, err := req.Get(url)
	if err != nil {
		logger.Error().Err(err).Str("URL", url).Msg("resty returned an error when querying canalyst")
		return nil, err
	}

	if resp.StatusCode() >= 300 {
		logger.Error().Int("StatusCode", resp.StatusCode()).Str("URL", url).
			Str("ResponseBody", string(resp.Body())).
			Msg("received an invalid status code when querying canalyst")
		return nil, fmt.Errorf("%w (%d): %s", ErrInvalidStatusCode, resp.StatusCode(), url)
	}

	return &envelope, nil
}

// getPages follows the next cursor until exhausted, invoking each for every
// page of results.
func (client *Client) getPages(ctx context.Context, url string, params map[string]string, each func(results json.RawMessage) error) error {
	logger := zerolog.Ctx(ctx)

	for page := 0; page < maxPages; page++ {
		envelope, err := client.get(ctx, url, params)
		if err != nil {
			return err
		}

		if len(envelope.Results) > 0 {
			if err := each(envelope.Results); err != nil {
				return err
			}
		}

		if envelope.Next == "" {
			return nil
		}

		logger.Debug().Str("Next", envelope.Next).Int("Page", page).Msg("following pagination cursor")

		// the next cursor is an absolute URL carrying the query parameters
		url = envelope.Next
		params = nil
	}

	return fmt.Errorf("%w: exceeded %d pages for %s", ErrTooManyPages, maxPages, url)
}

// CompanyByTicker looks up a company by its vendor ticker (e.g. AAPL_US).
func (client *Client) CompanyByTicker(ctx context.Context, ticker string) (*Company, error) {
	envelope, err := client.get(ctx, "/companies/", map[string]string{
		"ticker_canalyst": ticker,
		"page_size":       "1",
	})
	if err != nil {
		return nil, err
	}

	companies := make([]*Company, 0, 1)
	if len(envelope.Results) > 0 {
		if err := json.Unmarshal(envelope.Results, &companies); err != nil {
			return nil, err
		}
	}

	if len(companies) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrCompanyNotFound, ticker)
	}

	return companies[0], nil
}

// SearchCompanies searches /companies/ by the given identifier system. When
// the bare ticker matches nothing, region-qualified variants are tried.
func (client *Client) SearchCompanies(ctx context.Context, ticker, tickerType string) ([]*Company, error) {
	paramName, ok := tickerParams[tickerType]
	if !ok {
		paramName = tickerParams["canalyst"]
	}

	candidates := append([]string{ticker}, suffixed(ticker)...)

	for _, candidate := range candidates {
		envelope, err := client.get(ctx, "/companies/", map[string]string{
			paramName:   candidate,
			"page_size": "50",
		})
		if err != nil {
			return nil, err
		}

		companies := make([]*Company, 0, 50)
		if len(envelope.Results) > 0 {
			if err := json.Unmarshal(envelope.Results, &companies); err != nil {
				return nil, err
			}
		}

		if len(companies) > 0 {
			return companies, nil
		}
	}

	return nil, nil
}

func suffixed(ticker string) []string {
	out := make([]string, 0, len(tickerSuffixes))
	for _, suffix := range tickerSuffixes {
		out = append(out, ticker+suffix)
	}
	return out
}

// seriesID resolves (and caches) the equity-model-series ID for a company.
func (client *Client) seriesID(ctx context.Context, companyID string) (string, error) {
	if cached, ok := client.seriesIDs.Get(companyID); ok {
		return cached, nil
	}

	envelope, err := client.get(ctx, "/equity-model-series/", map[string]string{
		"company_id": companyID,
	})
	if err != nil {
		return "", err
	}

	series := make([]*modelSeries, 0, 1)
	if len(envelope.Results) > 0 {
		if err := json.Unmarshal(envelope.Results, &series); err != nil {
			return "", err
		}
	}

	if len(series) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoModelSeries, companyID)
	}

	seriesID := series[0].seriesID()
	client.seriesIDs.Set(companyID, seriesID)

	return seriesID, nil
}

// CSIN returns the company's security identifier from its primary model
// series.
func (client *Client) CSIN(ctx context.Context, companyID string) (string, error) {
	envelope, err := client.get(ctx, "/equity-model-series/", map[string]string{
		"company_id": companyID,
		"is_primary": "true",
	})
	if err != nil {
		return "", err
	}

	series := make([]*modelSeries, 0, 1)
	if len(envelope.Results) > 0 {
		if err := json.Unmarshal(envelope.Results, &series); err != nil {
			return "", err
		}
	}

	if len(series) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoModelSeries, companyID)
	}

	return series[0].CSIN, nil
}

// LatestModelVersion returns the name of the newest equity model for the
// company, e.g. Q2-2025.20.
func (client *Client) LatestModelVersion(ctx context.Context, companyID string) (string, error) {
	seriesID, err := client.seriesID(ctx, companyID)
	if err != nil {
		return "", err
	}

	if err := client.limiter.Wait(ctx); err != nil {
		return "", err
	}

	var model equityModel
	url := fmt.Sprintf("/equity-model-series/%s/equity-models/latest/", seriesID)

	resp, err := client.api.R().SetContext(ctx).SetResult(&model).Get(url)
	if err != nil {
		return "", err
	}

	if resp.StatusCode() >= 300 {
		return "", fmt.Errorf("%w (%d): %s", ErrInvalidStatusCode, resp.StatusCode(), url)
	}

	return model.ModelVersion.Name, nil
}

// ListTimeSeries returns the time series catalog for a model version. When
// kpiOnly is true only series the vendor marks as KPIs are returned.
func (client *Client) ListTimeSeries(ctx context.Context, companyID, modelVersion string, kpiOnly bool) ([]*TimeSeries, error) {
	seriesID, err := client.seriesID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	params := map[string]string{"page_size": defaultPageSize}
	if kpiOnly {
		params["is_kpi"] = "true"
	}

	url := fmt.Sprintf("/equity-model-series/%s/equity-models/%s/time-series/", seriesID, modelVersion)
	all := make([]*TimeSeries, 0, 200)

	err = client.getPages(ctx, url, params, func(results json.RawMessage) error {
		page := make([]*TimeSeries, 0, 200)
		if err := json.Unmarshal(results, &page); err != nil {
			return err
		}
		all = append(all, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return all, nil
}

// FetchPeriods returns the classified historical periods of the company's
// model. Periods whose names do not classify are skipped and logged; they
// are also reported by the table builder when observations reference them.
func (client *Client) FetchPeriods(ctx context.Context, companyID, modelVersion string) ([]period.Period, error) {
	logger := zerolog.Ctx(ctx)

	seriesID, err := client.seriesID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("/equity-model-series/%s/equity-models/%s/historical-periods/", seriesID, modelVersion)
	periods := make([]period.Period, 0, 40)

	err = client.getPages(ctx, url, map[string]string{"page_size": defaultPageSize}, func(results json.RawMessage) error {
		page := make([]*apiPeriod, 0, 40)
		if err := json.Unmarshal(results, &page); err != nil {
			return err
		}

		for _, raw := range page {
			p, err := period.Parse(raw.Name)
			if err != nil {
				logger.Warn().Err(err).Str("CompanyID", companyID).Str("Period", raw.Name).
					Msg("skipping period with unrecognized name")
				continue
			}

			if start, err := time.Parse("2006-01-02", raw.StartDate); err == nil {
				p.StartDate = start
			}
			if end, err := time.Parse("2006-01-02", raw.EndDate); err == nil {
				p.EndDate = end
			}

			periods = append(periods, p)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return periods, nil
}

// FetchObservations retrieves historical data points for the requested
// metric codes. Metrics the vendor has no data for simply produce no
// observations; the table builder still emits their rows.
func (client *Client) FetchObservations(ctx context.Context, companyID, modelVersion string, metricCodes []string) ([]*data.Observation, error) {
	return client.fetchDataPoints(ctx, companyID, modelVersion, metricCodes, false)
}

// FetchForwardObservations retrieves the model's forward estimates for the
// requested metric codes. Forward values are marked as forecasts; they sit
// beyond the historical reporting windows and never land in a KPI table.
func (client *Client) FetchForwardObservations(ctx context.Context, companyID, modelVersion string, metricCodes []string) ([]*data.Observation, error) {
	return client.fetchDataPoints(ctx, companyID, modelVersion, metricCodes, true)
}

func (client *Client) fetchDataPoints(ctx context.Context, companyID, modelVersion string, metricCodes []string, forecast bool) ([]*data.Observation, error) {
	seriesID, err := client.seriesID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	endpoint := "historical-data-points"
	if forecast {
		endpoint = "forward-data-points"
	}

	url := fmt.Sprintf("/equity-model-series/%s/equity-models/%s/%s/", seriesID, modelVersion, endpoint)
	observations := make([]*data.Observation, 0, 500)

	for _, code := range metricCodes {
		params := map[string]string{
			"time_series_name": code,
			"page_size":        dataPointPageSize,
		}

		err = client.getPages(ctx, url, params, func(results json.RawMessage) error {
			page := make([]*dataPoint, 0, 500)
			if err := json.Unmarshal(results, &page); err != nil {
				return err
			}

			for _, dp := range page {
				obs, err := client.observation(ctx, companyID, dp, forecast)
				if err != nil {
					continue
				}
				observations = append(observations, obs)
			}

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return observations, nil
}

// observation converts a vendor data point; a malformed value is skipped
// and logged, never coerced to zero.
func (client *Client) observation(ctx context.Context, companyID string, dp *dataPoint, forecast bool) (*data.Observation, error) {
	logger := zerolog.Ctx(ctx)

	value, err := parseValue(dp.Value)
	if err != nil {
		logger.Warn().Err(err).Str("CompanyID", companyID).Str("Period", dp.Period.Name).
			Str("Value", string(dp.Value)).Msg("skipping data point with malformed value")
		return nil, err
	}

	if len(dp.TimeSeries.Names) == 0 {
		logger.Warn().Str("CompanyID", companyID).Str("Period", dp.Period.Name).
			Msg("skipping data point without a time series name")
		return nil, fmt.Errorf("%w: data point has no time series name", ErrMalformedRecord)
	}
	code := dp.TimeSeries.Names[0]

	return &data.Observation{
		CompanyID:         companyID,
		MetricCode:        code,
		MetricDescription: dp.TimeSeries.Description,
		Units:             dp.TimeSeries.Unit.Description,
		PeriodName:        dp.Period.Name,
		Value:             value,
		IsForecast:        forecast,
		ObservationDate:   time.Now(),
	}, nil
}
