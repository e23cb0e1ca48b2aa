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
package canalyst_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/penny-vault/kpi-refresh/canalyst"
	"github.com/spf13/viper"
)

const apiBase = "https://api.canalyst.com/api"

// the real API always responds with a JSON content type; resty only
// decodes SetResult targets when the response is JSON-typed
var jsonHeader = http.Header{"Content-Type": []string{"application/json"}}

func page(results string, next string) string {
	nextJSON := "null"
	if next != "" {
		nextJSON = fmt.Sprintf("%q", next)
	}
	return fmt.Sprintf(`{"count": 0, "next": %s, "previous": null, "results": %s}`, nextJSON, results)
}

var _ = Describe("Client", func() {
	var (
		client *canalyst.Client
		ctx    context.Context
	)

	BeforeEach(func() {
		viper.Set("canalyst.token", "test-token")
		viper.Set("canalyst.base_url", "")
		viper.Set("canalyst.rate_limit", 10000.0)

		var err error
		client, err = canalyst.New()
		Expect(err).To(BeNil())

		httpmock.ActivateNonDefault(client.RestyClient().GetClient())
		ctx = context.Background()
	})

	AfterEach(func() {
		httpmock.DeactivateAndReset()
	})

	Describe("New", func() {
		It("fails fast when no token is configured", func() {
			viper.Set("canalyst.token", "")
			_, err := canalyst.New()
			Expect(err).To(MatchError(canalyst.ErrMissingToken))
		})
	})

	Describe("CompanyByTicker", func() {
		It("returns the matching company", func() {
			httpmock.RegisterResponder("GET", apiBase+"/companies/",
				httpmock.NewStringResponder(200, page(`[{
					"company_id": "0001-XYZ",
					"name": "Example Corp",
					"country_code": "US",
					"tickers": {"canalyst": "EXAM_US"},
					"sector": {"path": "Technology"},
					"is_in_coverage": true
				}]`, "")).HeaderSet(jsonHeader))

			company, err := client.CompanyByTicker(ctx, "EXAM_US")
			Expect(err).To(BeNil())
			Expect(company.CompanyID).To(Equal("0001-XYZ"))
			Expect(company.Name).To(Equal("Example Corp"))
			Expect(company.InCoverage).To(BeTrue())
		})

		It("returns ErrCompanyNotFound for an empty result set", func() {
			httpmock.RegisterResponder("GET", apiBase+"/companies/",
				httpmock.NewStringResponder(200, page(`[]`, "")))

			_, err := client.CompanyByTicker(ctx, "NOPE_US")
			Expect(err).To(MatchError(canalyst.ErrCompanyNotFound))
		})

		It("wraps error status codes", func() {
			httpmock.RegisterResponder("GET", apiBase+"/companies/",
				httpmock.NewStringResponder(403, `{"detail": "invalid token"}`))

			_, err := client.CompanyByTicker(ctx, "EXAM_US")
			Expect(err).To(MatchError(canalyst.ErrInvalidStatusCode))
		})
	})

	Describe("SearchCompanies", func() {
		It("falls back to region-qualified ticker variants", func() {
			httpmock.RegisterResponder("GET", apiBase+"/companies/",
				httpmock.Responder(func(req *http.Request) (*http.Response, error) {
					if req.URL.Query().Get("ticker_canalyst") == "EXAM_US" {
						return httpmock.NewStringResponse(200, page(`[{
							"company_id": "0001-XYZ",
							"name": "Example Corp",
							"tickers": {"canalyst": "EXAM_US"}
						}]`, "")), nil
					}
					return httpmock.NewStringResponse(200, page(`[]`, "")), nil
				}).HeaderSet(jsonHeader))

			companies, err := client.SearchCompanies(ctx, "EXAM", "canalyst")
			Expect(err).To(BeNil())
			Expect(companies).To(HaveLen(1))
			Expect(companies[0].CompanyID).To(Equal("0001-XYZ"))
		})

		It("searches the requested identifier system", func() {
			httpmock.RegisterResponder("GET", apiBase+"/companies/",
				httpmock.Responder(func(req *http.Request) (*http.Response, error) {
					if req.URL.Query().Get("ticker_bloomberg") == "EXAM US" {
						return httpmock.NewStringResponse(200, page(`[{
							"company_id": "0001-XYZ",
							"name": "Example Corp"
						}]`, "")), nil
					}
					return httpmock.NewStringResponse(200, page(`[]`, "")), nil
				}).HeaderSet(jsonHeader))

			companies, err := client.SearchCompanies(ctx, "EXAM US", "bloomberg")
			Expect(err).To(BeNil())
			Expect(companies).To(HaveLen(1))
		})
	})

	Describe("CSIN", func() {
		It("returns the csin of the primary model series", func() {
			httpmock.RegisterResponder("GET", apiBase+"/equity-model-series/",
				httpmock.Responder(func(req *http.Request) (*http.Response, error) {
					Expect(req.URL.Query().Get("is_primary")).To(Equal("true"))
					return httpmock.NewStringResponse(200, page(`[{
						"self": "https://api.canalyst.com/api/equity-model-series/WXYZ0101/",
						"csin": "WXYZ0101XXXX"
					}]`, "")), nil
				}).HeaderSet(jsonHeader))

			csin, err := client.CSIN(ctx, "0001-XYZ")
			Expect(err).To(BeNil())
			Expect(csin).To(Equal("WXYZ0101XXXX"))
		})
	})

	Describe("LatestModelVersion", func() {
		BeforeEach(func() {
			httpmock.RegisterResponder("GET", apiBase+"/equity-model-series/",
				httpmock.NewStringResponder(200, page(`[{
					"self": "https://api.canalyst.com/api/equity-model-series/WXYZ0101/",
					"csin": "WXYZ0101XXXX"
				}]`, "")).HeaderSet(jsonHeader))
		})

		It("resolves the series id and fetches the latest model", func() {
			httpmock.RegisterResponder("GET",
				apiBase+"/equity-model-series/WXYZ0101/equity-models/latest/",
				httpmock.NewStringResponder(200, `{
					"model_version": {"name": "Q3-2024.20"},
					"most_recent_period": {"name": "Q3-24"}
				}`).HeaderSet(jsonHeader))

			version, err := client.LatestModelVersion(ctx, "0001-XYZ")
			Expect(err).To(BeNil())
			Expect(version).To(Equal("Q3-2024.20"))
		})

		It("caches the model series id across calls", func() {
			httpmock.RegisterResponder("GET",
				apiBase+"/equity-model-series/WXYZ0101/equity-models/latest/",
				httpmock.NewStringResponder(200, `{"model_version": {"name": "Q3-2024.20"}}`).HeaderSet(jsonHeader))

			_, err := client.LatestModelVersion(ctx, "0001-XYZ")
			Expect(err).To(BeNil())
			_, err = client.LatestModelVersion(ctx, "0001-XYZ")
			Expect(err).To(BeNil())

			info := httpmock.GetCallCountInfo()
			Expect(info["GET "+apiBase+"/equity-model-series/"]).To(Equal(1))
		})

		It("returns ErrNoModelSeries when the company has no series", func() {
			httpmock.RegisterResponder("GET", apiBase+"/equity-model-series/",
				httpmock.NewStringResponder(200, page(`[]`, "")))

			_, err := client.LatestModelVersion(ctx, "0002-ABC")
			Expect(err).To(MatchError(canalyst.ErrNoModelSeries))
		})
	})

	Describe("ListTimeSeries", func() {
		BeforeEach(func() {
			httpmock.RegisterResponder("GET", apiBase+"/equity-model-series/",
				httpmock.NewStringResponder(200, page(`[{
					"self": "https://api.canalyst.com/api/equity-model-series/WXYZ0101/",
					"csin": "WXYZ0101XXXX"
				}]`, "")).HeaderSet(jsonHeader))
		})

		It("follows pagination cursors", func() {
			tsURL := apiBase + "/equity-model-series/WXYZ0101/equity-models/Q3-2024.20/time-series/"

			httpmock.RegisterResponder("GET", tsURL,
				httpmock.Responder(func(req *http.Request) (*http.Response, error) {
					if req.URL.Query().Get("cursor") == "page2" {
						return httpmock.NewStringResponse(200, page(`[{
							"slug": "mo-ris-gm",
							"names": ["MO_RIS_GM"],
							"description": "Gross Margin",
							"unit": {"description": "Percentage", "symbol": "%"},
							"category": {"description": "Income Statement"},
							"is_kpi": true
						}]`, "")), nil
					}

					Expect(req.URL.Query().Get("is_kpi")).To(Equal("true"))
					return httpmock.NewStringResponse(200, page(`[{
						"slug": "mo-ris-rev",
						"names": ["MO_RIS_REV"],
						"description": "Total Revenue",
						"unit": {"description": "US Dollars", "symbol": "$"},
						"category": {"description": "Income Statement"},
						"is_kpi": true
					}]`, tsURL+"?cursor=page2")), nil
				}).HeaderSet(jsonHeader))

			series, err := client.ListTimeSeries(ctx, "0001-XYZ", "Q3-2024.20", true)
			Expect(err).To(BeNil())
			Expect(series).To(HaveLen(2))
			Expect(series[0].PrimaryName()).To(Equal("MO_RIS_REV"))
			Expect(series[1].PrimaryName()).To(Equal("MO_RIS_GM"))
		})
	})

	Describe("FetchPeriods", func() {
		BeforeEach(func() {
			httpmock.RegisterResponder("GET", apiBase+"/equity-model-series/",
				httpmock.NewStringResponder(200, page(`[{
					"self": "https://api.canalyst.com/api/equity-model-series/WXYZ0101/",
					"csin": "WXYZ0101XXXX"
				}]`, "")).HeaderSet(jsonHeader))
		})

		It("classifies period names and skips unrecognized ones", func() {
			httpmock.RegisterResponder("GET",
				apiBase+"/equity-model-series/WXYZ0101/equity-models/Q3-2024.20/historical-periods/",
				httpmock.NewStringResponder(200, page(`[
					{"name": "FY24", "period_duration_type": "fiscal_year", "start_date": "2023-10-01", "end_date": "2024-09-30"},
					{"name": "Q3-24", "period_duration_type": "fiscal_quarter", "start_date": "2024-04-01", "end_date": "2024-06-30"},
					{"name": "H1-24", "period_duration_type": "fiscal_half", "start_date": "2023-10-01", "end_date": "2024-03-31"}
				]`, "")).HeaderSet(jsonHeader))

			periods, err := client.FetchPeriods(ctx, "0001-XYZ", "Q3-2024.20")
			Expect(err).To(BeNil())
			Expect(periods).To(HaveLen(2))
			Expect(periods[0].Name).To(Equal("FY24"))
			Expect(periods[0].StartDate.Year()).To(Equal(2023))
			Expect(periods[1].Name).To(Equal("Q3-24"))
		})
	})

	Describe("FetchObservations", func() {
		BeforeEach(func() {
			httpmock.RegisterResponder("GET", apiBase+"/equity-model-series/",
				httpmock.NewStringResponder(200, page(`[{
					"self": "https://api.canalyst.com/api/equity-model-series/WXYZ0101/",
					"csin": "WXYZ0101XXXX"
				}]`, "")).HeaderSet(jsonHeader))
		})

		It("parses decimal string values and skips null values", func() {
			httpmock.RegisterResponder("GET",
				apiBase+"/equity-model-series/WXYZ0101/equity-models/Q3-2024.20/historical-data-points/",
				httpmock.Responder(func(req *http.Request) (*http.Response, error) {
					Expect(req.URL.Query().Get("time_series_name")).To(Equal("MO_RIS_REV"))
					return httpmock.NewStringResponse(200, page(`[
						{
							"time_series": {"names": ["MO_RIS_REV"], "description": "Total Revenue", "unit": {"description": "US Dollars"}},
							"period": {"name": "Q3-24"},
							"value": "1234567.89"
						},
						{
							"time_series": {"names": ["MO_RIS_REV"], "description": "Total Revenue", "unit": {"description": "US Dollars"}},
							"period": {"name": "Q2-24"},
							"value": null
						},
						{
							"time_series": {"names": ["MO_RIS_REV"], "description": "Total Revenue", "unit": {"description": "US Dollars"}},
							"period": {"name": "Q1-24"},
							"value": "not-a-number"
						}
					]`, "")), nil
				}).HeaderSet(jsonHeader))

			observations, err := client.FetchObservations(ctx, "0001-XYZ", "Q3-2024.20", []string{"MO_RIS_REV"})
			Expect(err).To(BeNil())

			// the malformed value is skipped; the null value is kept as a nil cell
			Expect(observations).To(HaveLen(2))
			Expect(observations[0].PeriodName).To(Equal("Q3-24"))
			Expect(*observations[0].Value).To(BeNumerically("~", 1234567.89, 1e-6))
			Expect(observations[1].PeriodName).To(Equal("Q2-24"))
			Expect(observations[1].Value).To(BeNil())
			Expect(observations[0].CompanyID).To(Equal("0001-XYZ"))
		})

		It("never marks historical data points as forecasts", func() {
			httpmock.RegisterResponder("GET",
				apiBase+"/equity-model-series/WXYZ0101/equity-models/Q3-2024.20/historical-data-points/",
				httpmock.NewStringResponder(200, page(`[
					{
						"time_series": {"names": ["MO_RIS_REV"], "description": "Total Revenue", "unit": {"description": "US Dollars"}},
						"period": {"name": "Q3-24"},
						"value": "100.0"
					}
				]`, "")).HeaderSet(jsonHeader))

			observations, err := client.FetchObservations(ctx, "0001-XYZ", "Q3-2024.20", []string{"MO_RIS_REV"})
			Expect(err).To(BeNil())
			Expect(observations).To(HaveLen(1))
			Expect(observations[0].IsForecast).To(BeFalse())
		})
	})

	Describe("FetchForwardObservations", func() {
		BeforeEach(func() {
			httpmock.RegisterResponder("GET", apiBase+"/equity-model-series/",
				httpmock.NewStringResponder(200, page(`[{
					"self": "https://api.canalyst.com/api/equity-model-series/WXYZ0101/",
					"csin": "WXYZ0101XXXX"
				}]`, "")).HeaderSet(jsonHeader))
		})

		It("marks forward data points as forecasts", func() {
			httpmock.RegisterResponder("GET",
				apiBase+"/equity-model-series/WXYZ0101/equity-models/Q3-2024.20/forward-data-points/",
				httpmock.NewStringResponder(200, page(`[
					{
						"time_series": {"names": ["MO_RIS_REV"], "description": "Total Revenue", "unit": {"description": "US Dollars"}},
						"period": {"name": "Q4-24"},
						"value": "1500000.0"
					}
				]`, "")).HeaderSet(jsonHeader))

			forecasts, err := client.FetchForwardObservations(ctx, "0001-XYZ", "Q3-2024.20", []string{"MO_RIS_REV"})
			Expect(err).To(BeNil())
			Expect(forecasts).To(HaveLen(1))
			Expect(forecasts[0].IsForecast).To(BeTrue())
			Expect(forecasts[0].PeriodName).To(Equal("Q4-24"))
			Expect(*forecasts[0].Value).To(BeNumerically("~", 1500000.0, 1e-6))
		})
	})
})
