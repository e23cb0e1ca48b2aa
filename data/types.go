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
package data

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Observation is a single (metric, period, value) measurement retrieved from
// the vendor API. Observations are immutable once produced by the client;
// the table builder is their only consumer.
type Observation struct {
	Ticker            string
	CompanyID         string
	MetricCode        string
	MetricDescription string
	Units             string
	PeriodName        string
	Value             *float64
	IsForecast        bool
	ObservationDate   time.Time
}

// Metric identifies a single KPI row in the output table. Code is the
// vendor's primary time series name, e.g. MO_RIS_REV.
type Metric struct {
	Code        string
	Description string
	Units       string
}

// RunSummary describes the outcome of fetching a single company
type RunSummary struct {
	RunID           uuid.UUID
	Ticker          string
	CompanyID       string
	ModelVersion    string
	StartTime       time.Time
	EndTime         time.Time
	NumObservations int
}

func (obs *Observation) MarshalZerologObject(e *zerolog.Event) {
	e.Str("Ticker", obs.Ticker)
	e.Str("MetricCode", obs.MetricCode)
	e.Str("Period", obs.PeriodName)
	if obs.Value != nil {
		e.Float64("Value", *obs.Value)
	}
}
