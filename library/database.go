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

// Package library persists refreshed KPI data to a PostgreSQL database:
// tracked companies, long-format KPI values, and a history of refresh runs.
package library

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/penny-vault/kpi-refresh/data"
	"github.com/rs/zerolog/log"
)

type Library struct {
	DBUrl string
	Name  string
	Owner string

	Pool *pgxpool.Pool
}

// Connect to the database configured for the library
func (myLibrary *Library) Connect(ctx context.Context) error {
	if myLibrary.Pool != nil {
		return nil
	}

	pool, err := pgxpool.New(context.Background(), myLibrary.DBUrl)
	if err != nil {
		return err
	}
	myLibrary.Pool = pool

	return nil
}

// Close the database pool
func (myLibrary *Library) Close() {
	myLibrary.Pool.Close()
}

// NewFromDB creates a new library object with values from the database
func NewFromDB(ctx context.Context, dbURL string) (*Library, error) {
	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	myLibrary := Library{
		DBUrl: dbURL,
		Pool:  pool,
	}

	if err := conn.QueryRow(ctx, "SELECT name, owner FROM library").Scan(&myLibrary.Name, &myLibrary.Owner); err != nil {
		return nil, err
	}

	return &myLibrary, nil
}

// SaveDB creates a new record in the library table for this library
func (myLibrary *Library) SaveDB(ctx context.Context) error {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `INSERT INTO library ("name", "owner") VALUES ($1, $2)`, myLibrary.Name, myLibrary.Owner)
	return err
}

// NumCompanies returns the count of companies with stored KPI values
func (myLibrary *Library) NumCompanies(ctx context.Context) (int, error) {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	count := 0
	err = conn.QueryRow(ctx, "SELECT count(DISTINCT company_id) FROM kpi_values").Scan(&count)
	return count, err
}

// TotalObservations returns the total number of stored KPI values
func (myLibrary *Library) TotalObservations(ctx context.Context) (int, error) {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	count := 0
	err = conn.QueryRow(ctx, "SELECT count(*) FROM kpi_values").Scan(&count)
	return count, err
}

// LastUpdated returns the end time of the most recent refresh run
func (myLibrary *Library) LastUpdated(ctx context.Context) (time.Time, error) {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return time.Time{}, err
	}
	defer conn.Release()

	var lastUpdated time.Time
	err = conn.QueryRow(ctx, "SELECT coalesce(max(end_time), '0001-01-01'::timestamp) FROM refresh_runs").Scan(&lastUpdated)
	if err != nil {
		return time.Time{}, err
	}

	return lastUpdated, nil
}

// SaveObservations continuously reads observations from the input queue and
// upserts them into kpi_values
func (myLibrary *Library) SaveObservations(queue <-chan *data.Observation, wg *sync.WaitGroup) {
	ctx := context.Background()
	defer wg.Done()

	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		log.Panic().Err(err).Msg("cannot acquire database connection")
		return
	}
	defer conn.Release()

	for elem := range queue {
		if elem.Value == nil {
			continue
		}

		_, err := conn.Exec(ctx, `INSERT INTO kpi_values
("ticker", "company_id", "kpi_code", "kpi_description", "period",
 "value", "units", "observation_date")
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT ON CONSTRAINT kpi_values_pkey DO UPDATE SET
 kpi_description = EXCLUDED.kpi_description,
 value = EXCLUDED.value,
 units = EXCLUDED.units,
 observation_date = EXCLUDED.observation_date`,
			elem.Ticker, elem.CompanyID, elem.MetricCode, elem.MetricDescription,
			elem.PeriodName, *elem.Value, elem.Units, elem.ObservationDate)
		if err != nil {
			log.Error().Err(err).Object("Observation", elem).Msg("cannot save kpi value to database")
		}
	}
}

// SaveCompany upserts a tracked company
func (myLibrary *Library) SaveCompany(ctx context.Context, ticker, companyID, name, csin string) error {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `INSERT INTO companies
("ticker", "company_id", "name", "csin")
VALUES ($1, $2, $3, $4)
ON CONFLICT ON CONSTRAINT companies_pkey DO UPDATE SET
 name = EXCLUDED.name,
 csin = EXCLUDED.csin`, ticker, companyID, name, csin)
	return err
}
