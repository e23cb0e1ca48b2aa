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
package library

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/penny-vault/kpi-refresh/data"
)

// RefreshRun is one company's slice of a refresh batch as recorded in the
// database. All companies fetched in the same invocation share a RunID.
type RefreshRun struct {
	ID              uuid.UUID `db:"id"`
	RunID           uuid.UUID `db:"run_id"`
	Ticker          string    `db:"ticker"`
	CompanyID       string    `db:"company_id"`
	ModelVersion    string    `db:"model_version"`
	StartTime       time.Time `db:"start_time"`
	EndTime         time.Time `db:"end_time"`
	NumObservations int       `db:"num_observations"`
	Err             string    `db:"err"`

	Library *Library `db:"-"`
}

// SaveRun records a completed company refresh
func (myLibrary *Library) SaveRun(ctx context.Context, summary *data.RunSummary, runErr error) error {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}

	_, err = conn.Exec(ctx, `INSERT INTO refresh_runs
("id", "run_id", "ticker", "company_id", "model_version", "start_time",
 "end_time", "num_observations", "err")
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), summary.RunID, summary.Ticker, summary.CompanyID,
		summary.ModelVersion, summary.StartTime, summary.EndTime,
		summary.NumObservations, errMsg)
	return err
}

// Runs returns the most recent refresh runs, newest first
func (myLibrary *Library) Runs(ctx context.Context, limit int) ([]*RefreshRun, error) {
	var runs []*RefreshRun
	err := pgxscan.Select(ctx, myLibrary.Pool, &runs,
		`SELECT id, run_id, ticker, company_id, model_version, start_time,
end_time, num_observations, err FROM refresh_runs
ORDER BY end_time DESC LIMIT $1`, limit)
	for _, run := range runs {
		run.Library = myLibrary
	}
	return runs, err
}

// RunFromID fetches a refresh run whose id starts with the given prefix
func (myLibrary *Library) RunFromID(ctx context.Context, id string) (*RefreshRun, error) {
	conn, err := myLibrary.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	run := &RefreshRun{
		Library: myLibrary,
	}

	rows, err := conn.Query(ctx, `SELECT id, run_id, ticker, company_id,
	model_version, start_time, end_time, num_observations, err
	FROM refresh_runs WHERE id::text LIKE $1 LIMIT 1`, id+"%")
	if err != nil {
		return nil, err
	}

	err = pgxscan.ScanOne(run, rows)
	if err != nil {
		return nil, err
	}

	return run, nil
}

// DeleteRun removes a refresh run record
func (run *RefreshRun) Delete(ctx context.Context) error {
	conn, err := run.Library.Pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, "DELETE FROM refresh_runs WHERE id=$1", run.ID)
	return err
}
