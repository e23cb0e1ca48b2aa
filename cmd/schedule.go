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
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/penny-vault/kpi-refresh/healthcheck"
	"github.com/penny-vault/kpi-refresh/refresh"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	schedulePauseCheck  bool
	scheduleDeleteCheck bool
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run refreshes on a daily schedule",
	Long: `The schedule sub-command runs as a daemon and executes a full refresh
every day at the configured time (scheduler.time, default 06:00) in the
configured timezone (scheduler.timezone, default US/Pacific). When a
healthchecks.io API key is configured (healthchecks.apikey) the daemon
manages its own check: it creates one matching the refresh schedule if
healthchecks.check_id is unset and resumes the check on startup. Each run
then pings the check as it starts, succeeds, or fails. Use --pause-check
before taking the daemon down for maintenance and --delete-check to remove
the check entirely.`,
	Run: func(cmd *cobra.Command, args []string) {
		tz, err := time.LoadLocation(viper.GetString("scheduler.timezone"))
		if err != nil {
			log.Fatal().Err(err).Str("Timezone", viper.GetString("scheduler.timezone")).Msg("could not load timezone")
		}

		runAt := viper.GetString("scheduler.time")
		checkID := viper.GetString("healthchecks.check_id")

		if scheduleDeleteCheck {
			if checkID == "" {
				log.Fatal().Msg("healthchecks.check_id is not configured")
			}
			if err := healthcheck.Delete(checkID); err != nil {
				log.Fatal().Err(err).Str("CheckID", checkID).Msg("could not delete healthcheck")
			}
			log.Info().Str("CheckID", checkID).Msg("deleted healthchecks.io check")
			return
		}

		if schedulePauseCheck {
			if checkID == "" {
				log.Fatal().Msg("healthchecks.check_id is not configured")
			}
			if err := healthcheck.Pause(checkID); err != nil {
				log.Fatal().Err(err).Str("CheckID", checkID).Msg("could not pause healthcheck")
			}
			log.Info().Str("CheckID", checkID).Msg("paused healthchecks.io check")
			return
		}

		if viper.GetString("healthchecks.apikey") != "" {
			switch checkID {
			case "":
				cronSchedule, err := healthcheck.DailyCron(runAt)
				if err != nil {
					log.Fatal().Err(err).Str("At", runAt).Msg("could not build check schedule")
				}

				checkID, err = healthcheck.Create("kpirefresh daily refresh", "kpirefresh-daily",
					[]string{"kpirefresh"}, cronSchedule, tz.String())
				if err != nil {
					log.Fatal().Err(err).Msg("could not create healthcheck")
				}

				viper.Set("healthchecks.check_id", checkID)
				log.Info().Str("CheckID", checkID).Msg("created healthchecks.io check; add it to the config file to keep it")
			default:
				// the check may have been paused while the daemon was down
				if err := healthcheck.Resume(checkID); err != nil {
					log.Error().Err(err).Str("CheckID", checkID).Msg("could not resume healthcheck")
				}
			}
		}

		scheduler := gocron.NewScheduler(tz)
		if _, err := scheduler.Every(1).Day().At(runAt).Do(scheduledRefresh); err != nil {
			log.Fatal().Err(err).Str("At", runAt).Msg("could not schedule refresh")
		}

		log.Info().Str("At", runAt).Str("Timezone", tz.String()).Msg("scheduler started")
		scheduler.StartBlocking()
	},
}

func scheduledRefresh() {
	ctx := context.Background()
	checkID := viper.GetString("healthchecks.check_id")

	if checkID != "" {
		if err := healthcheck.PingStart(checkID); err != nil {
			log.Error().Err(err).Msg("could not ping healthcheck start")
		}
	}

	result, err := refresh.Run(ctx, &refresh.Options{
		OutputDir: viper.GetString("output.dir"),
		Upload:    viper.GetBool("scheduler.upload"),
		SaveDB:    viper.GetBool("scheduler.save_db"),
	})
	if err != nil {
		log.Error().Err(err).Msg("scheduled refresh failed")
		if checkID != "" {
			if err := healthcheck.PingFailure(checkID); err != nil {
				log.Error().Err(err).Msg("could not ping healthcheck failure")
			}
		}
		return
	}

	log.Info().Str("RunID", result.RunID.String()).
		Int("NumCompanies", len(result.Tables)).
		Int("NumErrors", len(result.Errors)).
		Msg("scheduled refresh finished")

	if checkID != "" {
		if err := healthcheck.Ping(checkID); err != nil {
			log.Error().Err(err).Msg("could not ping healthcheck")
		}
	}
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().BoolVar(&schedulePauseCheck, "pause-check", false, "pause the healthchecks.io check and exit")
	scheduleCmd.Flags().BoolVar(&scheduleDeleteCheck, "delete-check", false, "delete the healthchecks.io check and exit")
}
