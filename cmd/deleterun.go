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

	"github.com/charmbracelet/huh"
	"github.com/penny-vault/kpi-refresh/library"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var deleteRunForce bool

// deleteRunCmd represents the delete-run command
var deleteRunCmd = &cobra.Command{
	Use:   "delete-run <run-id>",
	Short: "Remove a refresh run record from the KPI library",
	Long: `The delete-run sub-command removes one refresh run record from the
database. The run may be identified by a unique prefix of its id, as shown
by the info sub-command. KPI values saved by the run are not affected.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		myLibrary, err := library.NewFromDB(ctx, viper.GetString("database.url"))
		if err != nil {
			log.Fatal().Err(err).Msg("could not load library info")
		}

		run, err := myLibrary.RunFromID(ctx, args[0])
		if err != nil {
			log.Fatal().Err(err).Str("ID", args[0]).Msg("could not find refresh run")
		}

		if !deleteRunForce {
			confirm := false
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title("Delete refresh run " + run.ID.String() + " (" + run.Ticker + ")?").
					Value(&confirm),
			))
			if err := form.Run(); err != nil {
				log.Fatal().Err(err).Msg("confirmation failed")
			}
			if !confirm {
				log.Info().Msg("aborted")
				return
			}
		}

		if err := run.Delete(ctx); err != nil {
			log.Fatal().Err(err).Str("ID", run.ID.String()).Msg("could not delete refresh run")
		}

		log.Info().Str("ID", run.ID.String()).Str("Ticker", run.Ticker).
			Str("ModelVersion", run.ModelVersion).Msg("deleted refresh run")
	},
}

func init() {
	rootCmd.AddCommand(deleteRunCmd)

	deleteRunCmd.Flags().BoolVar(&deleteRunForce, "force", false, "delete without confirmation")
}
