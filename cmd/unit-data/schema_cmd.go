package main

import (
	"github.com/spf13/cobra"

	"github.com/helmsman-hq/helmsman/modules"
	"github.com/helmsman-hq/helmsman/pkg/application"
	"github.com/helmsman-hq/helmsman/pkg/configuration"
	"github.com/helmsman-hq/helmsman/pkg/eventbus"
)

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Apply the schema of every registered module",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, err := connectDB(ctx)
			if err != nil {
				return withCode(exitDB, err)
			}
			defer pool.Close()

			logger := configuration.Use().Logger()
			app := application.New(&application.ApplicationOptions{
				Pool:     pool,
				EventBus: eventbus.NewEventPublisher(logger),
				Logger:   logger,
			})
			if err := modules.Load(app); err != nil {
				return withCode(exitDB, err)
			}
			if err := app.ApplySchema(ctx); err != nil {
				return withCode(exitDBWrite, err)
			}
			return nil
		},
	}
}
