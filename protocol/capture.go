package protocol

import (
	"fmt"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// captureCmd stores a schema snapshot and starts the state at its position
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "captures a schema snapshot of the configured database",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConnector()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := connector.Setup(); err != nil {
			return err
		}

		token, err := connector.Capture(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		logger.Infof("schema snapshot token: %s", token)
		if viper.GetString(constants.ConfigFolder) != "" {
			if err := logger.FileLogger(map[string]string{"schema_token": token}, constants.SnapshotFile, ".json"); err != nil {
				logger.Warnf("failed to write snapshot token file: %s", err)
			}
		}
		return nil
	},
}
