package protocol

import (
	"github.com/datazip-inc/binlogdir/logger"
	"github.com/spf13/cobra"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "validates the config and reaches the schema store, the source and the binlog dir",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConnector()
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := connector.Check(); err != nil {
			logger.Errorf("%s check failed: %s", connector.Type(), err)
			return err
		}
		logger.Infof("%s check succeeded", connector.Type())
		return nil
	},
}
