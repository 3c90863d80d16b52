package protocol

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/datazip-inc/binlogdir/constants"
	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/datazip-inc/binlogdir/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath string
	statePath  string
	noSave     bool
	pprofPort  int
	logLevel   string

	state *types.State

	commands  = []*cobra.Command{}
	connector Driver
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "binlogdir",
	Short: "replays MySQL binlog files as SQL against a captured schema",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// set global variables
		if !noSave && configPath != "" {
			viper.Set(constants.ConfigFolder, filepath.Dir(configPath))
		}
		// logger uses CONFIG_FOLDER
		logger.Init()

		if pprofPort > 0 {
			startDebugServer(pprofPort)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}

		if ok := utils.IsValidSubcommand(commands, args[0]); !ok {
			return fmt.Errorf("'%s' is an invalid command. Use 'binlogdir --help' to display usage guide", args[0])
		}

		return nil
	},
}

func CreateRootCommand(_ bool, driver Driver) *cobra.Command {
	RootCmd.AddCommand(commands...)
	connector = driver

	return RootCmd
}

// loadConnector reads the config into the driver and restores the state, if one was passed
func loadConnector() error {
	if configPath == "" {
		return fmt.Errorf("--config not passed")
	}
	if err := utils.UnmarshalFile(configPath, connector.GetConfigRef()); err != nil {
		return err
	}

	state = types.NewState()
	if statePath != "" {
		err := utils.UnmarshalFile(statePath, state)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	connector.SetupState(state)
	return nil
}

func init() {
	commands = append(commands, checkCmd, captureCmd, readCmd)
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "", "", "(Required) Config for connector")
	RootCmd.PersistentFlags().StringVarP(&statePath, "state", "", "", "(Optional) State to resume from")
	RootCmd.PersistentFlags().BoolVarP(&noSave, "no-save", "", false, "(Optional) Flag to skip logging artifacts in file")
	RootCmd.PersistentFlags().IntVarP(&pprofPort, "pprof-port", "", 0, "(Optional) Port of the profiling server, disabled when 0")
	RootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "(Optional) Log level")

	viper.SetEnvPrefix(constants.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag(constants.LogLevel, RootCmd.PersistentFlags().Lookup("log-level"))

	// Disable Cobra CLI's built-in usage and error handling
	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true
}
