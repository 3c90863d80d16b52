package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/pkg/binlog"
	"github.com/datazip-inc/binlogdir/pkg/sqlgen"
	"github.com/datazip-inc/binlogdir/utils"
	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/spf13/cobra"
)

var (
	fromFlag    string
	toFlag      string
	maxEvents   int64
	excludeFlag []string
	filterFlag  []string
	outputPath  string
	schemaToken string
)

// readCmd replays one range of binlog events as SQL and advances the state
var readCmd = &cobra.Command{
	Use:   "read",
	Short: "replays binlog events as SQL statements",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConnector()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		override, err := readOverride(cmd)
		if err != nil {
			return err
		}
		if err := connector.Setup(); err != nil {
			return err
		}
		if schemaToken != "" && schemaToken != state.SchemaToken {
			// a different snapshot starts over at its own position unless --from says otherwise
			state.Reset(schemaToken, mysql.Position{})
		}

		outputs := sqlgen.NewOutputs(outputPath, cmd.OutOrStdout())
		writer := sqlgen.NewWriter(outputs.Open)
		cursor, readErr := connector.Read(cmd.Context(), override, writer.Write)
		if err := utils.ErrExecSequential(writer.Flush, outputs.Close); err != nil {
			return fmt.Errorf("failed to write sql output: %s", err)
		}
		if readErr != nil {
			return readErr
		}

		state.Advance(cursor.Position, cursor.Processed, cursor.SessionID)
		logger.Infof("session[%s] wrote %d statements, resume from %s", cursor.SessionID, writer.Statements(), cursor.Position)
		return nil
	},
}

// readOverride turns the read flags into adjustments of the configured read options
func readOverride(cmd *cobra.Command) (func(opts *binlog.ReadOptions), error) {
	var from, to *mysql.Position
	if fromFlag != "" {
		pos, err := parsePosition(fromFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid --from: %s", err)
		}
		from = &pos
	}
	if toFlag != "" {
		pos, err := parsePosition(toFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid --to: %s", err)
		}
		to = &pos
	}
	filter, err := utils.ParseKeyValues(filterFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid --filter: %s", err)
	}
	limit := cmd.Flags().Changed("max-events")

	return func(opts *binlog.ReadOptions) {
		if from != nil {
			opts.From = *from
		}
		if to != nil {
			opts.To = to
		}
		if limit {
			opts.MaxEvents = maxEvents
		}
		opts.ExcludeTables = append(opts.ExcludeTables, excludeFlag...)
		if len(filter) > 0 {
			merged := make(map[string]any, len(opts.Filter)+len(filter))
			for column, value := range opts.Filter {
				merged[column] = value
			}
			for column, value := range filter {
				merged[column] = value
			}
			opts.Filter = merged
		}
	}, nil
}

// parsePosition reads a "file:offset" coordinate; a bare file name starts at offset 4
func parsePosition(value string) (mysql.Position, error) {
	name, offset, found := strings.Cut(strings.TrimSpace(value), ":")
	if name == "" {
		return mysql.Position{}, fmt.Errorf("missing binlog file name in %q", value)
	}
	if !found {
		return mysql.Position{Name: name, Pos: 4}, nil
	}
	pos, err := strconv.ParseUint(offset, 10, 32)
	if err != nil {
		return mysql.Position{}, fmt.Errorf("invalid offset in %q: %s", value, err)
	}
	return mysql.Position{Name: name, Pos: uint32(pos)}, nil
}

func init() {
	readCmd.Flags().StringVarP(&fromFlag, "from", "", "", "(Optional) Start position file:offset, defaults to the state cursor")
	readCmd.Flags().StringVarP(&toFlag, "to", "", "", "(Optional) Exclusive end position file:offset")
	readCmd.Flags().Int64VarP(&maxEvents, "max-events", "", 0, "(Optional) Row limit, the current statement is always finished")
	readCmd.Flags().StringSliceVarP(&excludeFlag, "exclude", "", nil, "(Optional) Tables to skip")
	readCmd.Flags().StringArrayVarP(&filterFlag, "filter", "", nil, "(Optional) column=value attribute filter, repeatable")
	readCmd.Flags().StringVarP(&outputPath, "output", "", "", "(Optional) SQL output file, routed channels go to <output>.<channel>; stdout when empty")
	readCmd.Flags().StringVarP(&schemaToken, "schema-token", "", "", "(Optional) Schema snapshot to read against, defaults to the state's")
}
