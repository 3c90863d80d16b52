package binlog

import (
	"fmt"

	"github.com/datazip-inc/binlogdir/types"
	"github.com/datazip-inc/binlogdir/utils"
	"github.com/go-mysql-org/go-mysql/mysql"
)

// ReadOptions describes one read session over a binlog directory
type ReadOptions struct {
	Dir             string          `json:"binlog_dir" validate:"required"`
	From            mysql.Position  `json:"from"`
	To              *mysql.Position `json:"to,omitempty"`
	MaxEvents       int64           `json:"max_events" validate:"gte=0"`
	ExcludeTables   []string        `json:"exclude_tables"`
	Filter          map[string]any  `json:"filter"`
	CharsetFallback string          `json:"charset_fallback" validate:"required,oneof=raw utf8"`
	VerifyChecksum  bool            `json:"verify_checksum"`
}

func (o *ReadOptions) Validate() error {
	if o.From.Name == "" {
		return fmt.Errorf("start position is required")
	}
	if o.To != nil && o.To.Name == "" {
		return fmt.Errorf("end position must name a binlog file")
	}
	return utils.Validate(o)
}

// Cursor is where a session stopped; passing Position back as From resumes without loss or repetition
type Cursor struct {
	Position  mysql.Position `json:"position"`
	Processed int64          `json:"processed"`
	SessionID string         `json:"session_id"`
}

// OnChange receives every yielded row
type OnChange func(change *types.RowChange) error
