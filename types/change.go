package types

import (
	"time"

	"github.com/go-mysql-org/go-mysql/mysql"
	"github.com/shopspring/decimal"
)

type ChangeType string

const (
	Insert ChangeType = "insert"
	Update ChangeType = "update"
	Delete ChangeType = "delete"
)

// ColumnRef names an attribute and the character set its text is stored in
type ColumnRef struct {
	Name    string `json:"name"`
	Charset string `json:"charset,omitempty"`
}

// RowChange is one decoded row image. Attributes holds the after-image for inserts and updates;
// Before holds the before-image for updates and deletes.
type RowChange struct {
	Kind       ChangeType     `json:"kind"`
	Database   string         `json:"database"`
	Table      string         `json:"table"`
	Columns    []ColumnRef    `json:"-"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Before     map[string]any `json:"before,omitempty"`
	KeyColumn  string         `json:"key_column,omitempty"`
	Key        any            `json:"key,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Position   mysql.Position `json:"position"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Image returns the attribute set filters look at: the before-image for deletes, the after-image otherwise
func (c *RowChange) Image() map[string]any {
	if c.Kind == Delete {
		return c.Before
	}
	return c.Attributes
}

// Decimal keeps the declared scale so trailing zeros survive rendering (8.6210000, not 8.621)
type Decimal struct {
	decimal.Decimal
	Scale int32
}

func NewDecimal(value decimal.Decimal, scale int32) Decimal {
	return Decimal{Decimal: value, Scale: scale}
}

func (d Decimal) String() string {
	return d.StringFixed(d.Scale)
}

func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(d.String()), nil
}
