package binlog

import (
	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/types"
	"github.com/datazip-inc/binlogdir/utils"
)

// Filter decides which tables are decoded and which rows are yielded, and counts yielded rows
type Filter struct {
	exclude   *types.Set[string]
	match     map[string]string
	maxEvents int64
	processed int64
}

// NewFilter builds a filter from read options. Filter values are compared by their text form,
// so 1, "1" and a decimal 1 all match a column holding 1.
func NewFilter(opts *ReadOptions) *Filter {
	filter := &Filter{
		exclude:   types.NewSet(opts.ExcludeTables...),
		match:     make(map[string]string, len(opts.Filter)),
		maxEvents: opts.MaxEvents,
	}
	for column, value := range opts.Filter {
		filter.match[column] = utils.ConvertToString(value)
	}
	if filter.exclude.Len() > 0 {
		logger.Debugf("excluding tables %s", filter.exclude)
	}
	return filter
}

// Excludes is checked before the snapshot lookup, so excluded tables never need a captured schema
func (f *Filter) Excludes(table string) bool {
	return f.exclude.Exists(table)
}

// Match requires every filter column to be present with an equal value. Deletes are matched on their before-image.
func (f *Filter) Match(change *types.RowChange) bool {
	if len(f.match) == 0 {
		return true
	}
	image := change.Image()
	for column, expected := range f.match {
		value, found := image[column]
		if !found || value == nil {
			return false
		}
		if utils.ConvertToString(value) != expected {
			return false
		}
	}
	return true
}

func (f *Filter) Count() {
	f.processed++
}

func (f *Filter) Processed() int64 {
	return f.processed
}

// LimitReached is false when no limit is configured
func (f *Filter) LimitReached() bool {
	return f.maxEvents > 0 && f.processed >= f.maxEvents
}
