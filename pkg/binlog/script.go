package binlog

import (
	"github.com/datazip-inc/binlogdir/types"
)

type Action int

const (
	Emit Action = iota
	Suppress
)

// Script runs on every decoded row before the attribute filter. It may rewrite the change
// in place (attributes, channel) or suppress it.
type Script interface {
	Process(change *types.RowChange) (Action, error)
}

type ScriptFunc func(change *types.RowChange) (Action, error)

func (f ScriptFunc) Process(change *types.RowChange) (Action, error) {
	return f(change)
}

// Chain runs scripts in order and stops at the first suppression or error
func Chain(scripts ...Script) Script {
	return ScriptFunc(func(change *types.RowChange) (Action, error) {
		for _, script := range scripts {
			action, err := script.Process(change)
			if err != nil || action == Suppress {
				return action, err
			}
		}
		return Emit, nil
	})
}

// Router assigns the output channel of each row by table name; unrouted tables keep their channel
func Router(routes map[string]string) Script {
	return ScriptFunc(func(change *types.RowChange) (Action, error) {
		if channel, found := routes[change.Table]; found {
			change.Channel = channel
		}
		return Emit, nil
	})
}
