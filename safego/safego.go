package safego

import (
	"fmt"
	"runtime/debug"

	"github.com/datazip-inc/binlogdir/logger"
)

// Recovery logs a recovered panic with its stack; exits the process when fatal is set
func Recovery(fatal bool) {
	err := recover()
	if err == nil {
		return
	}

	msg := fmt.Sprintf("panic recovered: %v\n%s", err, debug.Stack())
	if fatal {
		logger.Fatal(msg)
	}
	logger.Error(msg)
}
