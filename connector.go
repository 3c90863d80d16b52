package binlogdir

import (
	"os"

	"github.com/datazip-inc/binlogdir/logger"
	"github.com/datazip-inc/binlogdir/protocol"
	"github.com/datazip-inc/binlogdir/safego"
)

func RegisterDriver(driver protocol.Driver) {
	defer safego.Recovery(true)

	// Execute the root command
	err := protocol.CreateRootCommand(true, driver).Execute()
	if cerr := driver.Close(); cerr != nil {
		logger.Warnf("failed to close %s driver: %s", driver.Type(), cerr)
	}
	if err != nil {
		logger.Fatal(err)
	}

	os.Exit(0)
}
