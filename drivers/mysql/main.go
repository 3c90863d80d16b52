package main

import (
	"github.com/datazip-inc/binlogdir"
	"github.com/datazip-inc/binlogdir/drivers/base"
	driver "github.com/datazip-inc/binlogdir/drivers/mysql/internal"
)

func main() {
	binlogdir.RegisterDriver(&driver.MySQL{
		Driver: base.NewBase(),
	})
}
