package main

import (
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	return gooseRunFunc(cli.db, args[0], args[1:]...)
}
