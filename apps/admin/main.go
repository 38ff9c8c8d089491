package main

import (
	"log"
	"os"

	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/cliff"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/core/session"
	logsvc "github.com/shravan-swagwalapm/rethink-dashboard-sub005/services/logger"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/services/telemetry"
	"github.com/shravan-swagwalapm/rethink-dashboard-sub005/storage/database"
	sqlxrepos "github.com/shravan-swagwalapm/rethink-dashboard-sub005/storage/database/sqlx"
)

var logger *logsvc.RollbarLogger

func main() {
	conf := core.NewConfig()

	logger = logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)

	// set up services
	detector, err := cliff.NewDetector(cliff.ParamsFromConfig(conf.Cliff))
	errAndDie(err)
	svc := session.NewService(
		sqlxrepos.NewSessionRepository(db),
		telemetry.NewFileProviderFromConfig(conf),
		detector,
		logger,
		conf.Attendance.LowThreshold,
	)

	// start CLI
	cli := commandLine{
		db:           db.DB,
		sessionSvc:   svc,
		orchestrator: session.NewOrchestrator(svc, session.BatchOptionsFromConfig(conf.Telemetry)),
		stdin:        os.Stdin,
		stdout:       os.Stdout,
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Close()
	if err != nil {
		if err != errHelp {
			log.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
