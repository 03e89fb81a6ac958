package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	echoapi "github.com/darasahq/darasa/apps/api/echo"
	"github.com/darasahq/darasa/core"
	"github.com/darasahq/darasa/core/attendance"
	"github.com/darasahq/darasa/core/course"
	"github.com/darasahq/darasa/core/student"
	logsvc "github.com/darasahq/darasa/services/logger"
	inmemdoc "github.com/darasahq/darasa/storage/document/inmem"
	pgdoc "github.com/darasahq/darasa/storage/document/postgres"
)

func main() {
	std := log.New(os.Stdout, "DARASA : ", log.LstdFlags|log.Lshortfile)

	// set up logging
	var logger core.Logger
	if core.Conf.Debug {
		logger = core.NewStdLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, core.Conf)
	}

	// set up the document store
	var (
		attRepo attendance.Repository
		crsRepo course.Repository
		stdRepo student.Repository
		feed    attendance.Feed
	)
	if core.Conf.Debug || core.Conf.TestMode {
		db, err := inmemdoc.Open()
		errAndDie(std, err)
		attRepo = inmemdoc.NewAttendanceRepository(db)
		crsRepo = inmemdoc.NewCourseRepository(db)
		stdRepo = inmemdoc.NewStudentRepository(db)
		feed = inmemdoc.NewFeed(db)
	} else {
		db, err := pgdoc.Open(core.Conf)
		errAndDie(std, err)
		defer func() { _ = db.Close() }()
		attRepo = pgdoc.NewAttendanceRepository(db)
		crsRepo = pgdoc.NewCourseRepository(db)
		stdRepo = pgdoc.NewStudentRepository(db)
		feed = pgdoc.NewFeed(db, pgdoc.ConnInfo(core.Conf), logger)
	}

	// set up services
	attSvc := attendance.NewService(logger, attRepo, crsRepo, stdRepo)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// start API server
	app := echoapi.NewServer(&echoapi.Options{
		Address:        core.Conf.Server.Address(),
		Logger:         logger,
		AttendanceSvc:  attSvc,
		Feed:           feed,
		StudentRepo:    stdRepo,
		SignalShutdown: func() { shutdown <- syscall.SIGTERM },
	})
	go app.Start()
	logger.Info("API server started", map[string]interface{}{"address": core.Conf.Server.Address()})

	<-shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		logger.Error("graceful shutdown failed", err)
	}
}

func errAndDie(std *log.Logger, err error) {
	if err != nil {
		std.Fatal(err)
	}
}
