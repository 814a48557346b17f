package task

import (
	"context"
	"log/slog"

	"github.com/icodeforyou/meterit-go/config"
	"github.com/icodeforyou/meterit-go/period"
	"github.com/robfig/cron/v3"
)

type Tasks struct {
	cron            *cron.Cron
	cnfg            *config.AppConfig
	EnergyPriceTask func()
	MaintenanceTask func()
}

// NewTasks schedules in the price time zone so run_at is local wall clock
// time. A job still running when its next tick comes is skipped.
func NewTasks(
	db MaintenanceStore,
	prices PriceReader,
	fetcher *PriceFetcher,
	cnfg *config.AppConfig,
) *Tasks {
	logger := slog.Default().With("module", "tasks")
	cl := cronLogger{logger: logger.With(slog.String("component", "cron"))}

	return &Tasks{
		cron: cron.New(
			cron.WithLocation(period.Location()),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		cnfg: cnfg,
		EnergyPriceTask: NewEnergyPriceTask(
			logger.With(slog.String("task", "energy_price")),
			fetcher,
			prices,
			cnfg.EnergyPrice.GetFetchOnStartup()),
		MaintenanceTask: NewMaintenanceTask(logger.With(slog.String("task", "maintenance")), db, cnfg),
	}
}

func (t *Tasks) Run() {
	_, err := t.cron.AddFunc(t.cnfg.EnergyPrice.GetRunAt(), t.EnergyPriceTask)
	if err != nil {
		panic(err)
	}
	_, err = t.cron.AddFunc(t.cnfg.Maintenance.GetRunAt(), t.MaintenanceTask)
	if err != nil {
		panic(err)
	}
	t.cron.Start()
}

func (t *Tasks) Stop() context.Context {
	return t.cron.Stop()
}

// Entries lists the scheduled jobs, mostly for diagnostics.
func (t *Tasks) Entries() []cron.Entry {
	return t.cron.Entries()
}
