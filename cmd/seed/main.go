package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"cloud.google.com/go/civil"
	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/slot-booking-core/internal/config"
	"github.com/hackgods/slot-booking-core/internal/db"
	"github.com/hackgods/slot-booking-core/internal/logging"
	"github.com/hackgods/slot-booking-core/internal/scheduling"
)

// Typical clinic days; each provider gets one of these per working weekday.
var windows = []struct {
	start, end       string
	duration, buffer int
}{
	{"09:00", "17:00", 60, 15},
	{"08:30", "12:30", 30, 0},
	{"13:00", "18:00", 45, 15},
	{"10:00", "16:00", 90, 10},
}

func main() {
	providers := flag.Int("providers", 20, "number of providers to create")
	days := flag.Int("generate-days", 14, "days of slots to generate after seeding, 0 to skip")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel).With("service", "seed")
	logger.Info("seed starting", "providers", *providers)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	svc := scheduling.NewService(scheduling.NewPgRepository(pool), cfg, nil, nil, logger)
	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedProviders(ctx, svc, faker, *providers, logger); err != nil {
		logger.Error("seed providers", "error", err)
		os.Exit(1)
	}

	if *days > 0 {
		res, err := svc.GenerateSlots(ctx, scheduling.HorizonRequest(civil.DateOf(time.Now()), *days-1))
		if err != nil && !errors.Is(err, scheduling.ErrNoTemplates) {
			logger.Error("generate slots", "error", err)
			os.Exit(1)
		}
		logger.Info("slots generated", "created", res.Created, "candidates", res.Candidates)
	}

	logger.Info("seed complete")
}

func seedProviders(ctx context.Context, svc *scheduling.Service, faker *gofakeit.Faker, count int, logger *logging.Logger) error {
	for i := 0; i < count; i++ {
		email := faker.Email()
		phone := faker.Phone()
		p, err := svc.CreateProvider(ctx, scheduling.ProviderInput{
			Name:  faker.Name(),
			Email: &email,
			Phone: &phone,
		})
		if err != nil {
			return err
		}

		for day := time.Monday; day <= time.Friday; day++ {
			// Roughly one weekday in five is left off.
			if faker.Number(1, 5) == 1 {
				continue
			}
			w := windows[faker.Number(0, len(windows)-1)]
			start, _ := scheduling.ParseClock(w.start)
			end, _ := scheduling.ParseClock(w.end)
			if _, err := svc.CreateTemplate(ctx, scheduling.TemplateInput{
				ProviderID:          p.ID,
				DayOfWeek:           int(day),
				StartTime:           start,
				EndTime:             end,
				SlotDurationMinutes: w.duration,
				BufferMinutes:       w.buffer,
			}); err != nil {
				return err
			}
		}
		logger.Debug("provider seeded", "provider_id", p.ID.String(), "name", p.Name)
	}
	logger.Info("providers seeded", "count", count)
	return nil
}
