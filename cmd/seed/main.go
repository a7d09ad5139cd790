package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/bootstrap"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

var slotDurations = []int{15, 20, 30, 45, 60}

func main() {
	providers := flag.Int("providers", 50, "number of providers to create")
	patients := flag.Int("patients", 2000, "number of patients to create")
	seed := flag.Int64("seed", 0, "random seed, 0 for time based")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config load error: %v", err)
	}
	log := bootstrap.NewLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("connect postgres")
	}
	defer pool.Close()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	faker := gofakeit.New(uint64(*seed))
	repo := appointment.NewPgRepository(pool)

	if err := seedProviders(ctx, log, repo, faker, *providers); err != nil {
		log.WithError(err).Fatal("seed providers")
	}
	if err := seedPatients(ctx, log, repo, faker, *patients); err != nil {
		log.WithError(err).Fatal("seed patients")
	}

	log.Info("seed complete")
}

// seedProviders creates providers with a weekday schedule split around a
// lunch break.
func seedProviders(ctx context.Context, log *logrus.Logger, repo *appointment.PgRepository, faker *gofakeit.Faker, count int) error {
	log.WithField("count", count).Info("seeding providers")

	for i := 0; i < count; i++ {
		specialty := specialties[faker.Number(0, len(specialties)-1)]
		email := providerEmail(faker, i)
		p := &appointment.Provider{
			Name:      "Dr. " + faker.LastName(),
			Specialty: &specialty,
			Email:     &email,
		}
		slot := slotDurations[faker.Number(0, len(slotDurations)-1)]
		rules := weekdayRules(faker)

		err := repo.WithTx(ctx, func(ctx context.Context) error {
			if err := repo.CreateProvider(ctx, p); err != nil {
				return err
			}
			return repo.ReplaceWeeklyAvailability(ctx, p.ID, slot, rules)
		})
		if err != nil {
			return fmt.Errorf("provider %d: %w", i, err)
		}
	}

	log.Info("providers seeded")
	return nil
}

func weekdayRules(faker *gofakeit.Faker) []appointment.AvailabilityRule {
	var rules []appointment.AvailabilityRule
	for day := time.Monday; day <= time.Friday; day++ {
		// Roughly one day off per week.
		if faker.Number(1, 5) == 1 {
			continue
		}
		start := appointment.TimeOfDay(faker.Number(8, 10) * 60)
		rules = append(rules,
			appointment.AvailabilityRule{Weekday: day, Start: start, End: 12 * 60},
			appointment.AvailabilityRule{Weekday: day, Start: 13 * 60, End: appointment.TimeOfDay(faker.Number(16, 18) * 60)},
		)
	}
	return rules
}

func seedPatients(ctx context.Context, log *logrus.Logger, repo *appointment.PgRepository, faker *gofakeit.Faker, count int) error {
	log.WithField("count", count).Info("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		err := repo.WithTx(ctx, func(ctx context.Context) error {
			for i := offset; i < end; i++ {
				email := faker.Email()
				if err := repo.CreatePatient(ctx, &appointment.Patient{Name: faker.Name(), Email: &email}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		log.WithFields(logrus.Fields{"done": end, "total": count}).Info("patients seeded")
	}
	return nil
}

func providerEmail(faker *gofakeit.Faker, n int) string {
	return fmt.Sprintf("%s.%d@clinic.test", strings.ToLower(faker.LastName()), n)
}
