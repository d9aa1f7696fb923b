// Command seed loads demo data: a super admin, vertical packs with a staged rollout
// in flight, and two businesses with staff, services, customers and bookings.
// Running it again leaves existing records alone.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/adapter/postgres"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/adapter/redis"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/app"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/domain"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/crypto"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/crypto/cryptotest"
	"github.com/Farzin-habibp0ur/booking-os-sub005/internal/platform/logging"
)

type seedPack struct {
	slug     string
	name     string
	vertical string
	baseline domain.PackContent
	// next, when set, is published and rolled out to its first stage.
	next   *domain.PackContent
	stages []int
}

var packs = []seedPack{
	{
		slug:     "clinic-default",
		name:     "Clinic",
		vertical: "clinic",
		baseline: domain.PackContent{
			Labels: map[string]string{"customer": "Patient", "booking": "Appointment", "staff": "Practitioner"},
			IntakeFields: []domain.IntakeField{
				{Key: "insurance", Label: "Insurance provider", Type: domain.FieldText, Required: true},
			},
			DefaultServices: []domain.DefaultService{
				{Name: "Check-up", DurationMinutes: 30, PriceCents: 6000},
				{Name: "Cleaning", DurationMinutes: 45, PriceCents: 9000},
			},
			MessageTemplates: []domain.MessageTemplate{
				{Key: "reminder", Body: "Hi {{name}}, see you for your appointment on {{date}}."},
			},
		},
		next: &domain.PackContent{
			Labels: map[string]string{"customer": "Patient", "booking": "Visit", "staff": "Practitioner"},
			IntakeFields: []domain.IntakeField{
				{Key: "insurance", Label: "Insurance provider", Type: domain.FieldText, Required: true},
				{Key: "first_visit", Label: "First visit?", Type: domain.FieldBoolean},
				{Key: "allergies", Label: "Known allergies", Type: domain.FieldText},
			},
			DefaultServices: []domain.DefaultService{
				{Name: "Check-up", DurationMinutes: 30, PriceCents: 6500},
				{Name: "Cleaning", DurationMinutes: 45, PriceCents: 9500},
				{Name: "Whitening", DurationMinutes: 60, PriceCents: 25000},
			},
		},
		stages: []int{25, 50, 100},
	},
	{
		slug:     "salon-default",
		name:     "Salon",
		vertical: "salon",
		baseline: domain.PackContent{
			Labels: map[string]string{"customer": "Client", "booking": "Appointment", "staff": "Stylist"},
			IntakeFields: []domain.IntakeField{
				{Key: "hair_length", Label: "Hair length", Type: domain.FieldSelect, Options: []string{"short", "medium", "long"}},
			},
			DefaultServices: []domain.DefaultService{
				{Name: "Cut", DurationMinutes: 45, PriceCents: 4500},
				{Name: "Colour", DurationMinutes: 90, PriceCents: 12000},
			},
		},
	},
}

type seedBusinessData struct {
	setup     app.SetupInput
	agent     app.CreateStaffInput
	customers []app.CustomerInput
	intake    map[string]string
}

var businesses = []seedBusinessData{
	{
		setup: app.SetupInput{
			Business:      app.CreateBusinessInput{Slug: "smile-dental", Name: "Smile Dental", Vertical: "clinic", Timezone: "Europe/Berlin", OpenMinute: 8 * 60, CloseMinute: 18 * 60},
			OwnerName:     "Olga Owner",
			OwnerEmail:    "owner@smile-dental.test",
			OwnerPassword: "demo-password",
		},
		agent: app.CreateStaffInput{Email: "front-desk@smile-dental.test", Name: "Frank Desk", Role: domain.RoleAgent, Password: "demo-password"},
		customers: []app.CustomerInput{
			{Name: "Pat Patient", Email: "pat@example.test", Phone: "+49 30 1234567"},
			{Name: "Robin Root", Email: "robin@example.test"},
		},
		intake: map[string]string{"insurance": "TK"},
	},
	{
		setup: app.SetupInput{
			Business:      app.CreateBusinessInput{Slug: "glow-salon", Name: "Glow Salon", Vertical: "salon", Timezone: "Europe/London", OpenMinute: 10 * 60, CloseMinute: 19 * 60},
			OwnerName:     "Gail Glow",
			OwnerEmail:    "owner@glow-salon.test",
			OwnerPassword: "demo-password",
		},
		agent: app.CreateStaffInput{Email: "stylist@glow-salon.test", Name: "Sam Stylist", Role: domain.RoleAgent, Password: "demo-password"},
		customers: []app.CustomerInput{
			{Name: "Casey Client", Email: "casey@example.test"},
		},
		intake: map[string]string{"hair_length": "medium"},
	},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Print("No .env file found, using environment variables")
	}

	var (
		databaseURL   = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL env)")
		redisURL      = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		adminEmail    = flag.String("admin-email", "ops@booking-os.test", "Super admin email")
		adminPassword = flag.String("admin-password", os.Getenv("SEED_ADMIN_PASSWORD"), "Super admin password (or set SEED_ADMIN_PASSWORD env)")
		verbose       = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *databaseURL == "" || *redisURL == "" {
		log.Fatal("Database and Redis URLs required (--database/--redis or DATABASE_URL/REDIS_URL env)")
	}
	if *adminPassword == "" {
		log.Fatal("Super admin password required (--admin-password or SEED_ADMIN_PASSWORD env)")
	}

	logLevel := "info"
	if *verbose {
		logLevel = "debug"
	}
	logging.InitLogger(logLevel, "text")

	ctx := context.Background()

	pool, err := postgres.Connect(ctx, *databaseURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	rdb, err := redis.NewClient(ctx, *redisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()
	slog.Info("Connected", "database", redactURL(*databaseURL), "redis", redactURL(*redisURL))

	svc := newService(pool, rdb, clockwork.NewRealClock())

	start := time.Now()
	admin, err := svc.EnsureSuperAdmin(ctx, *adminEmail, "Platform Ops", *adminPassword)
	if err != nil {
		log.Fatalf("Failed to ensure super admin: %v", err)
	}
	slog.Info("Super admin ready", "email", admin.Email)

	for _, p := range packs {
		if err := seedPackVersions(ctx, svc, p, &admin.ID); err != nil {
			log.Fatalf("Failed to seed pack %s: %v", p.slug, err)
		}
	}

	for _, b := range businesses {
		if err := seedBusiness(ctx, svc, b); err != nil {
			log.Fatalf("Failed to seed business %s: %v", b.setup.Business.Slug, err)
		}
	}

	slog.Info("Seed complete", "duration_ms", time.Since(start).Milliseconds())
}

func newService(pool *pgxpool.Pool, rdb *goredis.Client, clock clockwork.Clock) *app.Service {
	packRepo := postgres.NewPackRepo(pool)
	cache := redis.NewPackCache(rdb, packRepo, time.Second, clock, nil)

	var sealer crypto.Service = cryptotest.PlainService{}
	if key := os.Getenv("SETTINGS_ENCRYPTION_KEY"); key != "" {
		aes, err := crypto.NewAesGcmService(key)
		if err != nil {
			log.Fatalf("Failed to create settings cipher: %v", err)
		}
		sealer = aes
	}

	return app.NewService(app.Deps{
		Businesses:  postgres.NewBusinessRepo(pool),
		Staff:       postgres.NewStaffRepo(pool),
		Customers:   postgres.NewCustomerRepo(pool),
		Offerings:   postgres.NewOfferingRepo(pool),
		Bookings:    postgres.NewBookingRepo(pool),
		Packs:       packRepo,
		Support:     postgres.NewSupportCaseRepo(pool),
		Settings:    postgres.NewSettingsRepo(pool),
		Snapshots:   cache,
		Invalidator: cache,
		Sealer:      sealer,
		Clock:       clock,
	})
}

// seedPackVersions creates the pack if needed and, only when it has no versions yet,
// a completed baseline plus an optional staged rollout on top.
func seedPackVersions(ctx context.Context, svc *app.Service, p seedPack, actor *uuid.UUID) error {
	all, err := svc.ListPacks(ctx)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(all, func(existing domain.Pack) bool { return existing.Slug == p.slug })

	var pack *domain.Pack
	if idx >= 0 {
		pack = &all[idx]
	} else {
		pack, err = svc.CreatePack(ctx, app.CreatePackInput{Slug: p.slug, Name: p.name, Vertical: p.vertical})
		if err != nil {
			return err
		}
	}

	versions, err := svc.ListVersions(ctx, pack.ID)
	if err != nil {
		return err
	}
	if len(versions) > 0 {
		slog.Info("Pack already has versions, skipping", "pack", p.slug, "versions", len(versions))
		return nil
	}

	if _, err := releaseVersion(ctx, svc, pack.ID, p.baseline, "baseline", []int{100}, actor); err != nil {
		return err
	}
	if p.next != nil {
		v, err := releaseVersion(ctx, svc, pack.ID, *p.next, "staged update", p.stages, actor)
		if err != nil {
			return err
		}
		slog.Info("Rollout started", "pack", p.slug, "version", v.Version, "percent", v.RolloutPercent)
	}
	return nil
}

func releaseVersion(ctx context.Context, svc *app.Service, packID uuid.UUID, content domain.PackContent, notes string, stages []int, actor *uuid.UUID) (*domain.PackVersion, error) {
	draft, err := svc.CreateDraft(ctx, packID, content, notes, actor)
	if err != nil {
		return nil, err
	}
	if _, err := svc.Publish(ctx, draft.ID, actor); err != nil {
		return nil, err
	}
	return svc.StartRollout(ctx, draft.ID, stages, 24*time.Hour, actor)
}

// seedBusiness runs the setup wizard and adds demo records. An existing business is left untouched.
func seedBusiness(ctx context.Context, svc *app.Service, b seedBusinessData) error {
	res, err := svc.Setup(ctx, b.setup)
	if errors.Is(err, domain.ErrBusinessExists) || errors.Is(err, domain.ErrStaffExists) {
		slog.Info("Business already exists, skipping", "slug", b.setup.Business.Slug)
		return nil
	}
	if err != nil {
		return err
	}
	bizID := res.Business.ID

	agent, err := svc.CreateStaff(ctx, bizID, b.agent)
	if err != nil {
		return err
	}

	loc, err := res.Business.Location()
	if err != nil {
		return err
	}
	tomorrow := time.Now().In(loc).AddDate(0, 0, 1)
	opening := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, b.setup.Business.OpenMinute, 0, 0, loc)

	for i, in := range b.customers {
		customer, err := svc.SaveCustomer(ctx, bizID, in)
		if err != nil {
			return err
		}
		if len(res.Offerings) == 0 {
			continue
		}
		offering := res.Offerings[i%len(res.Offerings)]
		staffID := res.Owner.ID
		if i%2 == 1 {
			staffID = agent.ID
		}
		_, err = svc.CreateBooking(ctx, bizID, app.CreateBookingInput{
			CustomerID: customer.ID,
			StaffID:    staffID,
			OfferingID: offering.ID,
			StartsAt:   opening.Add(time.Duration(i) * 2 * time.Hour),
			Intake:     b.intake,
		})
		if err != nil {
			return err
		}
	}

	slog.Info("Business seeded", "slug", res.Business.Slug, "services", len(res.Offerings), "customers", len(b.customers))
	return nil
}

// redactURL hides the password of a connection URL for logging.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
