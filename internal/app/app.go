// Package app wires configuration into the running services shared by
// the server, worker and newsletterctl binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/newsletter/internal/archive"
	"github.com/ignite/newsletter/internal/config"
	"github.com/ignite/newsletter/internal/digest"
	"github.com/ignite/newsletter/internal/mailer"
	"github.com/ignite/newsletter/internal/pkg/distlock"
	"github.com/ignite/newsletter/internal/pkg/logger"
	"github.com/ignite/newsletter/internal/repository/memory"
	"github.com/ignite/newsletter/internal/repository/postgres"
	"github.com/ignite/newsletter/internal/service/audience"
	"github.com/ignite/newsletter/internal/service/campaign"
	"github.com/ignite/newsletter/internal/service/delivery"
	"github.com/ignite/newsletter/internal/service/engagement"
	"github.com/ignite/newsletter/internal/service/ledger"
	"github.com/ignite/newsletter/internal/service/subscriber"
	"github.com/ignite/newsletter/internal/service/template"
	"github.com/ignite/newsletter/internal/tracking"
)

// App holds the wired services. DB and Redis are nil when not configured.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client

	Renderer    *mailer.Renderer
	Campaigns   *campaign.Service
	Subscribers *subscriber.Service
	Templates   *template.Service
	Ledger      *ledger.Service
	Engagement  *engagement.Service
	Archiver    *archive.Archiver
	Digest      *digest.Builder
	Locks       *distlock.Factory

	Signer   *tracking.Signer
	Sink     tracking.Sink
	Consumer *tracking.Consumer
}

// repos is the set of repositories behind the services.
type repos struct {
	campaigns   campaign.Repository
	subscribers subscriber.Repository
	activities  ledger.Repository
	templates   template.Repository
	engagement  engagement.Repository
	audience    audience.Store
}

// New connects to the configured backends and builds every service.
// Without a database URL it runs on the in-memory store.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Renderer: mailer.NewRenderer()}

	var r repos
	if cfg.Database.URL != "" {
		db, err := OpenDB(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.DB = db
		subs := postgres.NewSubscriberRepo(db)
		r = repos{
			campaigns:   postgres.NewCampaignRepo(db),
			subscribers: subs,
			activities:  postgres.NewActivityRepo(db),
			templates:   postgres.NewTemplateRepo(db),
			engagement:  postgres.NewEngagementRepo(db),
			audience:    subs,
		}
	} else {
		logger.Warn("no database configured, using in-memory store")
		store := memory.NewStore()
		r = repos{
			campaigns:   store.Campaigns(),
			subscribers: store.Subscribers(),
			activities:  store.Activities(),
			templates:   store.Templates(),
			engagement:  store.Engagement(),
			audience:    store.Subscribers(),
		}
	}

	if cfg.Redis.URL != "" {
		client, err := mailer.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Redis = client
	}
	a.Locks = distlock.NewFactory(a.Redis, a.DB, cfg.Scheduler.LockTTL())

	transport, err := a.transport(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Ledger = ledger.NewService(r.activities)
	worker := delivery.NewWorker(transport, a.Ledger, a.Renderer, delivery.Options{
		DefaultFromName:  cfg.Sending.DefaultFromName,
		DefaultFromEmail: cfg.Sending.DefaultFromEmail,
		SiteURL:          cfg.Sending.SiteURL,
	})
	if cfg.Sending.SigningKey != "" {
		a.Signer = tracking.NewSigner(cfg.Sending.SigningKey, cfg.Sending.SiteURL)
		if cfg.Sending.TrackEngagement {
			worker.SetTracker(a.Signer)
		}
	}

	a.Templates = template.NewService(r.templates)
	a.Templates.SetSyntaxChecker(a.Renderer)

	a.Campaigns = campaign.NewService(r.campaigns, audience.NewResolver(r.audience), worker)
	a.Campaigns.SetPoolSize(cfg.Sending.WorkerPoolSize)
	a.Campaigns.SetTemplates(a.Templates)

	a.Archiver, err = archive.New(ctx, cfg.Archive, a.Ledger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("archive: %w", err)
	}
	a.Campaigns.SetArchiver(a.Archiver)

	a.Subscribers = subscriber.NewService(r.subscribers, a.Ledger, worker)
	a.Subscribers.SetDoubleOptIn(cfg.Sending.DoubleOptIn)

	a.Engagement = engagement.NewService(r.engagement)

	if cfg.Digest.FeedURL != "" {
		a.Digest = digest.NewBuilder(cfg.Digest.FeedURL, cfg.Digest.MaxItems, a.Renderer, a.Campaigns)
	}

	if err := a.tracking(ctx); err != nil {
		a.Close()
		return nil, err
	}

	logger.Info("services ready",
		"database", a.DB != nil,
		"redis", a.Redis != nil,
		"locks", a.Locks.Backend(),
		"archive", cfg.Archive.Type,
		"tracking_queue", a.Consumer != nil,
		"digest", a.Digest != nil)
	return a, nil
}

// transport picks SES when credentials or a configuration set are given
// and the log transport otherwise, paced through Redis when available.
func (a *App) transport(ctx context.Context) (mailer.Sender, error) {
	cfg := a.Config
	var sender mailer.Sender
	if cfg.SES.AccessKey != "" || cfg.SES.ConfigurationSet != "" {
		ses, err := mailer.NewSESTransport(ctx, cfg.SES)
		if err != nil {
			return nil, fmt.Errorf("ses transport: %w", err)
		}
		sender = ses
	} else {
		logger.Warn("no SES credentials configured, emails are logged instead of sent")
		sender = mailer.LogTransport{}
	}
	if a.Redis != nil && cfg.Sending.RatePerSecond > 0 {
		sender = mailer.NewRateLimitedTransport(sender, a.Redis, cfg.Sending.RatePerSecond)
	}
	return sender, nil
}

// tracking routes engagement events through SQS when a queue is set and
// straight into the engagement service otherwise.
func (a *App) tracking(ctx context.Context) error {
	cfg := a.Config
	if !cfg.Tracking.Enabled || cfg.Tracking.SQSQueueURL == "" {
		a.Sink = tracking.NewDirectSink(a.Engagement)
		return nil
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Tracking.SQSRegion)}
	if cfg.SES.AccessKey != "" && cfg.SES.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SES.AccessKey, cfg.SES.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config for sqs: %w", err)
	}
	client := sqs.NewFromConfig(awsCfg)
	a.Sink = tracking.NewPublisher(client, cfg.Tracking.SQSQueueURL)
	a.Consumer = tracking.NewConsumer(client, cfg.Tracking.SQSQueueURL, a.Engagement)
	return nil
}

// Close releases the database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// OpenDB opens and pings the PostgreSQL pool.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
