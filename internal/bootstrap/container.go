// Package bootstrap assembles repositories and services from configuration.
// Both the HTTP gateway and examctl build on the same container.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/internal/repository"
	"github.com/noah-isme/sma-exam-engine/internal/service"
	"github.com/noah-isme/sma-exam-engine/pkg/cache"
	"github.com/noah-isme/sma-exam-engine/pkg/clock"
	"github.com/noah-isme/sma-exam-engine/pkg/config"
	"github.com/noah-isme/sma-exam-engine/pkg/database"
	"github.com/noah-isme/sma-exam-engine/pkg/jobs"
	"github.com/noah-isme/sma-exam-engine/pkg/storage"
)

// Container holds the wired services of one process.
type Container struct {
	Config *config.Config
	DB     *sqlx.DB
	Logger *zap.Logger

	Metrics     *service.MetricsService
	Cache       *service.CacheService
	Dispatcher  *service.NotificationDispatcher
	Reminders   *jobs.Scheduler
	Auth        *service.AuthService
	Exams       *service.ExamService
	Schedules   *service.ExamScheduleService
	Results     *service.ResultService
	Ranking     *service.RankingService
	ReportCards *service.ReportCardService
	Analytics   *service.AnalyticsService
	Scales      *service.GradingScaleService
	Questions   *service.QuestionService
	OnlineExams *service.OnlineExamService
	Attempts    *service.AttemptService
	Exports     *service.ExportService
	Outbox      *repository.NotificationRepository

	redis  *redis.Client
	files  *storage.LocalStorage
	cancel context.CancelFunc
}

// New connects to Postgres (and Redis when analytics caching is on) and wires every service.
// The dispatcher is started with a context owned by the container; call Close to release it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := &Container{Config: cfg, DB: db, Logger: logger, cancel: cancel}

	var cacheRepo service.CacheRepository
	if cfg.Analytics.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
		} else {
			c.redis = client
			cacheRepo = repository.NewCacheRepository(client, cfg.Redis.KeyPrefix)
		}
	}

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.files = files
	c.Exports = newExportService(cfg, files, logger)

	c.wire(runCtx, cacheRepo)
	c.Dispatcher.Start(runCtx)
	return c, nil
}

func newExportService(cfg *config.Config, store *storage.LocalStorage, logger *zap.Logger) *service.ExportService {
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	return service.NewExportService(store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logger.Named("exports"), nil, nil)
}

func (c *Container) wire(ctx context.Context, cacheRepo service.CacheRepository) {
	cfg, logger := c.Config, c.Logger
	validate := validator.New()
	clk := clock.System{}
	tx := database.NewTxManager(c.DB, cfg.Database.TxRetries, logger.Named("tx"))

	exams := repository.NewExamRepository(c.DB)
	schedules := repository.NewExamScheduleRepository(c.DB)
	results := repository.NewResultRepository(c.DB)
	students := repository.NewStudentRepository(c.DB)
	classes := repository.NewClassRepository(c.DB)
	terms := repository.NewTermRepository(c.DB)
	cards := repository.NewReportCardRepository(c.DB)
	gradingSystems := repository.NewGradingSystemRepository(c.DB)
	questions := repository.NewQuestionRepository(c.DB)
	onlineExams := repository.NewOnlineExamRepository(c.DB)
	attempts := repository.NewAttemptRepository(c.DB)
	attendance := repository.NewDailyAttendanceRepository(c.DB)
	c.Outbox = repository.NewNotificationRepository(c.DB)

	c.Metrics = service.NewMetricsService()
	c.Cache = service.NewCacheService(cacheRepo, c.Metrics, cfg.Analytics.CacheTTL, logger.Named("cache"), cfg.Analytics.Enabled)
	c.Auth = service.NewAuthService(service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer, Audience: cfg.JWT.Audience})

	sinks := []service.NotificationSink{service.NewLogSink(logger.Named("events"))}
	if cfg.Notifications.OutboxEnabled {
		sinks = append(sinks, service.NewOutboxSink(c.Outbox))
	}
	if email := service.NewEmailSink(service.EmailSinkConfig{
		APIKey:     cfg.Notifications.SendGridAPIKey,
		From:       cfg.Notifications.EmailFrom,
		FromName:   cfg.Notifications.EmailFromName,
		Recipients: cfg.Notifications.StaffRecipient,
	}); email != nil {
		sinks = append(sinks, email)
	}
	c.Dispatcher = service.NewNotificationDispatcher(jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, sinks, c.Metrics, clk, logger.Named("notifications"))
	c.Reminders = jobs.NewScheduler(ctx, c.Dispatcher, logger.Named("reminders"))

	c.Scales = service.NewGradingScaleService(gradingSystems, tx, validate, logger.Named("grading_scales"))
	c.Ranking = service.NewRankingService(schedules, results, tx, logger.Named("ranking"))
	c.Exams = service.NewExamService(exams, terms, schedules, tx, service.ExamServiceConfig{
		Reminders:    c.Reminders,
		ReminderLead: cfg.Notifications.ReminderLead,
		Clock:        clk,
	}, validate, logger.Named("exams"))
	c.Schedules = service.NewExamScheduleService(exams, schedules, classes, tx, c.Exams, validate, logger.Named("schedules"))

	c.Results = service.NewResultService(service.ResultServiceDeps{
		Schedules: schedules,
		Results:   results,
		Students:  students,
		Exams:     exams,
		Scales:    c.Scales,
		Ranker:    c.Ranking,
		Tx:        tx,
		Publisher: c.Dispatcher,
		Cache:     c.Cache,
		Metrics:   c.Metrics,
	}, service.ResultServiceConfig{
		BulkDeadline: cfg.Results.BulkDeadline,
		MaxBatchSize: cfg.Results.MaxBatchSize,
		Clock:        clk,
	}, validate, logger.Named("results"))

	c.ReportCards = service.NewReportCardService(service.ReportCardServiceDeps{
		Cards:      cards,
		Terms:      terms,
		Classes:    classes,
		Members:    students,
		Facts:      results,
		Scales:     c.Scales,
		Attendance: service.NewAttendanceService(attendance, logger.Named("attendance")),
		Exporter:   c.Exports,
		Tx:         tx,
		Publisher:  c.Dispatcher,
		Cache:      c.Cache,
		Metrics:    c.Metrics,
	}, service.ReportCardServiceConfig{
		DefaultStatus:       models.ReportCardStatus(cfg.ReportCards.DefaultStatus),
		LowPerformanceBelow: cfg.ReportCards.LowPerformanceBelow,
		LowPerformanceFails: cfg.ReportCards.LowPerformanceFails,
		BulkDeadline:        cfg.Results.BulkDeadline,
		Clock:               clk,
	}, validate, logger.Named("report_cards"))

	c.Analytics = service.NewAnalyticsService(results, exams, cards, c.Cache, c.Metrics, clk, logger.Named("analytics"))
	c.Questions = service.NewQuestionService(questions, validate, logger.Named("questions"))
	c.OnlineExams = service.NewOnlineExamService(onlineExams, schedules, questions, tx, validate, logger.Named("online_exams"))

	c.Attempts = service.NewAttemptService(service.AttemptServiceDeps{
		Attempts:    attempts,
		OnlineExams: onlineExams,
		Enrollments: students,
		Questions:   questions,
		Results:     results,
		Schedules:   schedules,
		Scales:      c.Scales,
		Ranker:      c.Ranking,
		Tx:          tx,
		Publisher:   c.Dispatcher,
		Cache:       c.Cache,
		Metrics:     c.Metrics,
	}, service.AttemptServiceConfig{
		AutosaveInterval: cfg.Attempts.AutosaveInterval,
		Clock:            clk,
	}, logger.Named("attempts"))
}

// Ping checks database connectivity.
func (c *Container) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close stops background workers and releases connections.
func (c *Container) Close() {
	if c.Reminders != nil {
		c.Reminders.Stop()
	}
	if c.Dispatcher != nil {
		c.Dispatcher.Stop()
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if c.files != nil {
		_ = c.files.Close()
	}
	if err := c.DB.Close(); err != nil {
		c.Logger.Warn("close database", zap.Error(err))
	}
}
