package main

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/internal/bootstrap"
	"github.com/noah-isme/sma-exam-engine/internal/handler"
	"github.com/noah-isme/sma-exam-engine/internal/middleware"
)

func registerRoutes(r *gin.Engine, app *bootstrap.Container) {
	metrics := handler.NewMetricsHandler(app.Metrics, app.Ping)
	r.GET("/health", metrics.Health)
	r.GET("/ready", metrics.Ready)
	r.GET("/metrics", metrics.Prometheus)

	exams := handler.NewExamHandler(app.Exams, app.Schedules, app.Ranking)
	results := handler.NewResultHandler(app.Results)
	cards := handler.NewReportCardHandler(app.ReportCards)
	analytics := handler.NewAnalyticsHandler(app.Analytics)
	scales := handler.NewGradingSystemHandler(app.Scales)
	questions := handler.NewQuestionHandler(app.Questions)
	onlineExams := handler.NewOnlineExamHandler(app.OnlineExams)
	attempts := handler.NewAttemptHandler(app.Attempts)

	api := r.Group(app.Config.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	// Signed download links carry their own authorization.
	api.GET("/report-cards/download/:token", cards.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(app.Auth), middleware.Audit(app.Logger.Named("audit")))

	staff := secured.Group("")
	staff.Use(middleware.Staff())
	admin := secured.Group("")
	admin.Use(middleware.Admins())

	staff.GET("/exams", exams.List)
	staff.GET("/exams/:id", exams.Get)
	admin.POST("/exams", exams.Create)
	admin.PUT("/exams/:id", exams.Update)
	admin.POST("/exams/:id/publish", exams.Publish)
	admin.POST("/exams/:id/status", exams.Transition)
	admin.POST("/exams/:id/schedules", exams.Schedule)
	staff.GET("/exams/:id/schedules", exams.Schedules)
	admin.DELETE("/schedules/:id", exams.DeactivateSchedule)
	admin.POST("/exams/:id/ranks/recompute", exams.RecomputeRanks)
	staff.GET("/exams/:id/analytics", analytics.Exam)

	staff.POST("/schedules/:id/results", results.Enter)
	staff.GET("/schedules/:id/results", results.List)

	admin.POST("/report-cards/generate", cards.Generate)
	admin.POST("/report-cards/archive", cards.Archive)
	admin.POST("/report-cards/export", cards.Export)
	staff.PATCH("/report-cards/:id/remarks", cards.UpdateRemarks)
	secured.GET("/report-cards", cards.List)
	secured.GET("/report-cards/:id", cards.Get)

	secured.GET("/students/:id/progress", middleware.StaffOrSelf(), analytics.StudentProgress)

	admin.POST("/grading-systems", scales.Create)
	staff.GET("/grading-systems", scales.List)
	admin.POST("/grading-systems/:id/default", scales.SetDefault)
	staff.GET("/grading-systems/resolve", scales.Resolve)

	staff.POST("/questions", questions.Create)
	staff.GET("/questions", questions.List)

	staff.POST("/online-exams", onlineExams.Create)
	staff.PUT("/online-exams/:id/questions", onlineExams.SetQuestions)
	staff.POST("/online-exams/:id/questions/auto-select", onlineExams.AutoSelect)
	staff.GET("/online-exams/:id/questions", onlineExams.Questions)

	secured.POST("/online-exams/:id/attempts", attempts.Start)
	secured.GET("/attempts/:id", attempts.Get)
	secured.PUT("/attempts/:id/responses", attempts.Autosave)
	secured.POST("/attempts/:id/submit", attempts.Submit)
	secured.POST("/attempts/:id/violations", attempts.Violation)
	staff.POST("/attempts/:id/grade", attempts.Grade)
	admin.POST("/attempts/:id/void", attempts.Void)

	staff.GET("/analytics/results", analytics.Results)
	admin.GET("/analytics/system", analytics.System)
}
