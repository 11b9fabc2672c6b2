package pkg

import (
	"context"
	"log"
	"os"

	"CampusClinic/internal/alert"
	"CampusClinic/internal/auth"
	"CampusClinic/internal/config"
	"CampusClinic/internal/notification"
	"CampusClinic/pkg/middleware"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var EchoModules = fx.Module("clinic",
	fx.Provide(NewEchoServer),
	fx.Provide(config.NewLogger),
	fx.Provide(config.NewMongoDBConfig),
	fx.Provide(config.NewMongoDBClient),
	fx.Provide(config.NewResendConfig),
	fx.Provide(config.NewEmailService),
	fx.Provide(auth.NewUserRepository),
	fx.Provide(auth.NewUserService),
	fx.Provide(auth.NewAuthHandler),
	fx.Provide(alert.NewRepository),
	fx.Provide(alert.NewBus),
	fx.Provide(notification.NewRepository),
	fx.Provide(notification.NewStreams),
	fx.Provide(newNotificationService),
	fx.Provide(newSweeper),
	fx.Provide(notification.NewHandler),
	fx.Provide(newAlertService),
	fx.Provide(alert.NewHandler),
	fx.Invoke(EnsureIndexes),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(StartSweeper))

// newNotificationService binds the concrete repository, streams and email
// sender to the dispatcher's interfaces.
func newNotificationService(repo *notification.Repository, streams *notification.Streams, email *config.EmailService, logger *zap.Logger) *notification.Service {
	return notification.NewService(repo, streams, email, logger)
}

// newAlertService binds the Mongo store and the notification dispatcher to
// the alert service's interfaces.
func newAlertService(repo *alert.Repository, bus *alert.Bus, dispatcher *notification.Service, logger *zap.Logger) *alert.Service {
	return alert.NewService(repo, bus, dispatcher, logger)
}

// newSweeper binds the alert service as the sweeper's acknowledgment
// backfiller.
func newSweeper(svc *notification.Service, alerts *alert.Service, logger *zap.Logger) *notification.Sweeper {
	return notification.NewSweeper(svc, alerts, logger)
}

func NewEchoServer(lc fx.Lifecycle) *echo.Echo {
	e := echo.New()
	middleware.SetupMiddleware(e)
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Println("Server running on http://localhost:" + port)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := e.Start(":" + port); err != nil {
					log.Println("Server stopped:", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Println("shutting down the server ...")
			return e.Shutdown(ctx)
		},
	})
	return e
}

func EnsureIndexes(client *config.MongoDBClient) {
	config.UniqueIDNumberIndex(client.GetCollection("users"))
	config.RecipientIndex(client.GetCollection("notifications"))
}

func StartSweeper(sweeper *notification.Sweeper, lc fx.Lifecycle) {
	sweeper.Start(lc)
}

func RegisterRoutes(e *echo.Echo, authHandler *auth.AuthHandler, alertHandler *alert.Handler, notificationHandler *notification.Handler) {
	e.POST("/register", authHandler.Register)
	e.POST("/login", authHandler.Login)

	protected := e.Group("/api")
	protected.Use(middleware.JWTMiddleware)
	protected.Use(middleware.CasbinMiddleware)

	protected.GET("/profile", authHandler.Profile)

	protected.POST("/alerts", alertHandler.CreateAlert)
	protected.GET("/alerts", alertHandler.ListAlerts)
	protected.GET("/alerts/locations", alertHandler.ListLocations)
	protected.GET("/alerts/stream", alertHandler.StreamAlerts)
	protected.POST("/alerts/:id/claim", alertHandler.ClaimAlert)
	protected.POST("/alerts/:id/resolve", alertHandler.ResolveAlert)

	protected.GET("/notifications", notificationHandler.List)
	protected.GET("/notifications/stream", notificationHandler.Stream)
	protected.POST("/notifications/:id/read", notificationHandler.MarkRead)
}
