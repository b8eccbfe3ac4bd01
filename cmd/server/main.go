// Package main runs the sponsorships HTTP API with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-platform/sponsorships/config"
	"github.com/aura-platform/sponsorships/internal/app"
	"github.com/aura-platform/sponsorships/internal/auth"
	"github.com/aura-platform/sponsorships/internal/emaillogs"
	"github.com/aura-platform/sponsorships/internal/middleware"
	"github.com/aura-platform/sponsorships/internal/models"
	"github.com/aura-platform/sponsorships/internal/organizations"
	"github.com/aura-platform/sponsorships/internal/sponsorships"
	"github.com/aura-platform/sponsorships/pkg/response"
)

func main() {
	logger := app.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init", zap.Error(err))
	}
	defer a.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(auth.NewRepository(a.Pool), jwtService, logger)
	orgHandler := organizations.NewHandler(a.Organizations, logger)
	emailLogsHandler := emaillogs.NewHandler(a.EmailLogs, logger)
	sponsorshipHandler := sponsorships.NewHandler(a.Service, a.Sponsorships, a.Organizations, logger.Named("sponsorships"))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok", "mode": a.Service.Mode().String()})
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/users", middleware.RequireRole(models.RoleAdmin), authHandler.List)

		// Organizations
		api.GET("/organizations", orgHandler.ListMyOrganizations)
		api.POST("/organizations", orgHandler.CreateOrganization)
		api.POST("/organizations/join", orgHandler.JoinOrganization)
		api.GET("/organizations/:id/members", orgHandler.ListMembers)
		api.POST("/organizations/:id/members/:userId/confirm", orgHandler.ConfirmMember)
		api.POST("/organizations/:id/api-key", orgHandler.RotateAPIKey)

		// Email logs (admin)
		api.GET("/email-logs", middleware.RequireRole(models.RoleAdmin), emailLogsHandler.ListByRecipient)
		api.GET("/email-logs/:id", middleware.RequireRole(models.RoleAdmin), emailLogsHandler.Get)

		// Sponsorships (cloud only)
		sp := api.Group("/organization/sponsorship")
		sp.Use(middleware.CloudOnly(cfg.Sponsorship.SelfHosted))
		{
			sp.POST("/:sponsoringOrgId/families-for-enterprise", sponsorshipHandler.CreateSponsorship)
			sp.POST("/:sponsoringOrgId/families-for-enterprise/resend", sponsorshipHandler.ResendOffer)
			sp.POST("/validate-token", sponsorshipHandler.ValidateToken)
			sp.POST("/redeem", sponsorshipHandler.Redeem)
			sp.GET("/:sponsoringOrgId", sponsorshipHandler.GetSponsorship)
			sp.DELETE("/:sponsoringOrgId", sponsorshipHandler.RevokeSponsorship)
			sp.POST("/:sponsoringOrgId/delete", sponsorshipHandler.RevokeSponsorship)
			sp.DELETE("/sponsored/:sponsoredOrgId", sponsorshipHandler.RemoveSponsorship)
			sp.POST("/sponsored/:sponsoredOrgId/remove", sponsorshipHandler.RemoveSponsorship)
			sp.POST("/sponsored/:sponsoredOrgId/validate", middleware.RequireRole(models.RoleAdmin), sponsorshipHandler.ValidateSponsorship)
			sp.POST("/sponsored/:sponsoredOrgId/renewal", middleware.RequireRole(models.RoleAdmin), sponsorshipHandler.RecordRenewal)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.Bool("self_hosted", cfg.Sponsorship.SelfHosted))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
