package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"ALMS-backend/internal/library_mgmt/books"
	"ALMS-backend/internal/library_mgmt/labels"
	"ALMS-backend/internal/library_mgmt/payments"
	"ALMS-backend/internal/library_mgmt/reports"
	"ALMS-backend/internal/library_mgmt/requests"
	"ALMS-backend/internal/library_mgmt/transactions"
	"ALMS-backend/internal/library_mgmt/users"
	"ALMS-backend/internal/platform/auth"
	"ALMS-backend/internal/platform/db"
	"ALMS-backend/internal/platform/notify"
)

func main() {
	cfg, err := db.LoadConfig("config/config.yaml")
	if err != nil {
		panic(err)
	}

	mode := cfg.Mode
	log.Printf("[INFO] mode:%s\n", mode)

	if mode != "dev" && mode != "release" {
		log.Fatal("config mode must be dev or release")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("auth.jwt_secret must be set")
	}

	conn, err := db.Connect(cfg.DB)
	if err != nil {
		panic(err)
	}
	defer conn.Close()

	log.Printf("[INFO] connected to DB: %s", cfg.DB.DBName)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	secret := []byte(cfg.Auth.JWTSecret)
	tokenTTL := time.Duration(cfg.Auth.TokenTTL) * time.Hour

	notifySvc := notify.NewService(conn)
	userSvc := users.NewService(conn, notifySvc, secret, tokenTTL)
	bookSvc := books.NewService(conn)
	txnSvc := transactions.NewService(conn, notifySvc)
	reqSvc := requests.NewService(conn, txnSvc, notifySvc)
	paySvc := payments.NewService(conn, notifySvc)
	reportSvc := reports.NewService(conn)
	labelSvc := labels.NewService(conn)

	// /api/v1
	api := r.Group("/api/v1")
	users.RegisterPublicRoutes(api, userSvc)

	authed := api.Group("", auth.RequireAuth(secret))
	users.RegisterRoutes(authed, userSvc)
	books.RegisterRoutes(authed, bookSvc)
	transactions.RegisterRoutes(authed, txnSvc)
	requests.RegisterRoutes(authed, reqSvc)
	payments.RegisterRoutes(authed, paySvc)
	reports.RegisterRoutes(authed, reportSvc)
	labels.RegisterRoutes(authed, labelSvc)
	notify.RegisterRoutes(authed, notifySvc)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Printf("[INFO] listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	log.Println("[INFO] shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal(err)
	}
}
