package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"google.golang.org/api/option"

	"homeconnect/internal/adapter/api"
	"homeconnect/internal/adapter/api/handler"
	apimiddleware "homeconnect/internal/adapter/api/middleware"
	"homeconnect/internal/adapter/api/router"
	"homeconnect/internal/adapter/repository"
	domainrepo "homeconnect/internal/domain/repository"
	"homeconnect/internal/infrastructure/firebase"
	"homeconnect/internal/infrastructure/mailer"
	"homeconnect/internal/infrastructure/websocket"
	"homeconnect/internal/usecase"
	"homeconnect/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opt option.ClientOption
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		opt = option.WithCredentialsJSON([]byte(serviceAccountJSON))
	} else {
		serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")
		if serviceAccountPath == "" {
			serviceAccountPath = "./service-account.json"
		}
		opt = option.WithCredentialsFile(serviceAccountPath)
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	listingRepo := repository.NewFirestoreListingRepository(firestoreClient)

	var messageRepo domainrepo.MessageRepository
	switch cfg.StoreDriver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("Failed to open Postgres connection: %v", err)
		}
		defer db.Close()
		if err := repository.InitMessageSchema(db); err != nil {
			log.Fatalf("Failed to initialize Postgres schema: %v", err)
		}
		messageRepo = repository.NewPostgresMessageRepository(db)
	case "memory":
		messageRepo = repository.NewMemoryMessageRepository()
	default:
		messageRepo = repository.NewFirestoreMessageRepository(firestoreClient)
	}

	wsManager := websocket.NewManager()
	wsManager.Start(ctx)

	var dispatcher usecase.Dispatcher
	if cfg.EmailHost != "" {
		dispatcher = mailer.NewMailer(cfg)
	} else {
		dispatcher = mailer.Noop{}
	}

	chatUseCase := usecase.NewChatUseCase(messageRepo, userRepo, listingRepo, wsManager, dispatcher)
	wsRouter := websocket.NewRouter(wsManager, chatUseCase)

	verifier := firebase.NewAuthClient(authClient)
	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)

	chatHandler := handler.NewChatHandler(chatUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, wsRouter, verifier)

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Validator = api.NewValidator()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	router.SetupChatRouter(e, chatHandler, authMiddleware)
	router.SetupWebSocketRouter(e, wsHandler)

	log.Printf("Starting server on port %s (store driver: %s)...", cfg.ServerPort, cfg.StoreDriver)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
