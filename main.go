package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chepyr/go-minitask/internal/db"
	"github.com/chepyr/go-minitask/internal/handlers"
	"github.com/chepyr/go-minitask/internal/service"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	validateEnv()
	dbConn := initDB()
	defer dbConn.Close()

	mux := initHandlers(dbConn)
	server := initServer(mux)
	startServer(server)
}

func validateEnv() {
	requiredEnvVars := []string{
		"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
		"POSTGRES_HOST", "POSTGRES_PORT", "SERVER_PORT",
		"JWT_SECRET",
	}
	for _, env := range requiredEnvVars {
		if os.Getenv(env) == "" {
			log.Fatalf("Environment variable %s must be set", env)
		}
	}
}

func initDB() *sql.DB {
	user := os.Getenv("POSTGRES_USER")
	password := os.Getenv("POSTGRES_PASSWORD")
	dbname := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	host := os.Getenv("POSTGRES_HOST")

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)

	dbConn, err := db.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.InitSchema(dbConn); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	return dbConn
}

func policyFromEnv() service.Policy {
	return service.Policy{
		RequireDueDate:  boolEnv("REQUIRE_DUE_DATE"),
		RequireAssignee: boolEnv("REQUIRE_ASSIGNEE"),
	}
}

func boolEnv(name string) bool {
	value, err := strconv.ParseBool(os.Getenv(name))
	return err == nil && value
}

func initHandlers(dbConn *sql.DB) *http.ServeMux {
	taskService := service.NewTaskService(
		db.NewTaskRepository(dbConn),
		db.NewProjectRepository(dbConn),
		db.NewNoteRepository(dbConn),
		policyFromEnv(),
	)
	handler := &handlers.Handler{
		Users:       db.NewUserRepository(dbConn),
		Service:     taskService,
		RateLimiter: handlers.NewRateLimiter(5, time.Second),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", handler.Register)
	mux.HandleFunc("/auth/login", handler.Login)
	mux.HandleFunc("/projects", handler.AuthMiddleware(handler.HandleProjects))
	mux.HandleFunc("/tasks", handler.AuthMiddleware(handler.HandleTasks))
	mux.HandleFunc("/tasks/", handler.AuthMiddleware(handler.HandleTaskByID))
	mux.HandleFunc("/notes/", handler.AuthMiddleware(handler.HandleNoteByID))
	return mux
}

func initServer(mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:    ":" + os.Getenv("SERVER_PORT"),
		Handler: mux,
	}
}

func startServer(server *http.Server) {
	log.Printf("Starting server on %s", server.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
