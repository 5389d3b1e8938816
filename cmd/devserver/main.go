package main

import (
	"net/http"
	"os"
	"strings"

	"codraft/internal/devserver"
	"codraft/pkg/logger"

	"github.com/joho/godotenv"
)

// Reference backend for local development and end-to-end testing. It
// implements the collaborator contracts the client depends on: the REST
// write surface and the websocket feed.
func main() {
	logger.Init()
	defer logger.Log.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	db := devserver.Connect()
	defer db.Close()

	store := devserver.NewStore(db)
	hub := devserver.NewHub(store)
	go hub.Run()
	go hub.Janitor()

	addr := strings.TrimSpace(os.Getenv("ADDR"))
	if addr == "" {
		addr = ":8080"
	}

	logger.Sugar.Infof("Devserver listening on %s", addr)
	if err := http.ListenAndServe(addr, devserver.Mux(store, hub)); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}
