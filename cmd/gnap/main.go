package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"git.sr.ht/~jakintosh/gnap/internal/api"
	"git.sr.ht/~jakintosh/gnap/internal/database"
	"git.sr.ht/~jakintosh/gnap/internal/keys"
	"git.sr.ht/~jakintosh/gnap/internal/service"
	"git.sr.ht/~jakintosh/gnap/internal/session"
	"github.com/cenkalti/backoff/v5"
)

const tokenLifetime = 10 * time.Minute

func main() {
	dbPath := readEnvVar("DB_PATH")
	port := fmt.Sprintf(":%s", readEnvVar("PORT"))
	authServerDomain := readEnvVar("AUTH_SERVER_DOMAIN")
	identityServerDomain := readEnvVar("IDENTITY_SERVER_DOMAIN")
	idpSecret := readEnvVar("IDP_SECRET")
	keyRegistryDir := readEnvVar("KEY_REGISTRY_DIR")
	continueWait := readEnvInt("CONTINUE_WAIT_SECONDS")

	store := database.NewSQLiteStore(dbPath)
	initSchema(store)

	registry := keys.NewRegistry(keyRegistryDir)
	watcher, err := registry.Watch()
	if err != nil {
		log.Fatalf("failed to watch key registry: %v\n", err)
	}

	svc := service.New(
		store.GrantStore(),
		store.AccessTokenStore(),
		authServerDomain,
		tokenLifetime,
	)
	sessions := session.NewManager(store.SessionStore())

	a := api.New(
		svc,
		sessions,
		registry,
		idpSecret,
		identityServerDomain,
		continueWait,
	)

	server := &http.Server{
		Addr:    port,
		Handler: a.Router(),
	}

	go func() {
		log.Printf("auth server listening on %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v\n", err)
		}
	}()

	// teardown happens in reverse construction order
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v\n", err)
	}
	if err := watcher.Close(); err != nil {
		log.Printf("watcher close error: %v\n", err)
	}
	if err := store.Close(); err != nil {
		log.Printf("store close error: %v\n", err)
	}
	log.Println("shutdown complete")
}

// initSchema retries schema creation with jittered exponential backoff. The
// database may not be writable the instant the process starts (volume
// mounts); this is the only retry loop in the server, request handling never
// retries.
func initSchema(store *database.SQLiteStore) {
	_, err := backoff.Retry(
		context.Background(),
		func() (struct{}, error) {
			return struct{}{}, store.InitSchema()
		},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(8),
	)
	if err != nil {
		log.Fatalf("failed to init database schema: %v\n", err)
	}
}

func readEnvVar(name string) string {
	var present bool
	str, present := os.LookupEnv(name)
	if !present {
		log.Fatalf("missing required env var '%s'\n", name)
	}
	return str
}

func readEnvInt(name string) int {
	v := readEnvVar(name)
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("required env var '%s' could not be parsed as integer (\"%v\")\n", name, v)
	}
	return i
}
