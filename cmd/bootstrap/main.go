// Command bootstrap creates the first admin account in an empty vault and
// prints the login once. It refuses to run against a vault that already has
// users.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"sandyq.org/internal/store/pg"
	"sandyq.org/internal/vault"
)

func main() {
	log.SetFlags(0)
	var (
		dsn      = flag.String("dsn", os.Getenv("SANDYQ_DATABASE_URL"), "PostgreSQL DSN")
		login    = flag.String("login", "admin", "login of the initial admin")
		password = flag.String("password", "", "password of the initial admin; generated when empty")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or SANDYQ_DATABASE_URL")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	pw := *password
	generated := false
	if pw == "" {
		pw, err = vault.GeneratePassword()
		if err != nil {
			log.Fatalf("generate password: %v", err)
		}
		generated = true
	}

	users := vault.NewUserService(store)
	admin, err := users.Bootstrap(ctx, *login, pw)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	fmt.Printf("created admin %q (key %d)\n", admin.Login, admin.Key)
	if generated {
		// Printed once; the vault stores only the hash.
		fmt.Printf("password: %s\n", pw)
	}
}
