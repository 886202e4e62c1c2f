// Command seed provisions user accounts from a JSON file. Accounts are
// created out of band; the service itself never registers or deletes users.
//
// Usage: seed -users users.json [-config config.json]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"mentora/internal/config"
	"mentora/internal/credstore"
	"mentora/internal/models"
	"mentora/internal/storage"

	"github.com/joho/godotenv"
)

type seedUser struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Firm     string `json:"firm"`
	Unit     string `json:"unit"`
	Location string `json:"location"`
}

func main() {
	usersPath := flag.String("users", "users.json", "path to the users JSON file")
	cfgPath := flag.String("config", "", "path to the service config (defaults to MENTORA_CONFIG)")
	flag.Parse()

	_ = godotenv.Load()

	path := *cfgPath
	if path == "" {
		path = os.Getenv("MENTORA_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("MENTORA_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	data, err := os.ReadFile(*usersPath)
	if err != nil {
		log.Fatalf("read users file: %v", err)
	}
	var users []seedUser
	if err := json.Unmarshal(data, &users); err != nil {
		log.Fatalf("parse users file: %v", err)
	}

	creds := credstore.New(db)
	ctx := context.Background()
	created := 0
	for _, u := range users {
		err := creds.CreateUser(ctx, models.User{
			Username: u.Username,
			Name:     u.Name,
			Email:    u.Email,
			Firm:     u.Firm,
			Unit:     u.Unit,
			Location: u.Location,
		}, u.Password)
		if err != nil {
			log.Printf("skip %s: %v", u.Username, err)
			continue
		}
		created++
	}
	log.Printf("seeded %d of %d users", created, len(users))
}
