// seed crea los datos mínimos de un entorno de desarrollo: una cuenta
// admin con password y una compañía demo con su Owner.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/veloway-app/authsvc/internal/config"
	"github.com/veloway-app/authsvc/internal/security/password"
	"github.com/veloway-app/authsvc/internal/store/core"
	"github.com/veloway-app/authsvc/internal/store/pg"
)

func main() {
	var (
		configPath = flag.String("config", "configs/config.yaml", "Path to YAML config")
		adminEmail = flag.String("admin-email", "admin@veloway.local", "Admin account email")
		adminPass  = flag.String("admin-pass", "admin1234", "Admin account password (dev only)")
		company    = flag.String("company", "Veloway Demo", "Demo company name")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if cfg.Storage.DSN == "" {
		log.Fatal("storage.dsn vacío: el seed requiere Postgres")
	}

	ctx := context.Background()
	repo, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{})
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer repo.Close()

	hash, err := password.Hash(password.Default, *adminPass)
	if err != nil {
		log.Fatalf("hash: %v", err)
	}

	account := &core.Account{
		UserName:        "admin",
		Email:           *adminEmail,
		PasswordHash:    &hash,
		IsEmailVerified: true,
		IsActive:        true,
	}
	if err := repo.CreateAccount(ctx, account, "ADMIN"); err != nil {
		if err == core.ErrConflict {
			log.Println("admin account ya existe, nada que hacer")
			return
		}
		log.Fatalf("create admin: %v", err)
	}
	log.Printf("admin account created: id=%d email=%s", account.ID, account.Email)

	companyID, err := repo.SeedCompany(ctx, *company, account.ID, core.CompanyRoleOwner)
	if err != nil {
		log.Fatalf("seed company: %v", err)
	}
	log.Printf("company created: id=%d owner=%d", companyID, account.ID)
}
