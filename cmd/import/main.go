// Command import loads publishers and publications from a JSON file into an
// existing account.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/storydesk/curation/internal/app"
	"github.com/storydesk/curation/internal/app/domain/publication"
	"github.com/storydesk/curation/internal/app/domain/publisher"
	"github.com/storydesk/curation/internal/app/services/auth"
	"github.com/storydesk/curation/internal/app/storage"
	"github.com/storydesk/curation/internal/app/storage/postgres"
	"github.com/storydesk/curation/internal/config"
	"github.com/storydesk/curation/pkg/logger"
)

type importFile struct {
	Publishers []struct {
		Name         string `json:"name"`
		Link         string `json:"link"`
		Hidden       bool   `json:"hidden"`
		Publications []struct {
			Title       string     `json:"title"`
			Link        string     `json:"link"`
			Hidden      bool       `json:"hidden"`
			PublishedAt *time.Time `json:"published_at"`
		} `json:"publications"`
	} `json:"publishers"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	filePath := flag.String("file", "", "JSON file to import")
	email := flag.String("user", "", "email of the account receiving the data")
	flag.Parse()

	if *filePath == "" || *email == "" {
		flag.Usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.DSN == "" {
		fmt.Fprintln(os.Stderr, "import requires DATABASE_DSN; an in-memory store would be discarded on exit")
		os.Exit(1)
	}

	log := logger.New(cfg.Logging).WithField("component", "import")

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	store := postgres.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		log.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	application, err := app.New(app.Config{
		Store: store,
		Auth:  auth.Config{Secret: cfg.Auth.Secret},
		Log:   log,
	})
	if err != nil {
		log.WithError(err).Error("Failed to build application")
		os.Exit(1)
	}

	owner, err := store.GetUserByEmail(ctx, *email)
	if err != nil {
		log.WithError(err).WithField("email", *email).Error("Account not found")
		os.Exit(1)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.WithError(err).Error("Failed to read import file")
		os.Exit(1)
	}
	var doc importFile
	if err := json.Unmarshal(data, &doc); err != nil {
		log.WithError(err).Error("Failed to parse import file")
		os.Exit(1)
	}

	var created, skipped, failed int
	for _, entry := range doc.Publishers {
		var pub publisher.Publisher
		existing, err := store.GetPublisherByName(ctx, owner.ID, entry.Name)
		switch {
		case err == nil:
			pub = existing
		case errors.Is(err, storage.ErrNotFound):
			pub, err = application.Publishers.Create(ctx, publisher.Publisher{
				OwnerID: owner.ID,
				Name:    entry.Name,
				Link:    entry.Link,
				Hidden:  entry.Hidden,
			})
			if err != nil {
				log.WithError(err).WithField("publisher", entry.Name).Warn("Skipping publisher")
				failed += len(entry.Publications)
				continue
			}
		default:
			log.WithError(err).Error("Publisher lookup failed")
			os.Exit(1)
		}

		for _, item := range entry.Publications {
			p := publication.Publication{
				OwnerID:     owner.ID,
				PublisherID: pub.ID,
				Title:       item.Title,
				Link:        item.Link,
				Hidden:      item.Hidden,
				PublishedAt: item.PublishedAt,
			}
			if _, err := application.Publications.Create(ctx, p); err != nil {
				if _, dupErr := store.GetPublicationByLink(ctx, owner.ID, item.Link); dupErr == nil {
					skipped++
					continue
				}
				log.WithError(err).WithField("link", item.Link).Warn("Skipping publication")
				failed++
				continue
			}
			created++
		}
	}

	log.WithFields(map[string]interface{}{
		"created": created,
		"skipped": skipped,
		"failed":  failed,
	}).Info("Import finished")
}
