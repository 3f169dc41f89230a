// Package app wires the storage layer and services into one application
// object shared by the HTTP server and the command line tools.
package app

import (
	"github.com/storydesk/curation/internal/app/services/analytics"
	"github.com/storydesk/curation/internal/app/services/auth"
	"github.com/storydesk/curation/internal/app/services/publications"
	"github.com/storydesk/curation/internal/app/services/publishers"
	"github.com/storydesk/curation/internal/app/services/stories"
	"github.com/storydesk/curation/internal/app/storage"
	"github.com/storydesk/curation/internal/app/storage/memory"
	"github.com/storydesk/curation/pkg/logger"
)

// Config configures an Application. A nil Store selects the in-memory
// implementation.
type Config struct {
	Store storage.Store
	Auth  auth.Config
	Log   *logger.Logger
}

// Application holds the wired services.
type Application struct {
	Store storage.Store
	Log   *logger.Logger

	Publishers   *publishers.Service
	Publications *publications.Service
	Stories      *stories.Service
	Auth         *auth.Service
	Analytics    *analytics.Service
}

// New builds an Application from the config.
func New(cfg Config) (*Application, error) {
	store := cfg.Store
	if store == nil {
		store = memory.NewStore()
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewDefault("app")
	}

	authSvc, err := auth.NewService(store, cfg.Auth, log.WithField("service", "auth"))
	if err != nil {
		return nil, err
	}

	return &Application{
		Store:        store,
		Log:          log,
		Publishers:   publishers.NewService(store, log.WithField("service", "publishers")),
		Publications: publications.NewService(store, log.WithField("service", "publications")),
		Stories:      stories.NewService(store, log.WithField("service", "stories")),
		Auth:         authSvc,
		Analytics:    analytics.NewService(store, log.WithField("service", "analytics")),
	}, nil
}
