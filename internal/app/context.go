// Package app bootstraps a workspace: config, database, migrations and a
// ready engine, shared by the CLI and the HTTP server.
package app

import (
	"database/sql"
	"fmt"

	"github.com/TrXuk/open-medtracker-sub000/internal/config"
	"github.com/TrXuk/open-medtracker-sub000/internal/db"
	"github.com/TrXuk/open-medtracker-sub000/internal/engine"
	"github.com/TrXuk/open-medtracker-sub000/internal/migrate"
)

// App holds the wired dependencies for one workspace.
type App struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open loads medtrack.yml (defaults when absent), opens the workspace
// database and applies pending migrations.
func Open(workspace string) (*App, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &App{
		DB:     conn,
		Config: cfg,
		Engine: engine.New(conn, cfg),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
