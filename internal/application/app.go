// Package application wires command and query handlers into one bundle
// consumed by the HTTP interface and the CLI.
package application

import (
	"github.com/youlearn/youlearn-progress/internal/application/command"
	"github.com/youlearn/youlearn-progress/internal/application/query"
	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
)

// App bundles every progress operation.
type App struct {
	Catalog *achievement.Catalog

	RegisterUser   *command.RegisterUserHandler
	UpdateProfile  *command.UpdateProfileHandler
	RecordActivity *command.RecordActivityHandler
	RecordLogin    *command.RecordLoginHandler
	SeedCatalog    *command.SeedCatalogHandler
	GetStats       *query.GetStatsHandler
	GetProfile     *query.GetProfileHandler
}

// New builds the handlers over deps. statsCache may be nil.
func New(deps command.Deps, statsCache query.StatsCache) *App {
	if deps.Catalog == nil {
		deps.Catalog = achievement.DefaultCatalog()
	}
	return &App{
		Catalog:        deps.Catalog,
		RegisterUser:   command.NewRegisterUserHandler(deps),
		UpdateProfile:  command.NewUpdateProfileHandler(deps),
		RecordActivity: command.NewRecordActivityHandler(deps),
		RecordLogin:    command.NewRecordLoginHandler(deps),
		SeedCatalog:    command.NewSeedCatalogHandler(deps),
		GetStats:       query.NewGetStatsHandler(deps.Store, deps.Catalog, statsCache, deps.Clock, deps.Logger),
		GetProfile:     query.NewGetProfileHandler(deps.Store),
	}
}
