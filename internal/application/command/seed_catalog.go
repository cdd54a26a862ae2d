package command

import (
	"context"

	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/pkg/logger"
)

// SeedCatalogResult reports what seeding changed.
type SeedCatalogResult struct {
	Defined  int `json:"defined"`
	Inserted int `json:"inserted"`
}

// SeedCatalogHandler writes the catalog to storage. Entries whose id already
// exists are skipped, so it is safe to run on every startup.
type SeedCatalogHandler struct {
	catalog *achievement.Catalog
	repo    achievement.CatalogRepository
	log     *logger.Logger
}

// NewSeedCatalogHandler creates a new SeedCatalogHandler.
func NewSeedCatalogHandler(deps Deps) *SeedCatalogHandler {
	deps = deps.withDefaults()
	return &SeedCatalogHandler{
		catalog: deps.Catalog,
		repo:    deps.Store.Catalog(),
		log:     deps.Logger.With(logger.Component("seed_catalog")),
	}
}

// Handle seeds the catalog.
func (h *SeedCatalogHandler) Handle(ctx context.Context) (*SeedCatalogResult, error) {
	inserted, err := h.repo.Seed(ctx, h.catalog.All())
	if err != nil {
		return nil, err
	}
	h.log.Info("achievement catalog seeded",
		logger.Int("defined", h.catalog.Len()),
		logger.Int("inserted", inserted),
	)
	return &SeedCatalogResult{Defined: h.catalog.Len(), Inserted: inserted}, nil
}
