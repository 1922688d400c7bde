package bootstrap

import (
	"context"
	"log"
	"os"
	"sort"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/sqlrag/backend/internal/application/services"
	"github.com/sqlrag/backend/internal/domain/models"
	"github.com/sqlrag/backend/internal/domain/ports"
	"github.com/sqlrag/backend/internal/infrastructure/database"
	"github.com/sqlrag/backend/internal/infrastructure/persistence"
)

// Config carries everything needed to assemble a query service from the
// environment plus the caller's schema selection.
type Config struct {
	ProfileID      int64
	CollectionID   int64
	Dialect        services.Dialect
	DefaultLimit   int
	SelectedTables []string
	// SelectedColumns maps table name to the columns exposed for it.
	SelectedColumns map[string][]string
	LLMClient       ports.LLMClient
}

// LoadConfig reads the environment, consulting .env when present.
func LoadConfig() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := Config{
		Dialect:      services.DialectPostgres,
		DefaultLimit: 50,
	}

	if v := os.Getenv("SQLRAG_DIALECT"); v == "sqlite" {
		cfg.Dialect = services.DialectSQLite
	}
	if v := os.Getenv("SQLRAG_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultLimit = n
		}
	}
	if v := os.Getenv("SQLRAG_PROFILE_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ProfileID = n
		}
	}
	if v := os.Getenv("SQLRAG_COLLECTION_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.CollectionID = n
		}
	}
	return cfg
}

// BuildQueryService opens the policy store, loads the allowlist profile and
// its templates, and wires the full pipeline.
func BuildQueryService(ctx context.Context, cfg Config) (*services.QueryService, *database.Connection, error) {
	conn, err := database.GetInstance()
	if err != nil {
		return nil, nil, err
	}

	if err := persistence.EnsureSchema(ctx, conn.DB(), conn.Driver()); err != nil {
		conn.Close()
		return nil, nil, err
	}

	profiles := persistence.NewAllowlistProfileRepository(conn.DB())

	var profile *models.AllowlistProfile
	if cfg.ProfileID > 0 {
		profile, err = profiles.GetByID(ctx, cfg.ProfileID)
	} else {
		profile, err = profiles.EnsureDefault(ctx)
	}
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	rules, err := profile.Rules()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	templateRepo := persistence.NewQueryTemplateRepository(conn.DB())
	templates, err := templateRepo.ListEnabledByProfile(ctx, profile.ID)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	selectedTables := cfg.SelectedTables
	if len(selectedTables) == 0 {
		for table := range rules.AllowedTables {
			selectedTables = append(selectedTables, table)
		}
		sort.Strings(selectedTables)
	}
	selectedColumns := cfg.SelectedColumns
	if selectedColumns == nil {
		selectedColumns = rules.AllowedTables
	}

	svcCfg := services.QueryServiceConfig{
		Rules:           rules,
		SelectedTables:  selectedTables,
		SelectedColumns: selectedColumns,
		Dialect:         cfg.Dialect,
		DefaultLimit:    cfg.DefaultLimit,
		CollectionID:    cfg.CollectionID,
		Templates:       templates,
		LLMClient:       cfg.LLMClient,
		LogSink:         persistence.NewQueryLogRepository(conn.DB()),
	}

	svc := services.NewQueryService(svcCfg)
	log.Printf("Query service ready: profile=%s tables=%d templates=%d", profile.Name, len(selectedTables), len(templates))
	return svc, conn, nil
}
