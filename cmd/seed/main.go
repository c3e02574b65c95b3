package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"concord/internal/config"
	"concord/internal/repository/postgres"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed providers")
	testUserID := flag.String("test-user", "", "Seed a test profile with this user id")
	testBalance := flag.Int("test-balance", 50, "Token balance for the test profile")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("🚫 BLOCKED: Cannot run --drop-tables in production environment")
	}

	log.Printf("🌱 Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)

	// Create database connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Create table names
	tables := postgres.NewTableNames(cfg.TablePrefix)

	// Drop tables if requested
	if *dropTables {
		log.Println("🗑️  Dropping all tables...")
		if err := dropAllTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("✅ Tables dropped")
	}

	// Run schema to ensure tables exist
	log.Println("📋 Ensuring database schema is up to date...")
	if err := runSchema(ctx, pool, tables, cfg.TablePrefix); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("✅ Schema ready")

	if *schemaOnly {
		log.Println("✅ Schema setup complete (schema-only mode)")
		return
	}

	// Seed the provider registry
	log.Println("🤖 Seeding AI providers...")
	if err := seedProviders(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to seed providers: %v", err)
	}
	log.Println("✅ Providers seeded")

	// Optionally seed a test profile
	if *testUserID != "" {
		if err := ensureTestProfile(ctx, pool, tables, *testUserID, *testBalance); err != nil {
			log.Fatalf("Failed to seed test profile: %v", err)
		}
		log.Printf("✅ Test profile ready (user: %s, balance: %d)", *testUserID, *testBalance)
	}

	log.Println("🎉 Seeding complete!")
}

// runSchema creates tables if they don't exist
func runSchema(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames, tablePrefix string) error {
	// Enable UUID extension
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\""); err != nil {
		return err
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + tables.Profiles + ` (
			id UUID PRIMARY KEY,
			email TEXT,
			token_balance INTEGER NOT NULL DEFAULT 0 CHECK (token_balance >= 0),
			free_trial_used BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Debates + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL,
			topic TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			mode TEXT NOT NULL DEFAULT 'text',
			total_cost INTEGER NOT NULL DEFAULT 0,
			summary TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.DebateTurns + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			debate_id UUID NOT NULL REFERENCES ` + tables.Debates + `(id) ON DELETE CASCADE,
			user_id UUID NOT NULL,
			role TEXT NOT NULL,
			agent_name TEXT NOT NULL DEFAULT '',
			provider_id UUID,
			content TEXT NOT NULL,
			phase TEXT NOT NULL DEFAULT 'independent',
			meta JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.Providers + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL DEFAULT 'text',
			model_id TEXT NOT NULL,
			base_url TEXT NOT NULL DEFAULT '',
			env_key TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 100,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.TokenLedger + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL,
			amount INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.PaymentEvents + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			provider TEXT NOT NULL,
			event_id TEXT NOT NULL,
			user_id UUID NOT NULL,
			amount_cents INTEGER,
			tokens_added INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'received',
			created_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE (provider, event_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.PendingRequests + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL,
			kind TEXT NOT NULL,
			payload JSONB NOT NULL DEFAULT '{}',
			tokens_required INTEGER NOT NULL DEFAULT 0,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.VideoJobs + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id UUID NOT NULL,
			debate_id UUID NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			tokens_reserved INTEGER NOT NULL DEFAULT 0,
			refunded BOOLEAN NOT NULL DEFAULT FALSE,
			input_refs TEXT[] NOT NULL DEFAULT '{}',
			output_path TEXT NOT NULL DEFAULT '',
			error TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tables.JobRuns + ` (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			video_job_id UUID NOT NULL REFERENCES ` + tables.VideoJobs + `(id) ON DELETE CASCADE,
			run_type TEXT NOT NULL DEFAULT 'compose',
			status TEXT NOT NULL DEFAULT 'starting',
			worker_ref TEXT,
			error TEXT,
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ DEFAULT NOW(),
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	// Create indexes
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `debates_user ON ` + tables.Debates + `(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `debate_turns_debate ON ` + tables.DebateTurns + `(debate_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `token_ledger_user ON ` + tables.TokenLedger + `(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `pending_requests_user ON ` + tables.PendingRequests + `(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `video_jobs_debate ON ` + tables.VideoJobs + `(debate_id) WHERE status IN ('pending', 'composing')`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `job_runs_status ON ` + tables.JobRuns + `(status, created_at)`,
	}
	for _, indexSQL := range indexes {
		if _, err := pool.Exec(ctx, indexSQL); err != nil {
			return err
		}
	}

	return nil
}

// dropAllTables drops all tables in reverse order (to respect foreign keys)
func dropAllTables(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	tableNames := []string{
		tables.JobRuns,
		tables.VideoJobs,
		tables.PendingRequests,
		tables.PaymentEvents,
		tables.TokenLedger,
		tables.DebateTurns,
		tables.Debates,
		tables.Providers,
		tables.Profiles,
	}

	for _, table := range tableNames {
		dropSQL := "DROP TABLE IF EXISTS " + table + " CASCADE"
		if _, err := pool.Exec(ctx, dropSQL); err != nil {
			return err
		}
		log.Printf("  ✓ Dropped %s", table)
	}

	return nil
}

type seedProvider struct {
	name     string
	kind     string
	modelID  string
	baseURL  string
	envKey   string
	priority int
}

// seedProviders upserts the default registry rows. Credentials stay in the
// environment; rows only carry the env var name.
func seedProviders(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	providers := []seedProvider{
		{"openai", "text", "gpt-4o", "", "OPENAI_API_KEY", 10},
		{"anthropic", "text", "claude-sonnet-4-5", "", "ANTHROPIC_API_KEY", 20},
		{"deepseek", "text", "deepseek-chat", "https://api.deepseek.com/v1", "DEEPSEEK_API_KEY", 30},
		{"mistral", "text", "mistral-large-latest", "https://api.mistral.ai/v1", "MISTRAL_API_KEY", 40},
		{"openai-image", "image", "gpt-image-1", "", "OPENAI_API_KEY", 10},
		{"openrouter-video", "video", "veo-3", "https://openrouter.ai/api/v1", "OPENROUTER_API_KEY", 10},
		{"openai-audio", "audio", "gpt-4o-mini-tts", "", "OPENAI_API_KEY", 10},
	}

	query := `
		INSERT INTO ` + tables.Providers + ` (name, kind, model_id, base_url, env_key, priority, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		ON CONFLICT (name) DO UPDATE SET
			kind = EXCLUDED.kind,
			model_id = EXCLUDED.model_id,
			base_url = EXCLUDED.base_url,
			env_key = EXCLUDED.env_key,
			priority = EXCLUDED.priority
	`
	for _, p := range providers {
		if _, err := pool.Exec(ctx, query, p.name, p.kind, p.modelID, p.baseURL, p.envKey, p.priority, time.Now()); err != nil {
			return err
		}
		log.Printf("  ✓ Provider %s (%s, priority %d)", p.name, p.kind, p.priority)
	}

	return nil
}

// ensureTestProfile creates a dev profile if it doesn't exist
func ensureTestProfile(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames, userID string, balance int) error {
	query := `
		INSERT INTO ` + tables.Profiles + ` (id, email, token_balance, free_trial_used, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := pool.Exec(ctx, query, userID, "dev@example.com", balance, time.Now())
	return err
}
