package main

import (
	"fmt"
	"log"

	"zero-entropy-be/internal/bootstrap"
	"zero-entropy-be/internal/config"
	"zero-entropy-be/internal/model"
	"zero-entropy-be/internal/pkg/logger"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}
	dims := cfg.Ai.EmbeddingDimensions
	if dims <= 0 {
		dims = 768
	}
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer sysLogger.Sync()

	// 2. Connect to Database
	db, err := bootstrap.OpenDatabase(cfg.Database, sysLogger)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	// 3. Pre-Migration: Extensions
	log.Println("Step 1: Setting up extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
		log.Fatalf("Error: pgvector extension is required: %v", err)
	}

	// 4. AutoMigrate
	log.Println("Step 2: Running AutoMigrate...")
	models := []interface{}{
		&model.KnowledgeChunk{},
		&model.SessionSnapshot{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	// 5. Post-Migration: embedding width and indexes
	log.Println("Step 3: Creating indexes...")
	postMigrationSQL := []string{
		fmt.Sprintf(`ALTER TABLE knowledge_chunks ALTER COLUMN embedding TYPE vector(%d);`, dims),
		`CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_embedding ON knowledge_chunks USING hnsw (embedding vector_cosine_ops);`,
		`CREATE INDEX IF NOT EXISTS idx_session_snapshots_updated_at ON session_snapshots (updated_at);`,
	}
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Printf("✅ Success: Database migration completed (embedding dimensions: %d).", dims)
}
