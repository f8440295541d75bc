// Seed script that reconciles a small demo import into the configured stores.
// Run with: go run ./scripts/seed.go
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"github.com/Harshitk-cp/selfgraph/internal/config"
	"github.com/Harshitk-cp/selfgraph/internal/domain"
	"github.com/Harshitk-cp/selfgraph/internal/engine"
	"github.com/Harshitk-cp/selfgraph/internal/service"
	"github.com/google/uuid"
)

// seedNamespace keeps fragment ids stable so reruns resolve to the same entities.
var seedNamespace = uuid.MustParse("6f1c2a7e-3b4d-4c8e-9a10-5d2e7f8b9c01")

func main() {
	_ = config.Load()

	logger, err := engine.NewLogger("warn")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	eng, err := engine.Open(ctx, engine.OptionsFromConfig(), logger)
	if err != nil {
		log.Fatalf("Failed to open engine: %v", err)
	}
	defer eng.Close()

	fmt.Println("Connected to stores")

	base := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	req := service.ImportRequest{
		ImportID: "demo-seed",
		Fragments: []domain.CandidateFragment{
			fragment("conv-001", 0, base, "Go", domain.CategorySkill, domain.AttributionUserExplicit, 0.95),
			fragment("conv-001", 1, base, "PostgreSQL", domain.CategoryTool, domain.AttributionUserExplicit, 0.9),
			fragment("conv-001", 2, base, "backend systems", domain.CategoryDomain, domain.AttributionUserImplied, 0.8),
			fragment("conv-002", 0, base.AddDate(0, 0, 8), "golang", domain.CategorySkill, domain.AttributionUserExplicit, 0.9),
			fragment("conv-002", 1, base.AddDate(0, 0, 8), "Postgres", domain.CategoryTool, domain.AttributionUserImplied, 0.8),
			fragment("conv-002", 2, base.AddDate(0, 0, 8), "ship the billing rewrite", domain.CategoryGoal, domain.AttributionUserExplicit, 0.85),
			fragment("conv-003", 0, base.AddDate(0, 0, 15), "prefers terse answers", domain.CategoryPreference, domain.AttributionUserExplicit, 0.9),
			fragment("conv-003", 1, base.AddDate(0, 0, 15), "Kubernetes", domain.CategoryTool, domain.AttributionAssistantSuggested, 0.6),
		},
		Chunks: []service.Chunk{
			{
				ID:             "conv-002-chunk-0",
				ConversationID: "conv-002",
				Text:           "Reading https://www.postgresql.org/docs/current/ before moving billing off Postgres.",
				Timestamp:      base.AddDate(0, 0, 8),
			},
		},
	}

	res, err := eng.Resolver.Reconcile(ctx, req)
	if err != nil {
		log.Fatalf("Failed to reconcile demo import: %v", err)
	}

	fmt.Printf("Batches committed: %d (skipped %d)\n", res.BatchesCommitted, res.BatchesSkipped)
	fmt.Printf("Entities created: %d, updated: %d, merges: %d\n", res.EntitiesCreated, res.EntitiesUpdated, res.Merges)
	fmt.Printf("Citations created: %d\n", res.CitationsCreated)

	items, err := eng.Profile.Items(ctx)
	if err != nil {
		log.Fatalf("Failed to list profile: %v", err)
	}
	fmt.Printf("\nVisible items (%d):\n", len(items))
	for _, it := range items {
		fmt.Printf("  [%s] %s (%.2f)\n", it.Category, truncate(it.DisplayText, 50), it.BeliefScore)
	}

	fmt.Println("\n=== Seed Complete ===")
	if config.APIKey() == "" {
		fmt.Println("\nAPI_KEY is unset, so the API is open. To protect it, add to .env.secret:")
		fmt.Printf("API_KEY=%s\n", generateAPIKey())
	}
	fmt.Println("\nTo view the profile, use:")
	fmt.Println("curl -H 'Authorization: Bearer $API_KEY' http://localhost:8080/v1/facets")
}

func fragment(conv string, idx int, at time.Time, text string, cat domain.Category, attr domain.Attribution, conf float64) domain.CandidateFragment {
	return domain.CandidateFragment{
		ID:                    uuid.NewSHA1(seedNamespace, fmt.Appendf(nil, "%s/%d", conv, idx)),
		Text:                  text,
		Category:              cat,
		SourceConversationID:  conv,
		SourceChunkID:         conv + "-chunk-0",
		MessageIndex:          idx,
		ConversationTimestamp: at,
		Attribution:           attr,
		RawConfidence:         conf,
	}
}

func generateAPIKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("Failed to generate API key: %v", err)
	}
	return "sg_" + base64.URLEncoding.EncodeToString(b)[:40]
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
