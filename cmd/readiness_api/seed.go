package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashirimi1019/market-ready/internal/config"
	"github.com/ashirimi1019/market-ready/internal/db"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo pathway, checklist, and admin account",
	Long: `Seed creates the "AI-Augmented Full-Stack Developer" pathway with a published
starter checklist, plus an admin account from SEED_ADMIN_USERNAME /
SEED_ADMIN_EMAIL / SEED_ADMIN_PASSWORD.`,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	if err := seedAdmin(ctx, database); err != nil {
		return err
	}
	return seedPathway(ctx, database)
}

func seedAdmin(ctx context.Context, database *db.DB) error {
	username := os.Getenv("SEED_ADMIN_USERNAME")
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	email := os.Getenv("SEED_ADMIN_EMAIL")
	if username == "" || password == "" || email == "" {
		fmt.Println("SEED_ADMIN_* not set, skipping admin account")
		return nil
	}

	existing, err := database.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		fmt.Printf("admin %q already exists\n", username)
		return nil
	}

	passwords, err := config.NewPasswordConfig()
	if err != nil {
		return err
	}
	hash, err := passwords.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := database.CreateUser(ctx, username, email, hash, db.RoleAdmin); err != nil {
		return err
	}
	fmt.Printf("created admin %q\n", username)
	return nil
}

func seedPathway(ctx context.Context, database *db.DB) error {
	pathway, err := database.UpsertPathway(ctx, "AI-Augmented Full-Stack Developer",
		"Full-stack development with AI tooling fluency", true)
	if err != nil {
		return err
	}

	if published, perr := database.PublishedVersion(ctx, pathway.ID); perr != nil {
		return perr
	} else if published != nil {
		fmt.Printf("pathway %q already has published checklist v%d\n", pathway.Name, published.VersionNumber)
		return nil
	}

	items := []db.ChecklistItemInput{
		{Label: "typescript", Description: "Build and maintain typed front-end and back-end code", Tier: db.TierNonNegotiable, Weight: 1.0, Position: 1},
		{Label: "react", Description: "Ship production UI with a component framework", Tier: db.TierNonNegotiable, Weight: 1.0, Position: 2},
		{Label: "postgresql", Description: "Design schemas and write performant queries", Tier: db.TierNonNegotiable, Weight: 1.0, Position: 3},
		{Label: "ai pair programming", Description: "Work fluently with AI coding assistants", Tier: db.TierNonNegotiable, Weight: 1.0, Position: 4},
		{Label: "docker", Description: "Containerize and deploy services", Tier: db.TierStrongSignal, Weight: 0.8, Position: 5},
		{Label: "ci/cd", Description: "Maintain automated build and deploy pipelines", Tier: db.TierStrongSignal, Weight: 0.8, Position: 6},
		{Label: "prompt engineering", Description: "Design and evaluate LLM prompts", Tier: db.TierStrongSignal, Weight: 0.7, Position: 7},
		{Label: "kubernetes", Description: "Operate workloads on an orchestrator", Tier: db.TierNiceToHave, Weight: 0.5, Position: 8},
		{Label: "graphql", Description: "Design and consume GraphQL APIs", Tier: db.TierNiceToHave, Weight: 0.4, Position: 9},
	}

	draft, err := database.CreateDraft(ctx, pathway.ID, items, "initial starter checklist", "seed")
	if err != nil {
		return err
	}
	version, err := database.Publish(ctx, draft.ID, "seed")
	if err != nil {
		return err
	}
	fmt.Printf("published %q checklist v%d with %d items\n", pathway.Name, version.VersionNumber, len(items))
	return nil
}
