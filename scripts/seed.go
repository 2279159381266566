// Operator CLI: seeds users into Firestore and mints development tokens.
//
//	go run ./scripts users
//	go run ./scripts token --user user-admin

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"carbonledger/auth"
	"carbonledger/config"
	"carbonledger/db"
	"carbonledger/logging"
	"carbonledger/models"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "seed",
	Short:         "Carbon ledger operator tools",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load environment variables
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found, using system environment variables")
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging.Level, "console")
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var seedCmd = &cobra.Command{
	Use:   "users",
	Short: "Create the default user accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openFirestore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		log.Println("🌱 Starting database seeding...")
		if err := seedUsers(ctx, store); err != nil {
			return err
		}
		log.Println("✅ Database seeding completed successfully!")
		return nil
	},
}

var tokenUser string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a signed access token for an existing user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUser == "" {
			return errors.New("--user is required")
		}

		ctx := cmd.Context()
		store, err := openFirestore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		user, err := store.GetUser(ctx, tokenUser)
		if err != nil {
			return err
		}

		token, err := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration).GenerateToken(user)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id to sign the token for")
	rootCmd.AddCommand(seedCmd, tokenCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Printf("❌ %v", err)
		os.Exit(1)
	}
}

func openFirestore(ctx context.Context) (*db.FirestoreDB, error) {
	if cfg.Store.Backend != config.BackendFirestore {
		return nil, fmt.Errorf("store backend %q cannot be seeded, use firestore", cfg.Store.Backend)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return db.NewFirestoreDB(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsPath, logger)
}

func seedUsers(ctx context.Context, store db.UserStore) error {
	now := time.Now().UTC()
	users := []models.User{
		{UserID: "user-admin", Name: "Platform Admin", Email: "admin@carbonledger.local", Role: models.RoleAdmin},
		{UserID: "user-verifier", Name: "Field Verifier", Email: "verifier@carbonledger.local", Role: models.RoleVerifier},
		{UserID: "user-ngo", Name: "Mangrove Trust", Email: "ngo@carbonledger.local", Role: models.RoleNGO},
		{UserID: "user-surveyor", Name: "Field Surveyor", Email: "surveyor@carbonledger.local", Role: models.RoleUser},
	}

	for _, user := range users {
		user.IsActive = true
		user.CreatedAt = now
		user.UpdatedAt = now
		if err := store.CreateUser(ctx, &user); err != nil {
			return fmt.Errorf("failed to create user %s: %w", user.UserID, err)
		}
		log.Printf("  ✓ Created user: %s (role: %s)", user.UserID, user.Role)
	}

	return nil
}
