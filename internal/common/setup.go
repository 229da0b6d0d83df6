package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"institutional-custody-go/internal/custody"
	"institutional-custody-go/internal/database"
	"institutional-custody-go/internal/models"
	"institutional-custody-go/internal/prime"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads a .env file when present; otherwise the process environment is used as is
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService    *database.Service
	Custody      *custody.Service
	PrimeService *prime.Service
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the custody core with Prime as its execution venue
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		dbService.Close()
		return nil, err
	}

	primeService, err := prime.NewService(creds, cfg.Prime.PortfolioId)
	if err != nil {
		dbService.Close()
		return nil, err
	}

	if cfg.Prime.PortfolioId == "" {
		zap.L().Info("Finding default portfolio")
		defaultPortfolio, err := primeService.FindDefaultPortfolio(ctx)
		if err != nil {
			dbService.Close()
			return nil, err
		}
		primeService.UseDefaultPortfolio(defaultPortfolio.Id)
		zap.L().Info("Using default portfolio",
			zap.String("name", defaultPortfolio.Name),
			zap.String("id", defaultPortfolio.Id))
	}

	return &Services{
		DbService:    dbService,
		Custody:      custody.NewService(dbService, cfg.Custody, custody.WithBroadcaster(primeService)),
		PrimeService: primeService,
	}, nil
}

// InitializeCustodyOnly initializes the custody core without an execution venue.
// Useful for operations that never broadcast, like wallet setup or audit export.
func InitializeCustodyOnly(ctx context.Context, cfg *models.Config) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return &Services{
		DbService: dbService,
		Custody:   custody.NewService(dbService, cfg.Custody),
	}, nil
}

func (cs *Services) Close() {
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	var missing []string
	for name, value := range map[string]string{
		"PRIME_ACCESS_KEY":  accessKey,
		"PRIME_PASSPHRASE":  passphrase,
		"PRIME_SIGNING_KEY": signingKey,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required Prime API credentials: %s", strings.Join(missing, ", "))
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
