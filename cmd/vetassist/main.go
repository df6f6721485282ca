package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	firestorestore "github.com/PabloGalante/vetassist/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/vetassist/internal/adapters/storage/memory"
	"github.com/PabloGalante/vetassist/internal/config"
	"github.com/PabloGalante/vetassist/internal/domain"
	"github.com/PabloGalante/vetassist/internal/observability"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:   "vetassist",
		Short: "Vet Assistant conversation backend",
		Long: `Runs the pet-health assistant backend: owners submit symptoms, the
automation answers them asynchronously, and every open conversation picks
the answer up over push subscriptions or polling.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			observability.SetLevel(cfg.LogLevel)
			return nil
		},
	}

	cfgFn := func() *config.Config { return cfg }
	cmd.AddCommand(newServeCommand(cfgFn))
	cmd.AddCommand(newAnswerCommand(cfgFn))
	cmd.AddCommand(newPendingCommand(cfgFn))

	return cmd
}

// backingStore is everything the commands use from a storage backend.
type backingStore interface {
	domain.RecordStore
	domain.AnswerWriter
	domain.PendingLister
}

// openStore picks the storage backend. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config) (backingStore, func(), error) {
	log := observability.Logger()

	switch cfg.StorageBackend {
	case "firestore":
		log.Info("using firestore storage", "project", cfg.GCPProjectID)
		fsStore, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing firestore store: %w", err)
		}
		return fsStore, func() { _ = fsStore.Close() }, nil

	default:
		log.Info("using in-memory storage")
		return memstore.NewRequestStore(), func() {}, nil
	}
}
