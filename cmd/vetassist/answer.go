package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/vetassist/internal/config"
	"github.com/PabloGalante/vetassist/internal/domain"
)

var errNeedsSharedStore = errors.New("this command needs a shared storage backend (VETASSIST_STORAGE_BACKEND=firestore)")

// newAnswerCommand writes an answer by hand, standing in for the webhook.
func newAnswerCommand(cfg func() *config.Config) *cobra.Command {
	var requestID, text string

	cmd := &cobra.Command{
		Use:   "answer",
		Short: "Write an answer into a request record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if c.StorageBackend != "firestore" {
				return errNeedsSharedStore
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text must not be empty")
			}

			store, closeStore, err := openStore(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.SetAnswer(cmd.Context(), domain.RequestID(requestID), text); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "answered %s\n", requestID)
			return nil
		},
	}

	cmd.Flags().StringVar(&requestID, "request", "", "request id")
	cmd.Flags().StringVar(&text, "text", "", "answer text")
	_ = cmd.MarkFlagRequired("request")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

// newPendingCommand lists a pet's requests that still wait for an answer.
func newPendingCommand(cfg func() *config.Config) *cobra.Command {
	var pet string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List unanswered requests of a pet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			if c.StorageBackend != "firestore" {
				return errNeedsSharedStore
			}

			store, closeStore, err := openStore(cmd.Context(), c)
			if err != nil {
				return err
			}
			defer closeStore()

			records, err := store.Pending(cmd.Context(), domain.PetID(pet))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			for _, rec := range records {
				fmt.Fprintf(out, "%s\t%s\t%s\n", rec.ID, rec.CreatedAt.Format("2006-01-02 15:04"), strings.Join(rec.Symptoms, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&pet, "pet", "", "pet id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("pet")
	return cmd
}
