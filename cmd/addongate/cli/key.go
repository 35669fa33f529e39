package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/addongate/addongate/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Create, list, rotate, and revoke the API keys used to authenticate against the gateway.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRotateCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		name        string
		description string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		Long:  "Generate a new API key. The raw key is shown once and cannot be retrieved again.",
		Example: `  addongate key create --name "home dashboard"
  addongate key create --name ci --description "CI pipeline"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(name, description)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Human-readable name for the key (required)")
	cmd.Flags().StringVar(&description, "description", "", "Optional description")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(name, description string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer store.Close()

	keys := service.NewKeyStore(store)
	plaintext, record, err := keys.Generate(context.Background(), name, description)
	if err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	fmt.Println("API Key created:")
	fmt.Println()
	fmt.Printf("  Key:  %s\n", plaintext)
	fmt.Printf("  ID:   %s\n", record.ID)
	fmt.Printf("  Name: %s\n", record.Name)
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(jsonOutput bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer store.Close()

	keys, err := service.NewKeyStore(store).List(context.Background())
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys configured. Use 'addongate key create' to create one.")
		return nil
	}

	fmt.Printf("%-18s %-20s %-8s %-8s %-20s\n", "ID", "NAME", "STATUS", "USES", "GRACE EXPIRES")
	fmt.Printf("%-18s %-20s %-8s %-8s %-20s\n", "--", "----", "------", "----", "-------------")
	for _, k := range keys {
		grace := "-"
		if k.GraceExpiresAt != nil {
			grace = k.GraceExpiresAt.Format("2006-01-02 15:04 MST")
		}
		fmt.Printf("%-18s %-20s %-8s %-8d %-20s\n", k.ID, k.Name, k.Status, k.UsageCount, grace)
	}

	return nil
}

// ---------- key rotate ----------

func newKeyRotateCmd() *cobra.Command {
	var graceHours int

	cmd := &cobra.Command{
		Use:   "rotate <id>",
		Short: "Rotate an API key",
		Long: "Issue a replacement key. The old key keeps working for the grace window " +
			"so clients can switch over, then stops. A grace of 0 revokes it immediately.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRotate(args[0], graceHours)
		},
	}

	cmd.Flags().IntVar(&graceHours, "grace", 24, "Hours the old key stays valid after rotation")

	return cmd
}

func runKeyRotate(id string, graceHours int) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer store.Close()

	plaintext, record, err := service.NewKeyStore(store).Rotate(context.Background(), id, graceHours)
	if err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			return fmt.Errorf("no active key with id %q", id)
		}
		return fmt.Errorf("rotate api key: %w", err)
	}

	fmt.Println("API Key rotated:")
	fmt.Println()
	fmt.Printf("  New key: %s\n", plaintext)
	fmt.Printf("  New ID:  %s\n", record.ID)
	if graceHours > 0 {
		fmt.Printf("  Old key %s remains valid for %d hours.\n", id, graceHours)
	} else {
		fmt.Printf("  Old key %s is revoked immediately.\n", id)
	}
	fmt.Println()
	fmt.Println("  Save the new key now - it cannot be retrieved again.")
	return nil
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key by ID",
		Long:  "Deactivate an API key immediately, with no grace window.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(id string) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer store.Close()

	if err := service.NewKeyStore(store).Revoke(context.Background(), id); err != nil {
		if errors.Is(err, service.ErrKeyNotFound) {
			return fmt.Errorf("no API key found with id %q", id)
		}
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %q\n", id)
	return nil
}
