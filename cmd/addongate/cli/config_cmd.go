package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/addongate/addongate/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage gateway configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force      bool
		gatewayKey string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default addongate.yaml configuration file",
		Long: "Write a starter configuration. Prompts for the gateway key, the static " +
			"secret management operations require; pass --gateway-key to skip the prompt.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force, gatewayKey)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVar(&gatewayKey, "gateway-key", "", "Gateway key (prompted if omitted)")

	return cmd
}

func runConfigInit(force bool, gatewayKey string) error {
	path := "addongate.yaml"

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	// Prompt for the gateway key if not provided
	if gatewayKey == "" {
		fmt.Print("Gateway key: ")
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read gateway key: %w", err)
		}
		fmt.Println()
		gatewayKey = string(keyBytes)

		fmt.Print("Confirm gateway key: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()

		if gatewayKey != string(confirmBytes) {
			return fmt.Errorf("gateway keys do not match")
		}
	}

	if len(gatewayKey) < 16 {
		return fmt.Errorf("gateway key must be at least 16 characters")
	}

	cfg := config.DefaultYAMLConfig()
	cfg.Auth.GatewayKey = gatewayKey

	if err := config.WriteConfig(cfg, path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Edit the file to set your upstream and allow-list, then run 'addongate serve'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigShow() error {
	// Ensure config is loaded
	initConfig()

	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Printf("Config file: %s\n", configFile)
	} else {
		fmt.Println("Config file: (none found, using defaults)")
	}
	fmt.Println()

	// Print all settings, masking secrets
	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Println("No configuration settings loaded.")
		fmt.Println("Run 'addongate config init' to create a default configuration file.")
		return nil
	}

	if auth, ok := settings["auth"].(map[string]interface{}); ok {
		if v, ok := auth["gateway_key"].(string); ok && v != "" {
			auth["gateway_key"] = "********"
		}
	}
	if up, ok := settings["upstream"].(map[string]interface{}); ok {
		if v, ok := up["token"].(string); ok && v != "" {
			up["token"] = "********"
		}
	}

	for key, value := range settings {
		fmt.Printf("  %s: %v\n", key, value)
	}

	return nil
}
