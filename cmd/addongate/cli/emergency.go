package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/addongate/addongate/internal/config"
	"github.com/addongate/addongate/internal/server"
)

func newEmergencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emergency",
		Short: "Control the emergency kill switch",
		Long: "Persist the emergency disable flag in the key store. A running server picks " +
			"the change up on its next restart; use the management API to flip a live server.",
	}

	cmd.AddCommand(newEmergencyOnCmd())
	cmd.AddCommand(newEmergencyOffCmd())
	cmd.AddCommand(newEmergencyStatusCmd())

	return cmd
}

func newEmergencyOnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "on",
		Short: "Activate the kill switch (blocks all protected requests)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEmergency(true)
		},
	}
}

func newEmergencyOffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "off",
		Short: "Clear the kill switch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return setEmergency(false)
		},
	}
}

func newEmergencyStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted kill-switch state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return emergencyStatus()
		},
	}
}

func setEmergency(disabled bool) error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer store.Close()

	if err := store.SetSetting(context.Background(), server.SettingEmergencyDisable, strconv.FormatBool(disabled)); err != nil {
		return fmt.Errorf("persist emergency flag: %w", err)
	}

	if disabled {
		fmt.Println("Emergency disable ACTIVATED. All protected requests will be blocked.")
		fmt.Println("Restart a running server (or use POST /manage/emergency) for it to take effect.")
	} else {
		fmt.Println("Emergency disable cleared.")
	}
	return nil
}

func emergencyStatus() error {
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open key store: %w", err)
	}
	defer store.Close()

	v, err := store.GetSetting(context.Background(), server.SettingEmergencyDisable)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			fmt.Println("Emergency disable: not set (inactive)")
			return nil
		}
		return fmt.Errorf("read emergency flag: %w", err)
	}

	disabled, _ := strconv.ParseBool(v)
	if disabled {
		fmt.Println("Emergency disable: ACTIVE")
	} else {
		fmt.Println("Emergency disable: inactive")
	}
	return nil
}
