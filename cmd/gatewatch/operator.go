package gatewatch

import (
	"context"
	"fmt"

	"github.com/retailscope/gatewatch/pkg/audit"
	"github.com/retailscope/gatewatch/pkg/config"
	"github.com/retailscope/gatewatch/pkg/store"
	"github.com/spf13/cobra"
)

var operatorCmd = &cobra.Command{
	Use:   "operator",
	Short: "Manage operator access tokens",
}

var operatorAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create an operator and print their token once",
	Args:  cobra.ExactArgs(1),
	RunE:  runOperatorAdd,
}

var operatorRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Revoke an operator's token",
	Args:  cobra.ExactArgs(1),
	RunE:  runOperatorRemove,
}

func init() {
	operatorCmd.AddCommand(operatorAddCmd)
	operatorCmd.AddCommand(operatorRemoveCmd)
}

func openStore() (*store.Store, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDataDir(); err != nil {
		return nil, err
	}
	return store.New(cfg.Store.DSN)
}

func runOperatorAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	token, err := s.CreateOperator(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("creating operator: %w", err)
	}
	recordOperatorAction(cmd.Context(), s, audit.EventOperatorAdd, args[0])

	fmt.Printf("operator %q created\n", args[0])
	fmt.Printf("token (shown once, store it safely): %s\n", token)
	return nil
}

func runOperatorRemove(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.DeleteOperator(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("removing operator: %w", err)
	}
	recordOperatorAction(cmd.Context(), s, audit.EventOperatorRemove, args[0])

	fmt.Printf("operator %q removed\n", args[0])
	return nil
}

func recordOperatorAction(ctx context.Context, s *store.Store, eventType, name string) {
	trail, err := audit.New(s.DB())
	if err != nil {
		return
	}
	_ = trail.Log(ctx, eventType, "cli", name, nil)
}
