package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/appctx/config"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Refresh the container and run until interrupted",
		Long: `Run loads the configuration, refreshes the container and keeps it
running until SIGINT or SIGTERM, then closes it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runContainer(ctx, cmd)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.LoadFile(path)
}

func runContainer(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	asm, err := Assemble(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c := asm.Container
	if err := c.Refresh(ctx); err != nil {
		_ = c.Close(context.Background())
		return fmt.Errorf("refreshing container: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Container %s (%s) running with %d components\n",
		c.Name(), c.ID(), len(c.ComponentNames()))

	<-ctx.Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout)
	defer cancel()
	if err := c.Close(closeCtx); err != nil {
		return fmt.Errorf("closing container: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Container closed")
	return nil
}
