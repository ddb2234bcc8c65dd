package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/appctx/actuator"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

// NewComponentsCommand creates the components command
func NewComponentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "components",
		Short: "Print the component inventory",
		Long: `Components refreshes the container without serving it, prints every
component definition as YAML or TOML and closes the container.`,
		Args: cobra.NoArgs,
		RunE: runComponents,
	}
	cmd.Flags().StringP("format", "f", "yaml", "Output format: yaml or toml")
	return cmd
}

func runComponents(cmd *cobra.Command, _ []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	if format != "yaml" && format != "toml" {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Nothing to inspect over HTTP in a one-shot run.
	cfg.Actuator.Enabled = false

	asm, err := Assemble(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c := asm.Container
	defer func() { _ = c.Close(context.Background()) }()
	if err := c.Refresh(cmd.Context()); err != nil {
		return fmt.Errorf("refreshing container: %w", err)
	}

	inv, err := actuator.Inventory(c)
	if err != nil {
		return err
	}
	return writeInventory(cmd.OutOrStdout(), format, inv)
}

func writeInventory(w io.Writer, format string, inv []actuator.ComponentInfo) error {
	if format == "toml" {
		return toml.NewEncoder(w).Encode(struct {
			Components []actuator.ComponentInfo `toml:"components"`
		}{inv})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(inv); err != nil {
		return err
	}
	return enc.Close()
}
