package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write every live entry to FILE",
	Long: `Write every live entry to FILE as a compressed record stream, using the
configured compression. Use "-" for stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load entries written by export",
	Long: `Load entries from a file written by export. The compression must match
the one used for the export. Use "-" for stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	out := os.Stdout
	if args[0] != "-" {
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	n, err := s.Export(cmd.Context(), out)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	if out != os.Stdout {
		if err := out.Sync(); err != nil {
			return fmt.Errorf("syncing export file: %w", err)
		}
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d entries\n", n)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	in := os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening import file: %w", err)
		}
		defer f.Close()
		in = f
	}

	n, err := s.Import(cmd.Context(), in)
	if err != nil {
		return fmt.Errorf("importing: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Imported %d entries\n", n)
	return nil
}

func dbPath() string {
	return viper.GetString("db")
}
