package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/discochess/bucketstore"
)

var (
	ttl        time.Duration
	outputJSON bool
)

var putCmd = &cobra.Command{
	Use:   "put KEY VALUE",
	Short: "Store an entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runPut,
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the value of an entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

var deleteCmd = &cobra.Command{
	Use:   "delete KEY...",
	Short: "Remove entries",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

func init() {
	putCmd.Flags().DurationVar(&ttl, "ttl", 0, "time to live, 0 never expires")
	getCmd.Flags().BoolVar(&outputJSON, "json", false, "output the entry as JSON")
	rootCmd.AddCommand(putCmd, getCmd, deleteCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	e := bucketstore.Entry{Key: []byte(args[0]), Value: []byte(args[1])}
	if ttl > 0 {
		e.Expiration = time.Now().Add(ttl)
	}
	if err := s.Write(cmd.Context(), e); err != nil {
		return fmt.Errorf("writing entry: %w", err)
	}
	return nil
}

// entryOutput is the JSON form of an entry.
type entryOutput struct {
	Key        string     `json:"key"`
	Value      string     `json:"value"`
	Bucket     string     `json:"bucket"`
	Expiration *time.Time `json:"expiration,omitempty"`
}

func runGet(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := s.Load(cmd.Context(), []byte(args[0]))
	if err != nil {
		if errors.Is(err, bucketstore.ErrNotFound) {
			return fmt.Errorf("key %q not found", args[0])
		}
		return fmt.Errorf("loading entry: %w", err)
	}

	if !outputJSON {
		fmt.Fprintln(cmd.OutOrStdout(), string(e.Value))
		return nil
	}

	out := entryOutput{
		Key:    string(e.Key),
		Value:  string(e.Value),
		Bucket: fmt.Sprintf("%08x", s.BucketID(e.Key)),
	}
	if !e.Expiration.IsZero() {
		out.Expiration = &e.Expiration
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	for _, k := range args {
		ok, err := s.Delete(cmd.Context(), []byte(k))
		if err != nil {
			return fmt.Errorf("deleting %q: %w", k, err)
		}
		if !ok {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: not found\n", k)
		}
	}
	return nil
}
