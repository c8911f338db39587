package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-verify/internal/config"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "List registered faces",
	Args:  cobra.NoArgs,
	RunE:  runFaces,
}

func init() {
	rootCmd.AddCommand(facesCmd)
}

func runFaces(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, config.Load(), prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.service.Faces(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if snap.Recovered {
		fmt.Fprintln(out, "Warning: the registry was unreadable and has been treated as empty")
	}
	if snap.Empty() {
		fmt.Fprintln(out, "No registered faces.")
		return nil
	}

	fmt.Fprintf(out, "%d registered face(s):\n", snap.Len())
	for _, e := range snap.Entries() {
		fmt.Fprintf(out, "  %-16s %s\n", e.Label, e.Location)
	}
	return nil
}
