package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-verify/internal/config"
	"github.com/kozaktomas/face-verify/internal/faceauth"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <image>",
	Short: "Check whether an image matches a registered face",
	Long: `Compare an image with every registered face in registration order and
report the first match.

Exit status is 0 when access is granted and non-zero otherwise.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().Bool("json", false, "Print the full outcome as JSON")
}

func runVerify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, config.Load(), prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.service.Verify(ctx, data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			return err
		}
	} else {
		printOutcome(cmd, outcome)
	}

	if outcome.Status != faceauth.StatusMatched {
		return fmt.Errorf("access denied: %s", outcome.Status)
	}
	return nil
}

func printOutcome(cmd *cobra.Command, o *faceauth.Outcome) {
	out := cmd.OutOrStdout()
	switch o.Status {
	case faceauth.StatusMatched:
		fmt.Fprintf(out, "Access granted: matched %s (distance %.4f, threshold %.4f)\n",
			o.Match.Label, o.Result.Distance, o.Result.Threshold)
	case faceauth.StatusNotAuthorized:
		fmt.Fprintf(out, "Access denied: no match among %d registered face(s)\n", o.Compared)
	case faceauth.StatusNoRegisteredFaces:
		fmt.Fprintln(out, "No registered faces. Register a face first.")
	}

	for _, e := range o.Errors {
		fmt.Fprintf(out, "  ! %s\n", e.Error())
	}
	if o.RegistryRecovered {
		fmt.Fprintln(out, "Warning: the registry was unreadable and has been treated as empty")
	}
}
