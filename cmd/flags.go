package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// Flags are declared in init(), so a lookup failure in the helpers below is
// a programming bug and panics.

func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringSlice(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// stringFlagOrEnv resolves a string setting: an explicit flag wins, then a
// non-empty env, then the flag default.
func stringFlagOrEnv(cmd *cobra.Command, name, env string) string {
	val := mustGetString(cmd, name)
	if cmd.Flags().Changed(name) {
		return val
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return val
}

// intFlagOrEnv is stringFlagOrEnv for ints. An env value that does not parse
// is ignored.
func intFlagOrEnv(cmd *cobra.Command, name, env string) int {
	val := mustGetInt(cmd, name)
	if cmd.Flags().Changed(name) {
		return val
	}
	if v, err := strconv.Atoi(os.Getenv(env)); err == nil {
		return v
	}
	return val
}
