package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-verify/internal/config"
)

var registerCmd = &cobra.Command{
	Use:   "register [image...]",
	Short: "Register face images",
	Long: `Register one or more face images. Each image is normalised to JPEG,
stored as registered_<N>.jpg and appended to the registry.

Use --dir to register every image in a folder (add -r to search
subdirectories). Supported formats: jpg, jpeg, png, gif, bmp, webp

Example:
  face-verify register alice.jpg
  face-verify register --dir ./captures -r`,
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	registerCmd.Flags().StringSlice("dir", nil, "Folder(s) of images to register")
	registerCmd.Flags().BoolP("recursive", "r", false, "Search folders recursively")
}

// isImageFile checks if a file has an extension the image decoder supports
func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

// collectImages lists the image files of a folder in directory order.
func collectImages(folder string, recursive bool) ([]string, error) {
	info, err := os.Stat(folder)
	if err != nil {
		return nil, fmt.Errorf("cannot access folder %s: %w", folder, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", folder)
	}

	var paths []string
	if recursive {
		err := filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isImageFile(d.Name()) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("cannot walk folder %s: %w", folder, err)
		}
		return paths, nil
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("cannot read folder %s: %w", folder, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && isImageFile(entry.Name()) {
			paths = append(paths, filepath.Join(folder, entry.Name()))
		}
	}
	return paths, nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	filePaths := append([]string{}, args...)
	recursive := mustGetBool(cmd, "recursive")
	for _, folder := range mustGetStringSlice(cmd, "dir") {
		found, err := collectImages(folder, recursive)
		if err != nil {
			return err
		}
		filePaths = append(filePaths, found...)
	}

	if len(filePaths) == 0 {
		return errors.New("no images to register: pass image files or --dir")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, config.Load(), prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	bar := progressbar.NewOptions(len(filePaths),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Registering"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("faces"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var labels []string
	var failures []string
	for _, path := range filePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", path, err))
			bar.Add(1)
			continue
		}
		reg, err := a.service.Register(ctx, data)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", path, err))
			bar.Add(1)
			continue
		}
		labels = append(labels, fmt.Sprintf("%s <- %s", reg.Label, filepath.Base(path)))
		bar.Add(1)
	}
	fmt.Fprintln(cmd.ErrOrStderr())

	for _, l := range labels {
		fmt.Fprintf(out, "Registered %s\n", l)
	}
	if len(failures) > 0 {
		fmt.Fprintf(out, "\nFailed to register %d image(s):\n", len(failures))
		for _, f := range failures {
			fmt.Fprintf(out, "  - %s\n", f)
		}
		return fmt.Errorf("%d of %d image(s) failed", len(failures), len(filePaths))
	}
	return nil
}
