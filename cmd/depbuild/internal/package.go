package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goplus/depbuild/internal/archive"
	"github.com/goplus/depbuild/internal/build"
	"github.com/goplus/depbuild/internal/logging"
	"github.com/goplus/depbuild/internal/upload"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	packageFormat string
	packageOutput string
	packageUpload bool
)

var packageCmd = &cobra.Command{
	Use:   "package project",
	Short: "Archive the files a project installed",
	Long: `Package writes the manifest matches of a project into
<project>-<version>-<platform>.tar.gz (or .tar.zst) and optionally uploads the
archive to the configured S3 bucket.`,
	Args: cobra.ExactArgs(1),
	RunE: runPackage,
}

func init() {
	packageCmd.Flags().StringVar(&packageFormat, "format", "tar.gz", "Archive format (tar.gz or tar.zst)")
	packageCmd.Flags().StringVarP(&packageOutput, "output", "o", ".", "Directory to write the archive to")
	packageCmd.Flags().BoolVar(&packageUpload, "upload", false, "Upload the archive to the configured S3 bucket")
	rootCmd.AddCommand(packageCmd)
}

func runPackage(cmd *cobra.Command, args []string) error {
	if packageFormat != "tar.gz" && packageFormat != "tar.zst" {
		return eris.Errorf("unknown format %q, want tar.gz or tar.zst", packageFormat)
	}
	b, err := newBuilder(cmd)
	if err != nil {
		return err
	}
	out, err := packageProject(b, args[0], packageOutput, packageFormat)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)

	if !packageUpload {
		return nil
	}
	ctx := cmd.Context()
	client, err := upload.New(ctx, upload.Options{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		Bucket:    cfg.S3.Bucket,
		Prefix:    cfg.S3.Prefix,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
	})
	if err != nil {
		return err
	}
	key, err := client.UploadFile(ctx, out)
	if err != nil {
		return err
	}
	logging.From(ctx).Info().Str("key", key).Msg("uploaded")
	return nil
}

// packageName returns the archive name of a project build.
func packageName(project, version, platform, format string) string {
	if version == "" {
		return fmt.Sprintf("%s-%s.%s", project, platform, format)
	}
	return fmt.Sprintf("%s-%s-%s.%s", project, version, platform, format)
}

// packageProject archives the manifest matches of project into dir and
// returns the archive path.
func packageProject(b *build.Builder, project, dir, format string) (string, error) {
	plan, err := b.Prepare(project)
	if err != nil {
		return "", err
	}
	files, err := build.Manifest(b.BuildDir(), plan.Recipe.Manifest)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", eris.Errorf("project %s: nothing in the manifest matches below %s", project, b.BuildDir())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	out := filepath.Join(dir, packageName(project, plan.Recipe.Version, string(b.Platform()), format))
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.FromSlash(f)
	}
	if err := archive.Create(out, b.BuildDir(), paths); err != nil {
		return "", err
	}
	return out, nil
}
