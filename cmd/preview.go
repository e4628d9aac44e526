package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reidsanders/danbooru-utility/internal/metadata"
)

var (
	previewFilter      filterFlags
	previewDirectory   string
	previewMetadataDir string
	previewMax         int
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Print matching records and their source paths, one at a time",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runPreview()
	},
}

func init() {
	previewCmd.Flags().StringVarP(&previewDirectory, "directory", "d", "danbooru2018", "Danbooru dataset directory")
	previewCmd.Flags().StringVar(&previewMetadataDir, "metadata-dir", "metadata", "Metadata path below the dataset directory")
	previewFilter.register(previewCmd)
	previewCmd.Flags().IntVar(&previewMax, "max-examples", 0, "Maximum number of records to preview (0 = unlimited)")

	rootCmd.AddCommand(previewCmd)
}

func runPreview() error {
	cfg, err := previewFilter.config()
	if err != nil {
		return err
	}

	keep := func(rec metadata.Record) (bool, error) {
		score, err := rec.ScoreInt()
		if err != nil {
			return false, err
		}
		return cfg.Passes(rec.TagNames(), rec.Rating, score), nil
	}

	stdin := bufio.NewReader(os.Stdin)
	seen := 0
	metaRoot := filepath.Join(previewDirectory, previewMetadataDir)
	return metadata.Each(metaRoot, keep, func(rec metadata.Record) bool {
		pretty, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			pretty = []byte(err.Error())
		}
		fmt.Println(string(pretty))
		if path, err := rec.SourcePath(previewDirectory); err == nil {
			fmt.Printf("source: %s\n", path)
		}

		seen++
		if previewMax > 0 && seen >= previewMax {
			return false
		}
		fmt.Print("Press enter for next record")
		if _, err := stdin.ReadString('\n'); err != nil {
			return false
		}
		return true
	})
}
