package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/reidsanders/danbooru-utility/internal/metadata"
	"github.com/reidsanders/danbooru-utility/internal/pipeline"
)

var statsSaveDir string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the metadata index of a completed run",
	Run: func(cmd *cobra.Command, args []string) {
		runStats()
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsSaveDir, "save-dir", "out-images", "Directory holding the run's index.json")
	rootCmd.AddCommand(statsCmd)
}

func runStats() {
	path := filepath.Join(statsSaveDir, pipeline.IndexFile)
	buf, err := os.ReadFile(path)
	if err != nil {
		fail("Failed to read metadata index", err)
	}

	var index struct {
		Data []metadata.Record `json:"data"`
	}
	if err := json.Unmarshal(buf, &index); err != nil {
		fail("Failed to parse metadata index", err)
	}

	if len(index.Data) == 0 {
		fmt.Println("Index is empty.")
		return
	}

	byRating := make(map[string]int)
	records := make(map[string]struct{})
	for _, rec := range index.Data {
		byRating[rec.Rating]++
		records[rec.ID.String()] = struct{}{}
	}

	ratings := make([]string, 0, len(byRating))
	for r := range byRating {
		ratings = append(ratings, r)
	}
	sort.Strings(ratings)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RATING\tOUTPUTS")
	fmt.Fprintln(w, "------\t-------")
	for _, r := range ratings {
		fmt.Fprintf(w, "%s\t%d\n", r, byRating[r])
	}
	fmt.Fprintf(w, "\nTOTAL\t%d\n", len(index.Data))
	fmt.Fprintf(w, "RECORDS\t%d\n", len(records))
	w.Flush()
}
