package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/reidsanders/danbooru-utility/internal/faces"
	"github.com/reidsanders/danbooru-utility/internal/filter"
	"github.com/reidsanders/danbooru-utility/internal/pipeline"
)

// filterFlags is the tag/rating/score predicate surface shared by process
// and preview.
type filterFlags struct {
	Required   string
	Banned     string
	AtLeast    string
	AtLeastNum int
	Ratings    string
	ScoreRange string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Required, "required-tags", "r", "", "Comma-separated tags that must all be present")
	cmd.Flags().StringVarP(&f.Banned, "banned-tags", "b", "", "Comma-separated tags that disqualify a record")
	cmd.Flags().StringVarP(&f.AtLeast, "atleast-tags", "a", "", "Comma-separated tags counted against --atleast-num")
	cmd.Flags().IntVarP(&f.AtLeastNum, "atleast-num", "n", 0, "Minimum number of --atleast-tags required")
	cmd.Flags().StringVar(&f.Ratings, "ratings", filter.DefaultRatings, `Allowed ratings: "s,q,e" = safe, questionable, explicit`)
	cmd.Flags().StringVar(&f.ScoreRange, "score-range", fmt.Sprintf("%d,%d", filter.MinScore, filter.MaxScore), "Inclusive score range min,max")
}

func (f *filterFlags) config() (filter.Config, error) {
	min, max, err := filter.ParseScoreRange(f.ScoreRange)
	if err != nil {
		return filter.Config{}, err
	}
	return filter.Config{
		Required:   filter.ParseSet(f.Required),
		Banned:     filter.ParseSet(f.Banned),
		AtLeast:    filter.ParseSet(f.AtLeast),
		AtLeastNum: f.AtLeastNum,
		Ratings:    filter.ParseSet(f.Ratings),
		ScoreMin:   min,
		ScoreMax:   max,
	}, nil
}

var (
	processFilter filterFlags

	processDirectory   string
	processMetadataDir string
	processSaveDir     string
	processLinkDir     string
	processOverwrite   bool
	processFaces       bool
	processFaceScale   float64
	processCascade     string
	processMaxExamples int
	processImgSize     int
	processWorkers     int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Filter metadata records and produce normalized images",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runProcess(cmd)
	},
}

func init() {
	processCmd.Flags().StringVarP(&processDirectory, "directory", "d", "danbooru2018", "Danbooru dataset directory")
	processCmd.Flags().StringVar(&processMetadataDir, "metadata-dir", "metadata", "Metadata path below the dataset directory; every file under it is streamed")
	processCmd.Flags().StringVar(&processSaveDir, "save-dir", "out-images", "Directory processed images are saved to")
	processCmd.Flags().StringVar(&processLinkDir, "link-dir", "link-images", "Directory with already processed images, symlinked to when files exist")
	processFilter.register(processCmd)
	processCmd.Flags().BoolVar(&processOverwrite, "overwrite", false, "Overwrite images in the save directory")
	processCmd.Flags().BoolVar(&processFaces, "faces", false, "Detect faces and crop the output to them")
	processCmd.Flags().Float64Var(&processFaceScale, "face-scale", 2.5, "Height and width multiplier over the size of a detected face")
	processCmd.Flags().StringVar(&processCascade, "cascade-file", "lbpcascade_animeface.xml", "Cascade classifier file for face detection")
	processCmd.Flags().IntVar(&processMaxExamples, "max-examples", 0, "Maximum number of files to process (0 = unlimited)")
	processCmd.Flags().IntVar(&processImgSize, "img-size", 256, "Side length of resized images; negative disables resizing")
	processCmd.Flags().IntVarP(&processWorkers, "workers", "w", runtime.NumCPU(), "Number of parallel face-detection workers")

	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command) error {
	filterCfg, err := processFilter.config()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(processSaveDir, 0o755); err != nil {
		return fmt.Errorf("create save directory: %w", err)
	}

	cfg := pipeline.Config{
		Directory:   processDirectory,
		MetadataDir: processMetadataDir,
		SaveDir:     processSaveDir,
		LinkDir:     processLinkDir,
		Size:        processImgSize,
		Faces:       processFaces,
		FaceScale:   processFaceScale,
		Overwrite:   processOverwrite,
		MaxExamples: processMaxExamples,
		Workers:     processWorkers,
		Filter:      filterCfg,
	}
	if DB != nil {
		cfg.Recorder = DB
	}

	var detector faces.Detector
	if processFaces {
		fmt.Fprintf(os.Stderr, "⚙️  Spawning %d face-detection workers...\n", processWorkers)
		detector = faces.CascadeDetector{CascadeFile: processCascade}
	}

	_, err = pipeline.New(cfg, detector).Run(cmd.Context())
	return err
}
