package main

import (
	"errors"
	"flag"
	"log"
	"time"

	soilfauna "github.com/soilfauna/go-soilfauna"
	"github.com/soilfauna/go-soilfauna/dataset"
	"github.com/soilfauna/go-soilfauna/pipeline"
	"github.com/soilfauna/go-soilfauna/render"
)

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	configFile := flag.String("c", "", "JSON config file, flags given on the command line override it")
	imgDir := flag.String("d", "../data/images", "Directory of images, one sub directory per group")
	metaDir := flag.String("meta", "", "Directory searched for <stem>_no_bkgd.json metadata files")
	outDir := flag.String("o", "./out/annotations", "Directory COCO annotation files are written to")
	encoderFile := flag.String("e", "../data/sam_vit_b_encoder.onnx", "SAM image encoder ONNX model file")
	decoderFile := flag.String("m", "../data/sam_vit_b_decoder.onnx", "SAM prompt decoder ONNX model file")
	poolSize := flag.Int("s", 1, "Number of segmenters, tiles of an image are segmented concurrently")
	rows := flag.Int("rows", 5, "Number of tile rows per image")
	cols := flag.Int("cols", 5, "Number of tile columns per image")
	padding := flag.Int("pad", 10, "Pixels of padding added around each tile")
	category := flag.String("category", "Unclassified", "Category name given to every annotation")
	overlays := flag.Bool("overlays", false, "Write review previews of every annotated image")
	saveConfig := flag.String("save-config", "", "Write the effective config to this file and exit")

	flag.Parse()

	params := pipeline.DefaultParams()

	if *configFile != "" {
		var err error
		params, err = pipeline.LoadParams(*configFile)

		if err != nil {
			log.Fatalf("Error loading config: %v\n", err)
		}
	}

	// only flags set explicitly override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "d":
			params.Dataset.ImageDir = *imgDir
		case "meta":
			params.Dataset.MetadataDir = *metaDir
		case "o":
			params.Output.Dir = *outDir
		case "e":
			params.Model.EncoderFile = *encoderFile
		case "m":
			params.Model.DecoderFile = *decoderFile
		case "s":
			params.Model.PoolSize = *poolSize
		case "rows":
			params.Tiling.Rows = *rows
		case "cols":
			params.Tiling.Cols = *cols
		case "pad":
			params.Tiling.Padding = *padding
		case "category":
			params.Contours.Category = *category
		case "overlays":
			params.Output.Overlays = *overlays
		}
	})

	if err := params.Validate(); err != nil {
		log.Fatalf("Invalid config: %v\n", err)
	}

	if *saveConfig != "" {
		if err := params.Save(*saveConfig); err != nil {
			log.Fatalf("Error saving config: %v\n", err)
		}

		log.Printf("Saved config to %s\n", *saveConfig)
		return
	}

	ds, err := dataset.Open(params.Dataset.ImageDir, params.Dataset.MetadataDir,
		params.Dataset.MetadataSuffix)

	if err != nil {
		log.Fatalf("Error opening image directory: %v\n", err)
	}

	log.Printf("Found %d images in %d groups\n", len(ds.Items), len(ds.Groups()))

	// create pool of segmenters
	pool, err := soilfauna.NewPool(params.Model.PoolSize, params.SAMParams())

	if err != nil {
		if errors.Is(err, soilfauna.ErrModelFile) {
			log.Fatalf("Model file unavailable: %v\n", err)
		}

		log.Fatalf("Error creating segmenter pool: %v\n", err)
	}

	defer pool.Close()

	pl, err := pipeline.New(params, pool)

	if err != nil {
		log.Fatalf("Error creating pipeline: %v\n", err)
	}

	if params.Output.Overlays {
		rp := render.DefaultReviewParams()
		rp.MaxWidth = params.Output.PreviewWidth
		pl.SetReviewer(render.NewReviewWriter(params.Output.ReviewDir, rp))
	}

	start := time.Now()

	summary := pl.Run(ds)

	paths, err := pl.Persist(params.Output.Dir)

	if err != nil {
		log.Printf("Error writing annotations: %v\n", err)
	}

	for _, g := range summary.Groups {
		log.Printf("%s: %d images, %d failed, %d annotations, %d rejected contours, %d model errors\n",
			g.Group, g.Images, g.Failed, g.Annotations, g.Rejected, g.ModelErrors)

		if g.Expected > 0 {
			log.Printf("%s: %d annotations produced for %d expected\n",
				g.Group, g.ProducedForExpected, g.Expected)
		}
	}

	for _, p := range paths {
		log.Printf("Wrote %s\n", p)
	}

	log.Printf("Processed %d images (%d failed) with %d annotations in %s\n",
		summary.Images(), summary.Failed(), summary.Annotations(),
		time.Since(start).String())
}
