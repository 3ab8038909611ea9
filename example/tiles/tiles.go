package main

import (
	"flag"
	"log"
	"path/filepath"
	"time"

	"github.com/soilfauna/go-soilfauna/dataset"
	"github.com/soilfauna/go-soilfauna/pipeline"
	"github.com/soilfauna/go-soilfauna/preprocess"
	"github.com/soilfauna/go-soilfauna/render"
	"gocv.io/x/gocv"
)

// tiles previews background suppression, the tile grid and the candidate
// centers of a single image without running the segmentation model, for
// tuning the tiling and cluster parameters
func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	configFile := flag.String("c", "", "JSON config file")
	imgFile := flag.String("i", "../data/images/Collembola/sample.jpg", "Image file to preview")
	outDir := flag.String("o", "../data/tiles-out", "Directory the preview and suppressed image are written to")

	flag.Parse()

	params := pipeline.DefaultParams()

	if *configFile != "" {
		var err error
		params, err = pipeline.LoadParams(*configFile)

		if err != nil {
			log.Fatalf("Error loading config: %v\n", err)
		}
	}

	img, err := dataset.LoadImage(*imgFile)

	if err != nil {
		log.Fatalf("Error reading image: %v\n", err)
	}

	defer img.Close()

	// output dimensions of source image
	log.Printf("Source image dimensions %dx%d\n", img.Cols(), img.Rows())

	suppressor, err := preprocess.NewBackgroundSuppressor(params.ClusterParams())

	if err != nil {
		log.Fatalf("Error creating background suppressor: %v\n", err)
	}

	start := time.Now()

	suppressed, removed, err := suppressor.Suppress(img)

	if err != nil {
		log.Fatalf("Error suppressing background: %v\n", err)
	}

	defer suppressed.Close()

	log.Printf("Removed background clusters %v in %s\n", removed, time.Since(start).String())

	tiler := preprocess.NewTiler(params.Tiling.Rows, params.Tiling.Cols, params.Tiling.Padding)
	tiles, err := tiler.Slice(img, suppressed)

	if err != nil {
		log.Fatalf("Error slicing image: %v\n", err)
	}

	defer preprocess.FreeTiles(tiles)

	finder := preprocess.NewCenterFinder(params.CenterParams())
	overlay := render.Overlay{
		Group:    "tiles",
		FileName: filepath.Base(*imgFile),
		Image:    img,
	}

	for _, tile := range tiles {
		centers, err := finder.Find(tile.Suppressed(), tile.Placement)

		if err != nil {
			log.Printf("Error finding centers in tile %d: %v\n", tile.Index, err)
			continue
		}

		log.Printf("Tile %d (row %d, col %d) %v: %d centers\n", tile.Index, tile.Row,
			tile.Col, tile.Placement, len(centers))

		overlay.Tiles = append(overlay.Tiles, tile.Placement)
		overlay.Centers = append(overlay.Centers, centers...)
	}

	rp := render.DefaultReviewParams()
	rp.MaxWidth = params.Output.PreviewWidth
	writer := render.NewReviewWriter(*outDir, rp)

	path, err := writer.Write(overlay)

	if err != nil {
		log.Fatalf("Error writing preview: %v\n", err)
	}

	log.Printf("Saved preview with %d centers to %s\n", len(overlay.Centers), path)

	suppressedFile := filepath.Join(*outDir, "tiles", "suppressed.png")

	if !gocv.IMWrite(suppressedFile, suppressed) {
		log.Fatalf("Error writing suppressed image to %s\n", suppressedFile)
	}

	log.Printf("Saved suppressed image to %s\n", suppressedFile)
}
