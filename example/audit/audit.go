package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/soilfauna/go-soilfauna/postprocess"
)

// audit re-validates every *-annotations.json COCO document in a directory,
// checking id sequences, references and that every segmentation is a simple
// ring
func main() {
	// disable logging timestamps
	log.SetFlags(0)

	dir := flag.String("d", "./out/annotations", "Directory of COCO annotation files")

	flag.Parse()

	files, err := filepath.Glob(filepath.Join(*dir, "*-annotations.json"))

	if err != nil {
		log.Fatalf("Error listing annotation files: %v\n", err)
	}

	if len(files) == 0 {
		log.Fatalf("No annotation files found in %s\n", *dir)
	}

	invalid := 0

	for _, file := range files {
		doc, err := postprocess.ReadDocument(file)

		if err != nil {
			log.Printf("%s: %v\n", file, err)
			invalid++
			continue
		}

		if err := doc.Validate(); err != nil {
			log.Printf("%s: invalid: %v\n", file, err)
			invalid++
			continue
		}

		log.Printf("%s: %d images, %d categories, %d annotations OK\n", filepath.Base(file),
			len(doc.Images), len(doc.Categories), len(doc.Annotations))
	}

	if invalid > 0 {
		log.Printf("%d of %d files invalid\n", invalid, len(files))
		os.Exit(1)
	}
}
