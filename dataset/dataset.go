// Package dataset walks a directory tree of specimen photographs, groups them
// by their parent directory and pairs each with an optional JSON metadata
// sidecar.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInput is returned when an image or metadata file is missing or can not
// be read
var ErrInput = errors.New("input error")

// imageExts are the file extensions treated as images
var imageExts = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"tif":  true,
	"tiff": true,
	"bmp":  true,
	"webp": true,
}

// fileExtension returns the lower case file extension without the dot
func fileExtension(filename string) string {
	ext := filepath.Ext(filename)

	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}

	return ""
}

// IsImageFile checks if a file has a supported image extension
func IsImageFile(filename string) bool {
	return imageExts[fileExtension(filename)]
}

// Item is a single image in the dataset
type Item struct {
	// Path is the image file path
	Path string
	// Group is the grouping key, the name of the directory holding the image
	Group string
	// MetadataPath is the path of the metadata sidecar, empty if none
	MetadataPath string
}

// FileName returns the image's base file name
func (it Item) FileName() string {
	return filepath.Base(it.Path)
}

// Stem returns the file name without its extension
func (it Item) Stem() string {
	name := it.FileName()
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Metadata is the JSON sidecar of an image.  Only the annotation list is
// interpreted, to report the expected specimen count
type Metadata struct {
	Annotations []json.RawMessage `json:"annotations"`
}

// ExpectedCount returns the number of annotations recorded in the metadata
func (m *Metadata) ExpectedCount() int {
	if m == nil {
		return 0
	}

	return len(m.Annotations)
}

// LoadMetadata reads the item's metadata sidecar.  Returns nil and no error
// if the item has none
func (it Item) LoadMetadata() (*Metadata, error) {

	if it.MetadataPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(it.MetadataPath)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}

	meta := &Metadata{}

	if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("%w: error decoding metadata %s: %v", ErrInput, it.MetadataPath, err)
	}

	return meta, nil
}

// Dataset is the set of images found under a root directory
type Dataset struct {
	// Root is the image directory
	Root string
	// MetadataRoot is the directory searched for metadata sidecars
	MetadataRoot string
	// Suffix is appended to an image's stem to form its metadata file name,
	// <stem><suffix>.json
	Suffix string
	// Items are the images found, sorted by path
	Items []Item
}

// Open recursively lists the images under root.  If metadataRoot is not
// empty it is searched recursively for a <stem><suffix>.json sidecar for each
// image
func Open(root, metadataRoot, suffix string) (*Dataset, error) {

	info, err := os.Stat(root)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInput, root)
	}

	ds := &Dataset{
		Root:         root,
		MetadataRoot: metadataRoot,
		Suffix:       suffix,
	}

	sidecars, err := listMetadata(metadataRoot)

	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !IsImageFile(path) {
			return nil
		}

		it := Item{
			Path:  path,
			Group: filepath.Base(filepath.Dir(path)),
		}

		it.MetadataPath = sidecars[it.Stem()+suffix+".json"]
		ds.Items = append(ds.Items, it)

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: error walking %s: %v", ErrInput, root, err)
	}

	sort.Slice(ds.Items, func(i, j int) bool {
		return ds.Items[i].Path < ds.Items[j].Path
	})

	return ds, nil
}

// listMetadata maps JSON file names under dir to their path, keeping the
// first found in lexical walk order
func listMetadata(dir string) (map[string]string, error) {

	files := make(map[string]string)

	if dir == "" {
		return files, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || fileExtension(path) != "json" {
			return nil
		}

		name := filepath.Base(path)

		if _, ok := files[name]; !ok {
			files[name] = path
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: error walking metadata %s: %v", ErrInput, dir, err)
	}

	return files, nil
}

// Groups returns the sorted group keys of the dataset
func (d *Dataset) Groups() []string {

	seen := make(map[string]bool)
	groups := make([]string, 0)

	for _, it := range d.Items {
		if !seen[it.Group] {
			seen[it.Group] = true
			groups = append(groups, it.Group)
		}
	}

	sort.Strings(groups)

	return groups
}

// ByGroup returns the items of a group in path order
func (d *Dataset) ByGroup(group string) []Item {

	items := make([]Item, 0)

	for _, it := range d.Items {
		if it.Group == group {
			items = append(items, it)
		}
	}

	return items
}
