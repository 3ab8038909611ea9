// Package pipeline drives images through background suppression, tiling,
// center finding, segmentation, mask aggregation and contour extraction and
// accumulates the resulting annotations into one COCO document per group.
package pipeline

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	soilfauna "github.com/soilfauna/go-soilfauna"
	"github.com/soilfauna/go-soilfauna/dataset"
	"github.com/soilfauna/go-soilfauna/postprocess"
	"github.com/soilfauna/go-soilfauna/postprocess/result"
	"github.com/soilfauna/go-soilfauna/preprocess"
	"github.com/soilfauna/go-soilfauna/render"
	"gocv.io/x/gocv"
)

// Reviewer receives the overlay of each annotated image for visual review
type Reviewer interface {
	Review(o render.Overlay) error
}

// group is the per group COCO accumulator
type group struct {
	// mu serialises commits so an image's annotations are contiguous
	mu         sync.Mutex
	builder    *postprocess.CocoBuilder
	categoryID int
	reports    []*Report
}

// Pipeline segments images and accumulates their annotations
type Pipeline struct {
	params     *Params
	segmenter  soilfauna.Segmenter
	suppressor *preprocess.BackgroundSuppressor
	tiler      *preprocess.Tiler
	finder     *preprocess.CenterFinder
	aggregator *postprocess.Aggregator
	extractor  *postprocess.ContourExtractor
	reviewer   Reviewer
	workers    int
	log        *log.Logger

	mu     sync.Mutex
	groups map[string]*group
}

// New returns a Pipeline using the given segmenter.  When the segmenter is a
// soilfauna.Pool tiles are segmented concurrently, one per pooled segmenter
func New(params *Params, seg soilfauna.Segmenter) (*Pipeline, error) {

	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	if seg == nil {
		return nil, fmt.Errorf("a segmenter is required")
	}

	suppressor, err := preprocess.NewBackgroundSuppressor(params.ClusterParams())

	if err != nil {
		return nil, err
	}

	approx, err := postprocess.ParseApproximation(params.Contours.Approximation)

	if err != nil {
		return nil, err
	}

	workers := 1

	if pool, ok := seg.(*soilfauna.Pool); ok && pool.Size() > 1 {
		workers = pool.Size()
	}

	return &Pipeline{
		params:     params,
		segmenter:  seg,
		suppressor: suppressor,
		tiler:      preprocess.NewTiler(params.Tiling.Rows, params.Tiling.Cols, params.Tiling.Padding),
		finder:     preprocess.NewCenterFinder(params.CenterParams()),
		aggregator: postprocess.NewAggregator(),
		extractor:  postprocess.NewContourExtractor(approx),
		workers:    workers,
		log:        log.Default(),
		groups:     make(map[string]*group),
	}, nil
}

// SetLogger sets the logger skip events and counts are written to
func (p *Pipeline) SetLogger(l *log.Logger) {
	p.log = l
}

// SetWorkers sets the number of tiles segmented concurrently.  The segmenter
// must be safe for concurrent use when n > 1
func (p *Pipeline) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}

	p.workers = n
}

// SetReviewer sets a Reviewer called for every annotated image
func (p *Pipeline) SetReviewer(r Reviewer) {
	p.reviewer = r
}

// group returns the accumulator for a group key, creating it and its
// category on first use
func (p *Pipeline) group(name string) *group {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g, ok := p.groups[name]; ok {
		return g
	}

	g := &group{
		builder: postprocess.NewCocoBuilder(),
	}

	g.categoryID = g.builder.AddCategory(p.params.Contours.Category)
	p.groups[name] = g

	return g
}

// groupNames returns the group keys in sorted order
func (p *Pipeline) groupNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, 0, len(p.groups))

	for name := range p.groups {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// tileResult is the outcome of segmenting one tile
type tileResult struct {
	centers []result.CandidateCenter
	mask    *result.TileMask
	err     error
}

// ProcessImage runs one BGR image through the pipeline and commits its
// annotations to the named group.  An error is returned only when the image
// is dropped, failures of single tiles or contours are recorded in the
// Report and logged.  Nothing is committed for a dropped image
func (p *Pipeline) ProcessImage(groupName, fileName string, img gocv.Mat) (Report, error) {
	return p.processImage(groupName, fileName, img, -1)
}

func (p *Pipeline) processImage(groupName, fileName string, img gocv.Mat, expected int) (Report, error) {

	rep := Report{
		Group:    groupName,
		FileName: fileName,
		Stage:    StageLoaded,
		Width:    img.Cols(),
		Height:   img.Rows(),
		Expected: expected,
	}

	g := p.group(groupName)

	seg, err := p.segment(img, &rep)

	if err != nil {
		rep.Err = err
		p.log.Printf("skip image %s/%s at stage %s: %v", groupName, fileName, rep.Stage, err)
		g.addReport(&rep)
		return rep, err
	}

	defer p.aggregator.Release(seg.mask)

	// commit the image with its annotations
	g.mu.Lock()
	rep.ImageID = g.builder.AddImage(rep.Width, rep.Height, fileName)

	for _, c := range seg.contours {
		if _, err := g.builder.AddAnnotation(rep.ImageID, g.categoryID, c); err != nil {
			rep.Rejected++
			p.log.Printf("skip annotation in %s/%s: %v", groupName, fileName, err)
			continue
		}

		rep.Annotations++
	}
	g.mu.Unlock()

	rep.Stage = StageAnnotated
	g.addReport(&rep)

	if p.reviewer != nil {
		o := render.Overlay{
			Group:    groupName,
			FileName: fileName,
			Image:    img,
			Mask:     seg.mask,
			Polygons: seg.polygons,
			Tiles:    seg.tiles,
			Centers:  seg.centers,
		}

		if err := p.reviewer.Review(o); err != nil {
			p.log.Printf("error writing review of %s/%s: %v", groupName, fileName, err)
		}
	}

	return rep, nil
}

// segmentation holds the intermediate results of one image
type segmentation struct {
	tiles   []result.Placement
	centers []result.CandidateCenter
	mask    result.Mask
	// contours are the raw contours that passed validation
	contours []result.Contour
	polygons []result.Polygon
}

// segment runs the image up to contour extraction.  The returned mask must
// be released to the aggregator
func (p *Pipeline) segment(img gocv.Mat, rep *Report) (*segmentation, error) {

	suppressed, _, err := p.suppressor.Suppress(img)

	if err != nil {
		return nil, err
	}

	defer suppressed.Close()
	rep.Stage = StageBackgroundSuppressed

	tiles, err := p.tiler.Slice(img, suppressed)

	if err != nil {
		return nil, err
	}

	defer preprocess.FreeTiles(tiles)
	rep.Stage = StageTiled
	rep.Tiles = len(tiles)

	seg := &segmentation{
		tiles: make([]result.Placement, len(tiles)),
	}

	for i := range tiles {
		seg.tiles[i] = tiles[i].Placement
	}

	results := p.segmentTiles(tiles)
	rep.Stage = StageCentersFound
	tileMasks := make([]result.TileMask, 0, len(tiles))

	for i, res := range results {
		rep.Centers += len(res.centers)
		seg.centers = append(seg.centers, res.centers...)

		switch {
		case res.err != nil:
			rep.ModelErrors++
			p.log.Printf("skip tile %d %v of %s: %v", i, tiles[i].Placement, rep.FileName, res.err)

		case len(res.centers) == 0:
			rep.TilesSkipped++
			p.log.Printf("no centers in tile %d %v of %s", i, tiles[i].Placement, rep.FileName)

		case res.mask != nil:
			tileMasks = append(tileMasks, *res.mask)
		}
	}

	rep.Stage = StageSegmented

	// all tiles are collected before aggregation starts
	seg.mask, err = p.aggregator.Aggregate(rep.Width, rep.Height, tileMasks)

	if err != nil {
		return nil, err
	}

	rep.Stage = StageAggregated

	raw, err := p.extractor.Extract(seg.mask)

	if err != nil {
		p.aggregator.Release(seg.mask)
		return nil, err
	}

	rep.Stage = StageContoursExtracted
	rep.Contours = len(raw)

	seg.polygons = make([]result.Polygon, 0, len(raw))
	seg.contours = make([]result.Contour, 0, len(raw))

	for _, c := range raw {
		poly, err := postprocess.ValidatePolygon(c)

		if err != nil {
			rep.Rejected++
			p.log.Printf("skip contour of %s: %v", rep.FileName, err)
			continue
		}

		seg.polygons = append(seg.polygons, poly)
		seg.contours = append(seg.contours, c)
	}

	return seg, nil
}

// segmentTiles finds centers in and segments every tile, running up to
// p.workers tiles at once.  Results are in tile order
func (p *Pipeline) segmentTiles(tiles []preprocess.Tile) []tileResult {

	results := make([]tileResult, len(tiles))
	jobs := make(chan int)

	var wg sync.WaitGroup

	for w := 0; w < min(p.workers, len(tiles)); w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range jobs {
				results[i] = p.segmentTile(&tiles[i])
			}
		}()
	}

	for i := range tiles {
		jobs <- i
	}

	close(jobs)
	wg.Wait()

	return results
}

// segmentTile prompts the segmenter with the tile's candidate centers and
// unions the returned masks into a single tile mask
func (p *Pipeline) segmentTile(tile *preprocess.Tile) tileResult {

	centers, err := p.finder.Find(tile.Suppressed(), tile.Placement)

	if err != nil {
		return tileResult{err: err}
	}

	if len(centers) == 0 {
		return tileResult{}
	}

	points := make([]result.LocalPoint, len(centers))

	for i, c := range centers {
		points[i] = c.Point
	}

	// the model sees the unmodified pixels, not the suppressed crop
	res, err := p.segmenter.Predict(tile.Raw(), points)

	if err != nil {
		return tileResult{centers: centers, err: fmt.Errorf("%w: %v", soilfauna.ErrExternalModel, err)}
	}

	w, h := tile.Placement.Width(), tile.Placement.Height()
	tm := result.TileMask{
		Placement: tile.Placement,
		Mask:      result.NewMask(w, h),
	}

	for _, r := range res {
		for _, m := range r.Masks {
			if m.Width != w || m.Height != h || len(m.Pix) != w*h {
				return tileResult{centers: centers, err: fmt.Errorf("%w: %w: mask %dx%d for tile %dx%d",
					soilfauna.ErrExternalModel, postprocess.ErrMaskShape, m.Width, m.Height, w, h)}
			}

			for i, v := range m.Pix {
				if v != 0 {
					tm.Mask.Pix[i] = 1
				}
			}
		}
	}

	return tileResult{centers: centers, mask: &tm}
}

// addReport records the report of an image in its group
func (g *group) addReport(r *Report) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reports = append(g.reports, r)
}

// ProcessItem loads a dataset item and processes it into its group.  The
// returned report's Err is set if the image was dropped
func (p *Pipeline) ProcessItem(it dataset.Item) Report {

	meta, err := it.LoadMetadata()

	if err != nil {
		p.log.Printf("ignoring metadata of %s: %v", it.Path, err)
	}

	img, err := it.Load()

	if err != nil {
		rep := Report{Group: it.Group, FileName: it.FileName(), Expected: -1, Err: err}
		p.log.Printf("skip image %s: %v", it.Path, err)
		p.group(it.Group).addReport(&rep)
		return rep
	}

	defer img.Close()

	expected := -1

	if meta != nil {
		expected = meta.ExpectedCount()
	}

	rep, _ := p.processImage(it.Group, it.FileName(), img, expected)

	if meta != nil {
		p.log.Printf("%s/%s: %d annotations, %d expected from metadata",
			it.Group, it.FileName(), rep.Annotations, rep.Expected)
	}

	return rep
}

// Run processes every image of the dataset group by group in path order
func (p *Pipeline) Run(ds *dataset.Dataset) Summary {

	groups := ds.Groups()
	reports := make([]Report, 0, len(ds.Items))

	for _, name := range groups {
		// every group gets a document even if all its images fail
		p.group(name)

		for _, it := range ds.ByGroup(name) {
			reports = append(reports, p.ProcessItem(it))
		}

		p.logGroup(name)
	}

	return summarise(groups, reports)
}

// logGroup logs the counts of a group
func (p *Pipeline) logGroup(name string) {
	images, _, annotations := p.group(name).builder.Counts()
	p.log.Printf("group %s: %d images, %d annotations", name, images, annotations)
}

// Documents returns a snapshot of the COCO document of every group
func (p *Pipeline) Documents() map[string]postprocess.Document {

	docs := make(map[string]postprocess.Document)

	for _, name := range p.groupNames() {
		docs[name] = p.group(name).builder.Build()
	}

	return docs
}

// Persist writes each group's COCO document to dir as
// <group>-annotations.json and returns the paths written
func (p *Pipeline) Persist(dir string) ([]string, error) {

	var errs []error
	paths := make([]string, 0)

	for _, name := range p.groupNames() {
		g := p.group(name)
		path, err := g.builder.Build().Save(dir, name)

		if err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", name, err))
			continue
		}

		paths = append(paths, path)

		g.mu.Lock()
		for _, r := range g.reports {
			if r.Committed() {
				r.Stage = StagePersisted
			}
		}
		g.mu.Unlock()
	}

	return paths, errors.Join(errs...)
}

// Reports returns a copy of the reports recorded for a group
func (p *Pipeline) Reports(name string) []Report {
	g := p.group(name)

	g.mu.Lock()
	defer g.mu.Unlock()

	reports := make([]Report, len(g.reports))

	for i, r := range g.reports {
		reports[i] = *r
	}

	return reports
}
