package pipeline

// Stage is the processing state an image has reached
type Stage int

const (
	StageLoaded Stage = iota
	StageBackgroundSuppressed
	StageTiled
	StageCentersFound
	StageSegmented
	StageAggregated
	StageContoursExtracted
	StageAnnotated
	StagePersisted
)

// String returns a readable name of the stage
func (s Stage) String() string {
	switch s {
	case StageLoaded:
		return "loaded"
	case StageBackgroundSuppressed:
		return "background suppressed"
	case StageTiled:
		return "tiled"
	case StageCentersFound:
		return "centers found"
	case StageSegmented:
		return "segmented"
	case StageAggregated:
		return "aggregated"
	case StageContoursExtracted:
		return "contours extracted"
	case StageAnnotated:
		return "annotated"
	case StagePersisted:
		return "persisted"
	}

	return "unknown"
}

// Report records the outcome of processing one image
type Report struct {
	Group    string
	FileName string
	// Stage is the last stage the image completed
	Stage Stage
	// ImageID is the COCO image id, 0 if the image was not committed
	ImageID int
	Width   int
	Height  int
	// Tiles is the number of tiles the image was split into
	Tiles int
	// TilesSkipped is the number of tiles with no candidate centers
	TilesSkipped int
	// ModelErrors is the number of tiles whose model call failed
	ModelErrors int
	Centers     int
	Contours    int
	Annotations int
	// Rejected is the number of contours that failed polygon validation
	Rejected int
	// Expected is the annotation count from the image metadata, -1 if unknown
	Expected int
	// Err is the error that stopped processing, nil if the image completed
	Err error
}

// Committed reports whether the image was added to its group's document
func (r Report) Committed() bool {
	return r.ImageID > 0
}

// GroupSummary totals the reports of one group
type GroupSummary struct {
	Group       string
	Images      int
	Failed      int
	Annotations int
	Rejected    int
	ModelErrors int
	// Expected is the total annotation count of images with metadata
	Expected int
	// ProducedForExpected is the annotation count of those same images
	ProducedForExpected int
}

// Summary totals a batch run
type Summary struct {
	Groups  []GroupSummary
	Reports []Report
}

// Images returns the number of images committed across all groups
func (s Summary) Images() int {
	n := 0

	for _, g := range s.Groups {
		n += g.Images
	}

	return n
}

// Failed returns the number of images skipped across all groups
func (s Summary) Failed() int {
	n := 0

	for _, g := range s.Groups {
		n += g.Failed
	}

	return n
}

// Annotations returns the number of annotations across all groups
func (s Summary) Annotations() int {
	n := 0

	for _, g := range s.Groups {
		n += g.Annotations
	}

	return n
}

// summarise totals reports by group in the order the groups are given
func summarise(groups []string, reports []Report) Summary {

	index := make(map[string]int, len(groups))
	s := Summary{
		Groups:  make([]GroupSummary, len(groups)),
		Reports: reports,
	}

	for i, g := range groups {
		index[g] = i
		s.Groups[i].Group = g
	}

	for _, r := range reports {
		i, ok := index[r.Group]

		if !ok {
			continue
		}

		g := &s.Groups[i]

		if !r.Committed() {
			g.Failed++
			continue
		}

		g.Images++
		g.Annotations += r.Annotations
		g.Rejected += r.Rejected
		g.ModelErrors += r.ModelErrors

		if r.Expected >= 0 {
			g.Expected += r.Expected
			g.ProducedForExpected += r.Annotations
		}
	}

	return s
}
