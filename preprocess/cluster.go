package preprocess

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientData is returned when an image has fewer pixels than the
// number of clusters requested
var ErrInsufficientData = errors.New("insufficient pixel data for clustering")

// ClusterParams defines the parameters used for background suppression by
// color clustering
type ClusterParams struct {
	// K is the number of color clusters
	K int
	// Centers are the fixed initial centroids for each cluster in RGB order.
	// Cluster IDs are the index into this slice
	Centers [][3]float64
	// PrimaryBackground is the cluster ID that is always removed
	PrimaryBackground int
	// SecondaryBackground is the cluster ID that is removed as well unless
	// the primary and secondary clusters together make up at least
	// BackgroundRatio of the image
	SecondaryBackground int
	// BackgroundRatio is the share of pixels, from 0.0 to 1.0, that the
	// primary and secondary clusters must reach for only the primary cluster
	// to be removed
	BackgroundRatio float64
	// MaxIterations caps the number of k-means refinement steps
	MaxIterations int
	// Tolerance is the relative centroid shift below which k-means is
	// considered converged
	Tolerance float64
}

// SoilFaunaClusterParams returns an instance of ClusterParams configured with
// default values tuned for soil fauna macro photographs on a blue tray
// featuring:
// - Clusters: 5
// - Primary Background: 0
// - Secondary Background: 4
// - Background Ratio: 1.0
// - Max Iterations: 300
// - Tolerance: 1e-4
func SoilFaunaClusterParams() ClusterParams {
	return ClusterParams{
		K: 5,
		Centers: [][3]float64{
			{79.49, 130.62, 189.84},
			{131.84, 107.86, 76.36},
			{178.59, 173.83, 159.51},
			{47.20, 28.64, 18.90},
			{114.45, 146.57, 187.97},
		},
		PrimaryBackground:   0,
		SecondaryBackground: 4,
		BackgroundRatio:     1.0,
		MaxIterations:       300,
		Tolerance:           1e-4,
	}
}

// Validate checks the parameters are consistent
func (p ClusterParams) Validate() error {
	if p.K < 1 {
		return fmt.Errorf("cluster count must be positive, got %d", p.K)
	}

	if len(p.Centers) != p.K {
		return fmt.Errorf("expected %d initial centers, got %d", p.K, len(p.Centers))
	}

	if p.PrimaryBackground < 0 || p.PrimaryBackground >= p.K {
		return fmt.Errorf("primary background cluster %d out of range", p.PrimaryBackground)
	}

	if p.SecondaryBackground < 0 || p.SecondaryBackground >= p.K {
		return fmt.Errorf("secondary background cluster %d out of range", p.SecondaryBackground)
	}

	if p.BackgroundRatio < 0 {
		return fmt.Errorf("background ratio must not be negative")
	}

	if p.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be positive")
	}

	return nil
}

// Clustering is the result of running k-means over an image's pixels
type Clustering struct {
	// Labels holds the cluster ID of every pixel in row-major order
	Labels []uint8
	// Centers are the final centroids in RGB order
	Centers [][3]float64
	// Counts is the number of pixels assigned to each cluster
	Counts []int
	// Total is the number of pixels clustered
	Total int
	// Iterations is the number of refinement steps run
	Iterations int
}

// Share returns the fraction of pixels assigned to the given cluster
func (c Clustering) Share(id int) float64 {
	if c.Total == 0 || id < 0 || id >= len(c.Counts) {
		return 0
	}

	return float64(c.Counts[id]) / float64(c.Total)
}

// BackgroundSuppressor whites out the pixels of background color clusters
type BackgroundSuppressor struct {
	Params ClusterParams
}

// NewBackgroundSuppressor returns an instance of the background suppressor
func NewBackgroundSuppressor(p ClusterParams) (*BackgroundSuppressor, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster params: %w", err)
	}

	return &BackgroundSuppressor{Params: p}, nil
}

// palette holds the unique colors of an image and the number of pixels of
// each, so k-means runs over distinct colors weighted by their frequency
// rather than over every pixel
type palette struct {
	keys    []uint32
	colors  [][]float64
	weights []float64
	index   map[uint32]int
}

// newPalette builds the palette of a packed RGB byte buffer
func newPalette(rgb []byte) *palette {
	counts := make(map[uint32]int)

	for i := 0; i+2 < len(rgb); i += 3 {
		counts[packRGB(rgb[i], rgb[i+1], rgb[i+2])]++
	}

	p := &palette{
		keys:    make([]uint32, 0, len(counts)),
		colors:  make([][]float64, len(counts)),
		weights: make([]float64, len(counts)),
		index:   make(map[uint32]int, len(counts)),
	}

	for k := range counts {
		p.keys = append(p.keys, k)
	}

	// map iteration is random, sort so results are reproducible
	sort.Slice(p.keys, func(i, j int) bool {
		return p.keys[i] < p.keys[j]
	})

	for i, k := range p.keys {
		p.colors[i] = []float64{float64(k >> 16 & 0xff), float64(k >> 8 & 0xff), float64(k & 0xff)}
		p.weights[i] = float64(counts[k])
		p.index[k] = i
	}

	return p
}

// packRGB packs a color into a single key
func packRGB(r, g, b uint8) uint32 {
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

// tolerance scales the relative tolerance by the mean per channel variance
// of the data, so convergence does not depend on the color range
func (p *palette) tolerance(tol float64) float64 {
	channel := make([]float64, len(p.colors))
	var sum float64

	for c := 0; c < 3; c++ {
		for i, col := range p.colors {
			channel[i] = col[c]
		}

		if len(channel) > 1 {
			sum += stat.PopVariance(channel, p.weights)
		}
	}

	return sum / 3 * tol
}

// assign labels every palette color with its nearest center, ties go to the
// lowest cluster ID.  Returns the number of labels that changed
func assign(p *palette, centers [][]float64, labels []int) int {
	changed := 0

	for i, col := range p.colors {
		best := 0
		bestDist := floats.Distance(col, centers[0], 2)

		for k := 1; k < len(centers); k++ {
			d := floats.Distance(col, centers[k], 2)

			if d < bestDist {
				best = k
				bestDist = d
			}
		}

		if labels[i] != best {
			labels[i] = best
			changed++
		}
	}

	return changed
}

// update recomputes each centroid as the weighted mean of its colors.  A
// cluster with no members keeps its previous centroid.  Returns the total
// squared centroid shift
func update(p *palette, centers [][]float64, labels []int) float64 {
	k := len(centers)
	sums := make([][]float64, k)
	weights := make([]float64, k)

	for c := range sums {
		sums[c] = make([]float64, 3)
	}

	for i, col := range p.colors {
		floats.AddScaled(sums[labels[i]], p.weights[i], col)
		weights[labels[i]] += p.weights[i]
	}

	shift := 0.0

	for c := 0; c < k; c++ {
		if weights[c] == 0 {
			continue
		}

		floats.Scale(1/weights[c], sums[c])
		d := floats.Distance(sums[c], centers[c], 2)
		shift += d * d
		copy(centers[c], sums[c])
	}

	return shift
}

// Cluster runs k-means over the pixels of the BGR source image starting from
// the fixed initial centers, so the same image always yields the same labels
func (b *BackgroundSuppressor) Cluster(src gocv.Mat) (Clustering, error) {

	total := src.Rows() * src.Cols()

	if src.Empty() || total < b.Params.K {
		return Clustering{}, fmt.Errorf("%w: %d pixels for %d clusters",
			ErrInsufficientData, total, b.Params.K)
	}

	// cluster in RGB to match the order of the initial centers
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(src, &rgb, gocv.ColorBGRToRGB)

	data := rgb.ToBytes()
	pal := newPalette(data)

	centers := make([][]float64, b.Params.K)

	for c := range centers {
		centers[c] = []float64{b.Params.Centers[c][0], b.Params.Centers[c][1], b.Params.Centers[c][2]}
	}

	labels := make([]int, len(pal.colors))

	for i := range labels {
		labels[i] = -1
	}

	tol := pal.tolerance(b.Params.Tolerance)
	iter := 0

	for iter < b.Params.MaxIterations {
		iter++

		changed := assign(pal, centers, labels)

		if changed == 0 && iter > 1 {
			break
		}

		if shift := update(pal, centers, labels); shift <= tol {
			// final assignment against the converged centers
			assign(pal, centers, labels)
			break
		}
	}

	res := Clustering{
		Labels:     make([]uint8, total),
		Centers:    make([][3]float64, b.Params.K),
		Counts:     make([]int, b.Params.K),
		Total:      total,
		Iterations: iter,
	}

	for c := range centers {
		res.Centers[c] = [3]float64{centers[c][0], centers[c][1], centers[c][2]}
	}

	for i := 0; i < total; i++ {
		key := packRGB(data[i*3], data[i*3+1], data[i*3+2])
		label := labels[pal.index[key]]
		res.Labels[i] = uint8(label)
		res.Counts[label]++
	}

	return res, nil
}

// BackgroundClusters returns the cluster IDs to remove.  If the primary and
// secondary background clusters together reach BackgroundRatio of the pixels
// only the primary is removed, otherwise both are
func (b *BackgroundSuppressor) BackgroundClusters(c Clustering) []int {

	primary := b.Params.PrimaryBackground
	secondary := b.Params.SecondaryBackground

	if primary == secondary {
		return []int{primary}
	}

	share := c.Share(primary) + c.Share(secondary)

	if share >= b.Params.BackgroundRatio {
		return []int{primary}
	}

	return []int{primary, secondary}
}

// Suppress returns a copy of the BGR source image with every pixel belonging
// to a background cluster replaced with pure white.  The caller must Close
// the returned Mat
func (b *BackgroundSuppressor) Suppress(src gocv.Mat) (gocv.Mat, []int, error) {

	clusters, err := b.Cluster(src)

	if err != nil {
		return gocv.NewMat(), nil, err
	}

	removed := b.BackgroundClusters(clusters)

	remove := make([]bool, b.Params.K)

	for _, id := range removed {
		remove[id] = true
	}

	if !src.IsContinuous() {
		src = src.Clone()
		defer src.Close()
	}

	// manipulate the bytes directly as per pixel access over CGO is too slow
	out := src.ToBytes()

	for i, label := range clusters.Labels {
		if remove[label] {
			out[i*3+0] = 255
			out[i*3+1] = 255
			out[i*3+2] = 255
		}
	}

	tmp, err := gocv.NewMatFromBytes(src.Rows(), src.Cols(), gocv.MatTypeCV8UC3, out)

	if err != nil {
		return gocv.NewMat(), nil, fmt.Errorf("error creating suppressed Mat: %w", err)
	}

	defer tmp.Close()

	// clone so the returned Mat owns its memory rather than the Go buffer
	res := tmp.Clone()
	runtime.KeepAlive(out)

	return res, removed, nil
}
