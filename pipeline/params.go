package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	soilfauna "github.com/soilfauna/go-soilfauna"
	"github.com/soilfauna/go-soilfauna/postprocess"
	"github.com/soilfauna/go-soilfauna/preprocess"
)

// Params holds the pipeline configuration
type Params struct {
	Cluster  ClusterConfig `json:"cluster"`
	Tiling   TilingConfig  `json:"tiling"`
	Centers  CenterConfig  `json:"centers"`
	Contours ContourConfig `json:"contours"`
	Dataset  DatasetConfig `json:"dataset"`
	Model    ModelConfig   `json:"model"`
	Output   OutputConfig  `json:"output"`
}

// ClusterConfig holds configuration for background suppression
type ClusterConfig struct {
	K                   int          `json:"k"`
	Centers             [][3]float64 `json:"centers"`
	PrimaryBackground   int          `json:"primary_background"`
	SecondaryBackground int          `json:"secondary_background"`
	BackgroundRatio     float64      `json:"background_ratio"`
	MaxIterations       int          `json:"max_iterations"`
	Tolerance           float64      `json:"tolerance"`
}

// TilingConfig holds configuration for splitting images into tiles
type TilingConfig struct {
	Rows    int `json:"rows"`
	Cols    int `json:"cols"`
	Padding int `json:"padding"`
}

// CenterConfig holds configuration for candidate center detection
type CenterConfig struct {
	PeakThreshold float32 `json:"peak_threshold"`
}

// ContourConfig holds configuration for contour extraction and labelling
type ContourConfig struct {
	Approximation string `json:"approximation"`
	Category      string `json:"category"`
}

// DatasetConfig holds configuration for locating input files
type DatasetConfig struct {
	ImageDir       string `json:"image_dir"`
	MetadataDir    string `json:"metadata_dir"`
	MetadataSuffix string `json:"metadata_suffix"`
}

// ModelConfig holds configuration for the segmentation model
type ModelConfig struct {
	EncoderFile string `json:"encoder_file"`
	DecoderFile string `json:"decoder_file"`
	PoolSize    int    `json:"pool_size"`
	Backend     string `json:"backend"`
	Target      string `json:"target"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Dir          string `json:"dir"`
	Overlays     bool   `json:"overlays"`
	ReviewDir    string `json:"review_dir"`
	PreviewWidth int    `json:"preview_width"`
}

// DefaultParams returns a configuration with default values
func DefaultParams() *Params {

	cluster := preprocess.SoilFaunaClusterParams()
	sam := soilfauna.DefaultSAMParams()

	return &Params{
		Cluster: ClusterConfig{
			K:                   cluster.K,
			Centers:             cluster.Centers,
			PrimaryBackground:   cluster.PrimaryBackground,
			SecondaryBackground: cluster.SecondaryBackground,
			BackgroundRatio:     cluster.BackgroundRatio,
			MaxIterations:       cluster.MaxIterations,
			Tolerance:           cluster.Tolerance,
		},
		Tiling: TilingConfig{
			Rows:    5,
			Cols:    5,
			Padding: 10,
		},
		Centers: CenterConfig{
			PeakThreshold: preprocess.DefaultCenterParams().PeakThreshold,
		},
		Contours: ContourConfig{
			Approximation: "tc89_l1",
			Category:      postprocess.DefaultCategory,
		},
		Dataset: DatasetConfig{
			ImageDir:       "../data/images",
			MetadataSuffix: "_no_bkgd",
		},
		Model: ModelConfig{
			EncoderFile: "../data/sam_vit_b_encoder.onnx",
			DecoderFile: "../data/sam_vit_b_decoder.onnx",
			PoolSize:    1,
			Backend:     sam.Backend,
			Target:      sam.Target,
		},
		Output: OutputConfig{
			Dir:          "./out/annotations",
			Overlays:     false,
			ReviewDir:    "./out/review",
			PreviewWidth: 1280,
		},
	}
}

// LoadParams loads configuration from a JSON file.  Values missing from the
// file keep their defaults
func LoadParams(filename string) (*Params, error) {

	data, err := os.ReadFile(filename)

	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	p := DefaultParams()

	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return p, nil
}

// Save writes the configuration to a JSON file
func (p *Params) Save(filename string) error {

	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (p *Params) Validate() error {

	if err := p.ClusterParams().Validate(); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}

	if p.Tiling.Rows < 1 || p.Tiling.Cols < 1 {
		return fmt.Errorf("tiling.rows and tiling.cols must be at least 1")
	}

	if p.Tiling.Padding < 0 {
		return fmt.Errorf("tiling.padding must not be negative")
	}

	if p.Centers.PeakThreshold < 0 || p.Centers.PeakThreshold > 1 {
		return fmt.Errorf("centers.peak_threshold must be between 0 and 1")
	}

	if _, err := postprocess.ParseApproximation(p.Contours.Approximation); err != nil {
		return fmt.Errorf("contours.approximation: %w", err)
	}

	if p.Contours.Category == "" {
		return fmt.Errorf("contours.category cannot be empty")
	}

	if p.Model.PoolSize < 1 {
		return fmt.Errorf("model.pool_size must be at least 1")
	}

	if p.Output.PreviewWidth < 0 {
		return fmt.Errorf("output.preview_width must not be negative")
	}

	return nil
}

// ClusterParams returns the background suppression parameters
func (p *Params) ClusterParams() preprocess.ClusterParams {
	return preprocess.ClusterParams{
		K:                   p.Cluster.K,
		Centers:             p.Cluster.Centers,
		PrimaryBackground:   p.Cluster.PrimaryBackground,
		SecondaryBackground: p.Cluster.SecondaryBackground,
		BackgroundRatio:     p.Cluster.BackgroundRatio,
		MaxIterations:       p.Cluster.MaxIterations,
		Tolerance:           p.Cluster.Tolerance,
	}
}

// CenterParams returns the center finding parameters
func (p *Params) CenterParams() preprocess.CenterParams {
	return preprocess.CenterParams{
		PeakThreshold: p.Centers.PeakThreshold,
	}
}

// SAMParams returns the segmentation model parameters
func (p *Params) SAMParams() soilfauna.SAMParams {
	sam := soilfauna.DefaultSAMParams()
	sam.EncoderFile = p.Model.EncoderFile
	sam.DecoderFile = p.Model.DecoderFile
	sam.Backend = p.Model.Backend
	sam.Target = p.Model.Target

	return sam
}
