package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultParams(t *testing.T) {

	p := DefaultParams()

	if err := p.Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}

	if p.Tiling.Rows != 5 || p.Tiling.Cols != 5 || p.Tiling.Padding != 10 {
		t.Errorf("unexpected tiling defaults %+v", p.Tiling)
	}

	if p.Cluster.K != 5 || p.Cluster.BackgroundRatio != 1.0 {
		t.Errorf("unexpected cluster defaults %+v", p.Cluster)
	}

	if p.SAMParams().EncoderFile != p.Model.EncoderFile {
		t.Errorf("SAM params do not carry the encoder file")
	}
}

func TestParamsValidate(t *testing.T) {

	tests := []struct {
		name   string
		modify func(p *Params)
	}{
		{"rows", func(p *Params) { p.Tiling.Rows = 0 }},
		{"cols", func(p *Params) { p.Tiling.Cols = -1 }},
		{"padding", func(p *Params) { p.Tiling.Padding = -1 }},
		{"peak", func(p *Params) { p.Centers.PeakThreshold = 1.5 }},
		{"approximation", func(p *Params) { p.Contours.Approximation = "bezier" }},
		{"category", func(p *Params) { p.Contours.Category = "" }},
		{"clusters", func(p *Params) { p.Cluster.K = 3 }},
		{"background", func(p *Params) { p.Cluster.PrimaryBackground = 7 }},
		{"pool", func(p *Params) { p.Model.PoolSize = 0 }},
	}

	for _, tt := range tests {
		p := DefaultParams()
		tt.modify(p)

		if err := p.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestParamsSaveLoad(t *testing.T) {

	path := filepath.Join(t.TempDir(), "conf", "params.json")

	p := DefaultParams()
	p.Tiling.Rows = 3
	p.Contours.Category = "Acari"
	p.Cluster.BackgroundRatio = 0.8

	if err := p.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := LoadParams(path)

	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.Tiling.Rows != 3 || loaded.Contours.Category != "Acari" ||
		loaded.Cluster.BackgroundRatio != 0.8 {
		t.Errorf("loaded params differ: %+v", loaded)
	}

	if loaded.Cluster.Centers[3] != p.Cluster.Centers[3] {
		t.Errorf("centers not preserved")
	}
}

func TestLoadParamsPartial(t *testing.T) {

	path := filepath.Join(t.TempDir(), "params.json")

	if err := os.WriteFile(path, []byte(`{"tiling": {"rows": 2, "cols": 3}}`), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	p, err := LoadParams(path)

	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if p.Tiling.Rows != 2 || p.Tiling.Cols != 3 {
		t.Errorf("unexpected tiling %+v", p.Tiling)
	}

	// values missing from the file keep their defaults
	if p.Tiling.Padding != 10 || p.Contours.Category != DefaultParams().Contours.Category {
		t.Errorf("defaults not kept: %+v", p)
	}

	if err := os.WriteFile(path, []byte(`{not json`), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := LoadParams(path); err == nil {
		t.Errorf("expected error for invalid json")
	}

	if _, err := LoadParams(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Errorf("expected error for missing file")
	}
}
