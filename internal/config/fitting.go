// Package config loads and validates the JSON fit configuration. Fields use
// pointers so a partial file falls back to defaults, and the raw file text
// is retained verbatim for the audit copy persisted with each session.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amisr-data/ionofit/internal/iono/regularize"
)

// FitConfig is the root configuration for a fitting session.
type FitConfig struct {
	// Param names the physical parameter being fit, e.g. "dens" or "Te".
	Param *string `json:"param,omitempty"`
	// Method selects the regularization-parameter strategy:
	// chi2, gcv, manual, or prompt.
	Method *string `json:"method,omitempty"`
	// RegKinds lists the regularization penalties to apply.
	RegKinds []string `json:"reg_kinds,omitempty"`
	// ManualParams gives the fixed per-kind strengths for the manual method.
	ManualParams map[string]float64 `json:"manual_params,omitempty"`

	// Basis order parameters.
	MaxK      *int     `json:"maxk,omitempty"`
	MaxL      *int     `json:"maxl,omitempty"`
	CapLimDeg *float64 `json:"cap_lim_deg,omitempty"`
	ZMax      *float64 `json:"zmax,omitempty"`

	// Upstream quality acceptance windows.
	ErrLim       []float64 `json:"errlim,omitempty"`
	Chi2Lim      []float64 `json:"chi2lim,omitempty"`
	GoodFitCodes []int     `json:"goodfitcode,omitempty"`

	// OutputPath is the coefficient file written by the session.
	OutputPath *string `json:"output_path,omitempty"`

	name string
	path string
	text string
}

// Load reads a FitConfig from a JSON file. The file must carry a .json
// extension and stay under 1MB; omitted fields retain their defaults, so
// partial configs are safe.
func Load(path string) (*FitConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &FitConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	cfg.name = filepath.Base(cleanPath)
	cfg.path = cleanPath
	cfg.text = string(data)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Name, Path, and Text identify the loaded file and its verbatim contents
// for the session audit copy.
func (c *FitConfig) Name() string { return c.name }
func (c *FitConfig) Path() string { return c.path }
func (c *FitConfig) Text() string { return c.text }

// Validate checks that the configuration values are valid.
func (c *FitConfig) Validate() error {
	switch m := c.GetMethod(); m {
	case "chi2", "gcv", "manual", "prompt":
	default:
		return fmt.Errorf("method must be one of chi2, gcv, manual, prompt; got %q", m)
	}

	if _, err := c.Kinds(); err != nil {
		return err
	}

	if c.MaxK != nil && *c.MaxK < 1 {
		return fmt.Errorf("maxk must be at least 1, got %d", *c.MaxK)
	}
	if c.MaxL != nil && *c.MaxL < 1 {
		return fmt.Errorf("maxl must be at least 1, got %d", *c.MaxL)
	}
	if c.CapLimDeg != nil && (*c.CapLimDeg <= 0 || *c.CapLimDeg > 90) {
		return fmt.Errorf("cap_lim_deg must be in (0, 90], got %g", *c.CapLimDeg)
	}
	if c.ZMax != nil && *c.ZMax <= 0 {
		return fmt.Errorf("zmax must be positive, got %g", *c.ZMax)
	}

	if err := validLim("errlim", c.ErrLim); err != nil {
		return err
	}
	if err := validLim("chi2lim", c.Chi2Lim); err != nil {
		return err
	}

	if c.GetMethod() == "manual" {
		kinds, _ := c.Kinds()
		for _, k := range kinds {
			if _, ok := c.ManualParams[string(k)]; !ok {
				return fmt.Errorf("manual method needs manual_params entry for kind %s", k)
			}
		}
	}
	return nil
}

func validLim(name string, lim []float64) error {
	if lim == nil {
		return nil
	}
	if len(lim) != 2 {
		return fmt.Errorf("%s must have exactly 2 entries, got %d", name, len(lim))
	}
	if lim[0] >= lim[1] {
		return fmt.Errorf("%s lower bound %g is not below upper bound %g", name, lim[0], lim[1])
	}
	return nil
}

// Kinds parses the configured regularization kind names, accepting the
// spellings used by older config files.
func (c *FitConfig) Kinds() ([]regularize.Kind, error) {
	names := c.RegKinds
	if names == nil {
		names = []string{"curvature"}
	}
	kinds := make([]regularize.Kind, 0, len(names))
	for _, n := range names {
		k, err := regularize.ParseKind(n)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// Manual returns the per-kind constants for the manual method.
func (c *FitConfig) Manual() map[regularize.Kind]float64 {
	out := make(map[regularize.Kind]float64, len(c.ManualParams))
	for name, v := range c.ManualParams {
		k, err := regularize.ParseKind(name)
		if err != nil {
			continue
		}
		out[k] = v
	}
	return out
}

// GetParam returns the param value or the default.
func (c *FitConfig) GetParam() string {
	if c.Param == nil {
		return "dens"
	}
	return *c.Param
}

// GetMethod returns the method value or the default.
func (c *FitConfig) GetMethod() string {
	if c.Method == nil {
		return "chi2"
	}
	return *c.Method
}

// GetMaxK returns the maxk value or the default.
func (c *FitConfig) GetMaxK() int {
	if c.MaxK == nil {
		return 4
	}
	return *c.MaxK
}

// GetMaxL returns the maxl value or the default.
func (c *FitConfig) GetMaxL() int {
	if c.MaxL == nil {
		return 6
	}
	return *c.MaxL
}

// GetCapLimDeg returns the cap_lim_deg value or the default.
func (c *FitConfig) GetCapLimDeg() float64 {
	if c.CapLimDeg == nil {
		return 6
	}
	return *c.CapLimDeg
}

// GetZMax returns the zmax value or the default.
func (c *FitConfig) GetZMax() float64 {
	if c.ZMax == nil {
		return 10
	}
	return *c.ZMax
}

// GetErrLim returns the errlim window or the default for electron density.
func (c *FitConfig) GetErrLim() [2]float64 {
	if c.ErrLim == nil {
		return [2]float64{1e10, 1e13}
	}
	return [2]float64{c.ErrLim[0], c.ErrLim[1]}
}

// GetChi2Lim returns the chi2lim window or the default.
func (c *FitConfig) GetChi2Lim() [2]float64 {
	if c.Chi2Lim == nil {
		return [2]float64{0.1, 10}
	}
	return [2]float64{c.Chi2Lim[0], c.Chi2Lim[1]}
}

// GetGoodFitCodes returns the accepted upstream fitter exit codes.
func (c *FitConfig) GetGoodFitCodes() []int {
	if c.GoodFitCodes == nil {
		return []int{1, 2, 3, 4}
	}
	return c.GoodFitCodes
}

// GetOutputPath returns the coefficient file path or the default.
func (c *FitConfig) GetOutputPath() string {
	if c.OutputPath == nil {
		return "ionofit.db"
	}
	return *c.OutputPath
}
