// Package fileloader reads the scan control policy from a yaml file.
package fileloader

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/scand/internal/config"
	"github.com/ahrav/scand/internal/domain/wifi"
)

var _ config.Loader = (*FileLoader)(nil)

// Document is the on-disk policy layout.
//
//	forbid:
//	  - scene: connected
//	    mode: pno
//	interval:
//	  - scene: all
//	    mode: app_foreground
//	    single: true
//	    interval_mode: fixed
//	    interval: 120s
//	    count: 4
//	trust_scenes: [custom_1]
type Document struct {
	Forbid      []ForbidRule   `yaml:"forbid" validate:"dive"`
	Interval    []IntervalRule `yaml:"interval" validate:"dive"`
	TrustScenes []string       `yaml:"trust_scenes"`
}

// ForbidRule mirrors wifi.ScanForbidMode.
type ForbidRule struct {
	Scene       string `yaml:"scene" validate:"required"`
	Mode        string `yaml:"mode" validate:"required"`
	ForbidTime  string `yaml:"forbid_time"`
	ForbidCount int    `yaml:"forbid_count" validate:"gte=0"`
}

// IntervalRule mirrors wifi.ScanIntervalMode.
type IntervalRule struct {
	Scene        string `yaml:"scene" validate:"required"`
	Mode         string `yaml:"mode" validate:"required"`
	Single       bool   `yaml:"single"`
	IntervalMode string `yaml:"interval_mode" validate:"required"`
	Interval     string `yaml:"interval" validate:"required"`
	Count        int    `yaml:"count" validate:"gte=0"`
}

var validate = validator.New()

// FileLoader loads the scan control policy from a file on disk.
type FileLoader struct {
	path string
}

// NewFileLoader creates a FileLoader for path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads and converts the policy file.
func (l *FileLoader) Load(ctx context.Context) (wifi.ScanControlInfo, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return wifi.ScanControlInfo{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return Parse(data)
}

// Parse converts a yaml policy document. Every rule error wraps
// wifi.ErrInvalidControlInfo.
func Parse(data []byte) (wifi.ScanControlInfo, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return wifi.ScanControlInfo{}, fmt.Errorf("%w: failed to parse policy: %v", wifi.ErrInvalidControlInfo, err)
	}
	if err := validate.Struct(doc); err != nil {
		return wifi.ScanControlInfo{}, fmt.Errorf("%w: %v", wifi.ErrInvalidControlInfo, err)
	}
	return doc.ControlInfo()
}

// ControlInfo converts the document into domain rules.
func (d Document) ControlInfo() (wifi.ScanControlInfo, error) {
	var info wifi.ScanControlInfo

	for i, r := range d.Forbid {
		rule, err := r.toDomain()
		if err != nil {
			return wifi.ScanControlInfo{}, fmt.Errorf("forbid rule %d: %w", i, err)
		}
		info.ForbidList = append(info.ForbidList, rule)
	}

	for i, r := range d.Interval {
		rule, err := r.toDomain()
		if err != nil {
			return wifi.ScanControlInfo{}, fmt.Errorf("interval rule %d: %w", i, err)
		}
		info.IntervalList = append(info.IntervalList, rule)
	}

	for _, s := range d.TrustScenes {
		scene, err := wifi.ParseScanScene(s)
		if err != nil {
			return wifi.ScanControlInfo{}, fmt.Errorf("trust scene: %w", err)
		}
		info.TrustSceneIDs = append(info.TrustSceneIDs, scene)
	}

	return info, nil
}

func (r ForbidRule) toDomain() (wifi.ScanForbidMode, error) {
	scene, err := wifi.ParseScanScene(r.Scene)
	if err != nil {
		return wifi.ScanForbidMode{}, err
	}
	mode, err := wifi.ParseScanMode(r.Mode)
	if err != nil {
		return wifi.ScanForbidMode{}, err
	}
	var window time.Duration
	if r.ForbidTime != "" {
		if window, err = parseDuration(r.ForbidTime); err != nil {
			return wifi.ScanForbidMode{}, err
		}
	}
	return wifi.ScanForbidMode{Scene: scene, Mode: mode, ForbidTime: window, ForbidCount: r.ForbidCount}, nil
}

func (r IntervalRule) toDomain() (wifi.ScanIntervalMode, error) {
	scene, err := wifi.ParseScanScene(r.Scene)
	if err != nil {
		return wifi.ScanIntervalMode{}, err
	}
	mode, err := wifi.ParseScanMode(r.Mode)
	if err != nil {
		return wifi.ScanIntervalMode{}, err
	}
	im, err := wifi.ParseIntervalMode(r.IntervalMode)
	if err != nil {
		return wifi.ScanIntervalMode{}, err
	}
	interval, err := parseDuration(r.Interval)
	if err != nil {
		return wifi.ScanIntervalMode{}, err
	}
	if interval <= 0 {
		return wifi.ScanIntervalMode{}, fmt.Errorf("%w: interval must be positive", wifi.ErrInvalidControlInfo)
	}
	return wifi.ScanIntervalMode{
		Scene:        scene,
		Mode:         mode,
		IsSingle:     r.Single,
		IntervalMode: im,
		Interval:     interval,
		Count:        r.Count,
	}, nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", wifi.ErrInvalidControlInfo, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: negative duration %q", wifi.ErrInvalidControlInfo, s)
	}
	return d, nil
}
