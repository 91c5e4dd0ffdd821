package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// File is a parsed config file together with its raw content.
type File[T any] struct {
	Path   string
	Data   []byte
	Config *T
}

// LoadGlobalConfigs reads every YAML file in dir as a GlobalConfig, sorted
// by start round.
func LoadGlobalConfigs(dir string) ([]File[GlobalConfig], error) {
	files, err := loadFolder[GlobalConfig](dir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := f.Config.Initialize(); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
	}
	return sortByStart(files, func(g *GlobalConfig) uint64 { return uint64(g.StartRoundID) })
}

// LoadVerifierRoutes reads every YAML file in dir as VerifierRoutes,
// sorted by start round.
func LoadVerifierRoutes(dir string) ([]File[VerifierRoutes], error) {
	files, err := loadFolder[VerifierRoutes](dir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := f.Config.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
	}
	return sortByStart(files, func(v *VerifierRoutes) uint64 { return uint64(v.StartRoundID) })
}

func loadFolder[T any](dir string) ([]File[T], error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read config folder: %w", err)
	}

	var files []File[T]
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		cfg := new(T)
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		files = append(files, File[T]{Path: path, Data: data, Config: cfg})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoConfig, dir)
	}
	return files, nil
}

func sortByStart[T any](files []File[T], start func(*T) uint64) ([]File[T], error) {
	slices.SortFunc(files, func(a, b File[T]) int {
		sa, sb := start(a.Config), start(b.Config)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	})
	for i := 1; i < len(files); i++ {
		if start(files[i].Config) == start(files[i-1].Config) {
			return nil, fmt.Errorf("%w: %s and %s", ErrDuplicateStart, files[i-1].Path, files[i].Path)
		}
	}
	return files, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
