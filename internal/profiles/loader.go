package profiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

type Loader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewLoader(searchPaths []string) (*Loader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &Loader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

func (l *Loader) Load(name string) (*Profile, error) {
	// Cache-Check
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*Profile), nil
	}

	var data []byte
	var err error
	var foundPath string

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, name+".json")
		data, err = os.ReadFile(fullPath)
		if err == nil {
			foundPath = fullPath
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("profile not found: %s (searched in: %v)", name, l.searchPaths)
	}

	if err := l.validator.ValidateProfile(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}

	l.cache.Store(name, &profile)

	return &profile, nil
}
