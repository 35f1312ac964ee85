/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package rig is a headless stand-in for the rendered character: it tracks
// where the character stands, where it looks, and which clips are playing,
// without drawing anything.
package rig

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed clips.yaml
var defaultManifest []byte

// Clip describes one animation baked into the character asset.
type Clip struct {
	Name     string  `yaml:"name"`
	Duration float64 `yaml:"duration"`
}

type manifest struct {
	Clips []Clip `yaml:"clips"`
}

// Library is the set of clips a character can play, keyed by exact name.
type Library struct {
	clips map[string]Clip
}

// LoadLibrary reads a YAML clip manifest.
func LoadLibrary(r io.Reader) (*Library, error) {
	var m manifest

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("clip manifest is empty")
		}
		return nil, fmt.Errorf("decode clip manifest: %w", err)
	}

	lib := &Library{clips: make(map[string]Clip, len(m.Clips))}

	for i, c := range m.Clips {
		switch {
		case c.Name == "":
			return nil, fmt.Errorf("clip %d: missing name", i)
		case c.Duration <= 0:
			return nil, fmt.Errorf("clip %q: duration must be positive", c.Name)
		}

		if _, dup := lib.clips[c.Name]; dup {
			return nil, fmt.Errorf("clip %q listed twice", c.Name)
		}

		lib.clips[c.Name] = c
	}

	return lib, nil
}

// LoadLibraryFile reads a manifest from path, or the built-in BuddyDroid
// manifest when path is empty.
func LoadLibraryFile(path string) (*Library, error) {
	if path == "" {
		return DefaultLibrary(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return LoadLibrary(f)
}

func DefaultLibrary() *Library {
	lib, err := LoadLibrary(bytes.NewReader(defaultManifest))
	if err != nil {
		panic("rig: built-in clip manifest: " + err.Error())
	}

	return lib
}

func (l *Library) Clip(name string) (Clip, bool) {
	c, ok := l.clips[name]

	return c, ok
}

func (l *Library) Names() []string {
	names := make([]string, 0, len(l.clips))
	for name := range l.clips {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}
