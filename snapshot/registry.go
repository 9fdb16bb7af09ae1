// Copyright 2026 The Traceplane Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/traceplane/traceplane/lib/codec"
)

// ErrOutputNotFound is returned when a named output is not registered.
var ErrOutputNotFound = errors.New("snapshot output not found")

// ErrDuplicateOutput is returned when an output name is already taken.
var ErrDuplicateOutput = errors.New("snapshot output name already registered")

// checksumLength is the size of the blake3 digest prefixed to the state
// file.
const checksumLength = 32

// Registry holds the validated snapshot outputs of a tracing session.
// Outputs are added after validation and treated as immutable while
// registered. The registry itself is safe for concurrent use; it can be
// persisted to a state file and reloaded across service restarts.
type Registry struct {
	mu      sync.Mutex
	outputs map[string]*Output
	nextID  uint32
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{outputs: make(map[string]*Output)}
}

// Add validates output and registers it, returning the effective name.
// An output with an empty name receives a generated one (snapshot-N).
// Names must be unique within the registry.
func (r *Registry) Add(output *Output) (string, error) {
	if err := output.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := output.Name
	if name == "" {
		for {
			name = fmt.Sprintf("snapshot-%d", r.nextID)
			r.nextID++
			if _, taken := r.outputs[name]; !taken {
				break
			}
		}
		output = &Output{Name: name, Destination: output.Destination, MaxSize: output.MaxSize}
	} else if _, taken := r.outputs[name]; taken {
		return "", fmt.Errorf("%w: %q", ErrDuplicateOutput, name)
	}

	r.outputs[name] = output
	return name, nil
}

// Remove deletes the named output.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.outputs[name]; !ok {
		return fmt.Errorf("%w: %q", ErrOutputNotFound, name)
	}
	delete(r.outputs, name)
	return nil
}

// Get returns the named output.
func (r *Registry) Get(name string) (*Output, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	output, ok := r.outputs[name]
	return output, ok
}

// List returns all registered outputs sorted by name.
func (r *Registry) List() []*Output {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []*Output {
	outputs := make([]*Output, 0, len(r.outputs))
	for _, output := range r.outputs {
		outputs = append(outputs, output)
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Name < outputs[j].Name })
	return outputs
}

// outputRecord is the CBOR form of one output in the state file. The
// destination sum is flattened into a kind tag plus the union of fields;
// load rebuilds the proper Destination value.
type outputRecord struct {
	Name        string `cbor:"name"`
	Kind        uint32 `cbor:"kind"`
	Path        string `cbor:"path,omitempty"`
	Host        string `cbor:"host,omitempty"`
	ControlPort uint16 `cbor:"control_port,omitempty"`
	DataPort    uint16 `cbor:"data_port,omitempty"`
	MaxSize     uint64 `cbor:"max_size"`
}

type registryState struct {
	Outputs []outputRecord `cbor:"outputs"`
	NextID  uint32         `cbor:"next_id"`
}

// Save writes the registry to path: a blake3 checksum followed by the
// CBOR-encoded state. The write goes through a temporary file and
// rename, so a crash never leaves a half-written state file behind.
func (r *Registry) Save(path string) error {
	r.mu.Lock()
	state := registryState{NextID: r.nextID}
	for _, output := range r.listLocked() {
		state.Outputs = append(state.Outputs, recordFromOutput(output))
	}
	r.mu.Unlock()

	encoded, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode registry state: %w", err)
	}
	digest := blake3.Sum256(encoded)

	file := make([]byte, 0, checksumLength+len(encoded))
	file = append(file, digest[:]...)
	file = append(file, encoded...)

	temporary := path + ".tmp"
	if err := os.WriteFile(temporary, file, 0o600); err != nil {
		return fmt.Errorf("write registry state: %w", err)
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("commit registry state: %w", err)
	}
	return nil
}

func recordFromOutput(output *Output) outputRecord {
	record := outputRecord{
		Name:    output.Name,
		Kind:    output.Destination.kind(),
		MaxSize: output.MaxSize,
	}
	switch destination := output.Destination.(type) {
	case LocalDestination:
		record.Path = destination.Path
	case NetworkDestination:
		record.Host = destination.Host
		record.ControlPort = destination.ControlPort
		record.DataPort = destination.DataPort
	}
	return record
}

// LoadRegistry reads a registry state file written by Save. The
// checksum is verified and every output revalidated; a file that fails
// either check loads nothing.
func LoadRegistry(path string) (*Registry, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry state: %w", err)
	}
	if len(file) < checksumLength {
		return nil, fmt.Errorf("registry state %s: too short for checksum", filepath.Base(path))
	}
	encoded := file[checksumLength:]
	digest := blake3.Sum256(encoded)
	if !bytes.Equal(digest[:], file[:checksumLength]) {
		return nil, fmt.Errorf("registry state %s: checksum mismatch", filepath.Base(path))
	}

	var state registryState
	if err := codec.Unmarshal(encoded, &state); err != nil {
		return nil, fmt.Errorf("decode registry state: %w", err)
	}

	registry := NewRegistry()
	registry.nextID = state.NextID
	for _, record := range state.Outputs {
		var destination Destination
		switch record.Kind {
		case destinationKindLocal:
			destination = LocalDestination{Path: record.Path}
		case destinationKindNetwork:
			destination = NetworkDestination{
				Host:        record.Host,
				ControlPort: record.ControlPort,
				DataPort:    record.DataPort,
			}
		default:
			return nil, fmt.Errorf("registry state: %w: destination kind %d", ErrInvalidOutput, record.Kind)
		}
		output, err := NewOutput(record.Name, destination, record.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("registry state: %w", err)
		}
		if output.Name == "" {
			return nil, fmt.Errorf("registry state: %w: unnamed output", ErrInvalidOutput)
		}
		registry.outputs[output.Name] = output
	}
	return registry, nil
}
