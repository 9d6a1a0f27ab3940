// Package genesis classifies a community's founding phase from an external
// state snapshot and recommends next actions.
package genesis

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoSnapshot is returned when no usable snapshot is available.
var ErrNoSnapshot = errors.New("no state snapshot")

//go:embed snapshot.schema.json
var snapshotSchemaJSON string

const snapshotSchemaURL = "https://evosim.local/schemas/snapshot.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func snapshotSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(snapshotSchemaURL, strings.NewReader(snapshotSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("adding snapshot schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(snapshotSchemaURL)
	})
	return schema, schemaErr
}

// Genesis holds the founding counters of a community.
type Genesis struct {
	Members  int  `json:"members"`
	Rules    int  `json:"rules"`
	Stuff    int  `json:"stuff"`
	Complete bool `json:"complete"`
}

// Snapshot is the community state reported by an external source.
type Snapshot struct {
	Genesis Genesis `json:"genesis"`
}

// ParseSnapshot decodes and validates a JSON snapshot. Missing counters
// default to zero. Any failure wraps ErrNoSnapshot.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding: %v", ErrNoSnapshot, err)
	}

	sch, err := snapshotSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSnapshot, err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: decoding: %v", ErrNoSnapshot, err)
	}
	return &s, nil
}
