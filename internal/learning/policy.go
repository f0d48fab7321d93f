package learning

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"
)

const policyVersion = 1

// Policy is the persisted form of a trained table.
type Policy struct {
	Version     int         `json:"version"`
	Initial     float64     `json:"initial"`
	Discretizer Discretizer `json:"discretizer"`
	Entries     []Entry     `json:"entries"`
}

// SavePolicy writes table as snappy-framed JSON.
func SavePolicy(w io.Writer, table *QTable, d Discretizer) error {
	table.mu.RLock()
	initial := table.initial
	table.mu.RUnlock()

	sw := snappy.NewBufferedWriter(w)
	p := Policy{
		Version:     policyVersion,
		Initial:     initial,
		Discretizer: d.normalized(),
		Entries:     table.Entries(),
	}
	if err := json.NewEncoder(sw).Encode(p); err != nil {
		sw.Close()
		return fmt.Errorf("encode policy: %w", err)
	}
	return sw.Close()
}

// LoadPolicy reads a policy written by SavePolicy. maxStates caps the
// returned table the same way NewQTable does.
func LoadPolicy(r io.Reader, maxStates int) (*QTable, Discretizer, error) {
	var p Policy
	if err := json.NewDecoder(snappy.NewReader(r)).Decode(&p); err != nil {
		return nil, Discretizer{}, fmt.Errorf("decode policy: %w", err)
	}
	if p.Version != policyVersion {
		return nil, Discretizer{}, fmt.Errorf("unsupported policy version %d", p.Version)
	}

	table := NewQTable(p.Initial, maxStates)
	for _, e := range p.Entries {
		if maxStates > 0 && len(table.values) >= maxStates {
			table.dropped++
			continue
		}
		v := e.Values
		table.values[e.State] = &v
	}
	return table, p.Discretizer.normalized(), nil
}

// SavePolicyFile writes the policy to path, replacing any existing file.
func SavePolicyFile(path string, table *QTable, d Discretizer) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return SavePolicy(f, table, d)
}

// LoadPolicyFile reads a policy from path.
func LoadPolicyFile(path string, maxStates int) (*QTable, Discretizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Discretizer{}, err
	}
	defer f.Close()
	return LoadPolicy(f, maxStates)
}
