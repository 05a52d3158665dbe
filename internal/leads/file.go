package leads

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a lead book.
//
// Example:
//
//	leads:
//	  - id: "1"
//	    address: 4521 Oak Grove Ave, Atlanta, GA
//	    price: 185000
//	    market_value: 310000
//	    status: ANALYZED
type File struct {
	Leads []Lead `yaml:"leads"`
}

// LoadFile reads a lead book YAML file and builds a [Book] from it.
func LoadFile(path string) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("leads: open %q: %w", path, err)
	}
	defer f.Close()

	b, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("leads: load %q: %w", path, err)
	}
	return b, nil
}

// LoadFromReader parses lead book YAML from r. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Book, error) {
	var lf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&lf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("leads: decode yaml: %w", err)
	}
	return NewBook(lf.Leads...)
}
