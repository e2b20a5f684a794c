// Package cookiedb is a static reference of well-known cookies and how they
// are usually classified.
package cookiedb

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed cookies.yaml
var embedded []byte

// Entry describes one known cookie.
type Entry struct {
	ID              string `yaml:"id" json:"id"`
	Provider        string `yaml:"-" json:"provider"`
	Cookie          string `yaml:"cookie" json:"cookie"`
	Category        string `yaml:"category" json:"category"`
	Domain          string `yaml:"domain" json:"domain"`
	Description     string `yaml:"description" json:"description"`
	RetentionPeriod string `yaml:"retention_period" json:"retention_period"`
	DataController  string `yaml:"data_controller" json:"data_controller"`
	PrivacyLink     string `yaml:"privacy_link" json:"privacy_link"`
	WildcardMatch   bool   `yaml:"wildcard_match" json:"wildcard_match"`
}

type file struct {
	Providers []struct {
		Name    string  `yaml:"name"`
		Cookies []Entry `yaml:"cookies"`
	} `yaml:"providers"`
}

// Database is an ordered list of entries. The zero value matches nothing.
type Database struct {
	entries []Entry
}

// Parse reads a database in the embedded YAML layout.
func Parse(data []byte) (*Database, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cookie database: %w", err)
	}
	db := &Database{}
	for _, p := range f.Providers {
		for _, e := range p.Cookies {
			if strings.TrimSpace(e.Cookie) == "" {
				continue
			}
			e.Provider = p.Name
			db.entries = append(db.entries, e)
		}
	}
	return db, nil
}

var (
	defaultOnce sync.Once
	defaultDB   *Database
)

// Default returns the embedded database.
func Default() *Database {
	defaultOnce.Do(func() {
		db, err := Parse(embedded)
		if err != nil {
			panic(err) // embedded data is fixed at build time
		}
		defaultDB = db
	})
	return defaultDB
}

// Len returns the number of entries.
func (db *Database) Len() int {
	if db == nil {
		return 0
	}
	return len(db.entries)
}

// Lookup finds the first entry matching name case-insensitively: exactly, or
// as a prefix for wildcard entries.
func (db *Database) Lookup(name string) (Entry, bool) {
	if db == nil {
		return Entry{}, false
	}
	lower := strings.ToLower(name)
	for _, e := range db.entries {
		known := strings.ToLower(e.Cookie)
		if e.WildcardMatch {
			if strings.HasPrefix(lower, known) {
				return e, true
			}
		} else if lower == known {
			return e, true
		}
	}
	return Entry{}, false
}
