// Package config loads blockcache.Config from an INI file, following the
// teacher repository's own config-from-INI pattern (server/conf).
package config

import (
	"github.com/juju/errors"
	"gopkg.in/ini.v1"

	"github.com/zhukovaskychina/xblockcache/blockcache"
)

const section = "blockcache"

// Defaults mirror forestdb's own defaults: a 4096-byte block and a 16 block
// (64KB) flush unit.
const (
	DefaultBlockSize = 4096
	DefaultFlushUnit = 16 * DefaultBlockSize
	DefaultNBlock    = 1024
)

// Settings is the on-disk shape of a blockcache config file.
type Settings struct {
	NBlock     int
	BlockSize  int
	FlushUnit  int
	BackendDir string
	DirectIO   bool
}

// Load parses path into Settings, filling in defaults for any key absent
// from the [blockcache] section.
func Load(path string) (*Settings, error) {
	raw, err := ini.Load(path)
	if err != nil {
		return nil, errors.Annotatef(err, "load config %s", path)
	}

	sec := raw.Section(section)
	s := &Settings{
		NBlock:     sec.Key("nblock").MustInt(DefaultNBlock),
		BlockSize:  sec.Key("blocksize").MustInt(DefaultBlockSize),
		FlushUnit:  sec.Key("flush_unit").MustInt(DefaultFlushUnit),
		BackendDir: sec.Key("backend_dir").MustString("."),
		DirectIO:   sec.Key("direct_io").MustBool(false),
	}
	return s, s.Validate()
}

// Validate checks the invariants New requires: positive sizes, and
// blocksize large enough to hold the marker byte and checksum slot the
// cache's writeback path touches.
func (s *Settings) Validate() error {
	if s.NBlock <= 0 {
		return errors.Errorf("nblock must be positive, got %d", s.NBlock)
	}
	if s.BlockSize <= 0 {
		return errors.Errorf("blocksize must be positive, got %d", s.BlockSize)
	}
	if s.BlockSize < 16 {
		return errors.Errorf("blocksize must be at least 16 bytes, got %d", s.BlockSize)
	}
	if s.FlushUnit <= 0 {
		return errors.Errorf("flush_unit must be positive, got %d", s.FlushUnit)
	}
	return nil
}

// CacheConfig converts Settings into the blockcache.Config the cache
// constructor expects.
func (s *Settings) CacheConfig() blockcache.Config {
	return blockcache.Config{
		NBlock:      s.NBlock,
		BlockSize:   s.BlockSize,
		FlushUnit:   s.FlushUnit,
		AlignToPage: s.DirectIO,
	}
}
