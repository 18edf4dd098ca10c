// Command blockcachebench wires a config file, a directory-backed backend,
// and a blockcache.Cache together and runs a small scripted workload,
// printing the block count, hits, misses and hit ratio. It does not report
// write-coalescing statistics.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zhukovaskychina/xblockcache/backend"
	"github.com/zhukovaskychina/xblockcache/blockcache"
	"github.com/zhukovaskychina/xblockcache/config"
	"github.com/zhukovaskychina/xblockcache/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a blockcache INI config file (optional)")
	blocks := flag.Int("blocks", 64, "number of distinct blocks to write in the workload")
	flag.Parse()

	logger.InitLogger(logger.LogConfig{LogLevel: "info"})

	settings := &config.Settings{
		NBlock:     config.DefaultNBlock,
		BlockSize:  config.DefaultBlockSize,
		FlushUnit:  config.DefaultFlushUnit,
		BackendDir: os.TempDir(),
	}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
		settings = loaded
	}

	cache, err := blockcache.New(settings.CacheConfig())
	if err != nil {
		logger.Fatalf("construct cache: %v", err)
	}
	defer cache.Shutdown()

	fh := backend.NewFileHandle(filepath.Join(settings.BackendDir, "blockcachebench.db"),
		int64(*blocks)*int64(settings.BlockSize))
	defer fh.Close()

	runWorkload(cache, fh, settings.BlockSize, *blocks)
}

func runWorkload(cache *blockcache.Cache, fh *backend.FileHandle, blockSize, blocks int) {
	payload := make([]byte, blockSize)
	for i := 0; i < blocks; i++ {
		for j := range payload {
			payload[j] = byte(i)
		}
		cache.Write(fh, blockcache.BlockID(i), payload, blockcache.Dirty)
	}

	// Re-read every other block to generate some cache hits before flushing.
	out := make([]byte, blockSize)
	for i := 0; i < blocks; i += 2 {
		cache.Read(fh, blockcache.BlockID(i), out)
	}

	cache.Flush(fh)

	hits, misses := cache.Stats()
	fmt.Printf("blocks=%d hits=%d misses=%d hit_ratio=%.2f\n",
		blocks, hits, misses, float64(hits)/float64(hits+misses))
}
