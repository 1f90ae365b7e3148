package datasets

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// graphCacheVersion is incremented when the on-disk graph cache format or
// the featurization scheme changes.
const graphCacheVersion = 1

// BuildGraphs featurizes every datapoint's SMILES using a worker pool.
// workers <= 0 uses NumCPU. The first featurization error aborts the build.
func BuildGraphs(points []Datapoint, f *Featurizer, workers int) ([]*MolGraph, error) {
	n := len(points)
	graphs := make([]*MolGraph, n)
	if n == 0 {
		return graphs, nil
	}
	if f == nil {
		f = NewFeaturizer()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}

	jobs := make(chan int, n)
	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)

	var done int64
	ticker := time.NewTicker(3 * time.Second)
	stopProgress := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d := atomic.LoadInt64(&done)
				log.Printf("[Featurize] progress: %d/%d (%.1f%%)", d, n, float64(d)/float64(n)*100.0)
			case <-stopProgress:
				return
			}
		}
	}()

	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				g, err := f.Featurize(points[i].Smiles)
				if err != nil {
					errCh <- err
					return
				}
				graphs[i] = g
				atomic.AddInt64(&done, 1)
			}
		}()
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(stopProgress)
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}
	return graphs, nil
}

// graphCacheFormat is the on-disk representation of featurized graphs. The
// metadata guards against reusing a cache built from different molecules or
// a different featurization scheme.
type graphCacheFormat struct {
	Version    int
	AtomDim    int
	BondDim    int
	NumGraphs  int
	SmilesHash uint64
	CreatedAt  int64
	Graphs     []*MolGraph
}

func hashSmiles(smiles []string) uint64 {
	h := fnv.New64a()
	for _, s := range smiles {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// SaveGraphCache writes featurized graphs to path using encoding/gob with
// an atomic temp-file-then-rename write.
func SaveGraphCache(path string, smiles []string, graphs []*MolGraph, f *Featurizer) error {
	if path == "" {
		return fmt.Errorf("empty cache path")
	}
	if len(smiles) != len(graphs) {
		return fmt.Errorf("got %d smiles but %d graphs", len(smiles), len(graphs))
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	enc := gob.NewEncoder(tmpFile)
	pc := graphCacheFormat{
		Version:    graphCacheVersion,
		AtomDim:    f.AtomDim(),
		BondDim:    f.BondDim(),
		NumGraphs:  len(graphs),
		SmilesHash: hashSmiles(smiles),
		CreatedAt:  time.Now().Unix(),
		Graphs:     graphs,
	}
	if err := enc.Encode(&pc); err != nil {
		return fmt.Errorf("encode cache to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		log.Printf("warning: sync temp cache file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp cache to target: %w", err)
	}
	return nil
}

// LoadGraphCache reads a graph cache from disk and validates its metadata
// against the molecules and featurizer it is meant to serve.
func LoadGraphCache(path string, smiles []string, f *Featurizer) ([]*MolGraph, error) {
	if path == "" {
		return nil, fmt.Errorf("empty cache path")
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cache file %s: %w", path, err)
	}
	defer fh.Close()

	dec := gob.NewDecoder(fh)
	var pc graphCacheFormat
	if err := dec.Decode(&pc); err != nil {
		return nil, fmt.Errorf("decode cache %s: %w", path, err)
	}
	if pc.Version != graphCacheVersion {
		return nil, fmt.Errorf("cache version mismatch: cache=%d expected=%d", pc.Version, graphCacheVersion)
	}
	if pc.AtomDim != f.AtomDim() || pc.BondDim != f.BondDim() {
		return nil, fmt.Errorf("cache feature dims mismatch: cache=(%d,%d) expected=(%d,%d)",
			pc.AtomDim, pc.BondDim, f.AtomDim(), f.BondDim())
	}
	if pc.NumGraphs != len(smiles) || len(pc.Graphs) != len(smiles) {
		return nil, fmt.Errorf("cache size mismatch: cache=%d expected=%d", pc.NumGraphs, len(smiles))
	}
	if pc.SmilesHash != hashSmiles(smiles) {
		return nil, fmt.Errorf("cache smiles hash mismatch")
	}
	return pc.Graphs, nil
}
