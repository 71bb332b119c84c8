package expr

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheSize bounds the number of parse results kept by Compile.
const CacheSize = 4096

type parsed struct {
	node Node
	err  error
}

var cache = newCache(CacheSize)

func newCache(size int) *lru.Cache[string, parsed] {
	c, err := lru.New[string, parsed](size)
	if err != nil {
		panic(err)
	}
	return c
}

// Compile is Parse backed by a shared LRU cache keyed by source text.
// Failed parses are cached too. Trees are never mutated after parsing, so a
// cached tree may be evaluated concurrently.
func Compile(src string) (Node, error) {
	if p, ok := cache.Get(src); ok {
		return p.node, p.err
	}
	n, err := Parse(src)
	cache.Add(src, parsed{node: n, err: err})
	return n, err
}
