// Copyright Coingro Ltd and/or licensed to Coingro Ltd under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package strategy

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	cacheKey = "strategies"
	cacheTTL = 5 * time.Minute
)

// Discoverer caches directory scans for a few minutes so that every
// reconcile tick does not reread the whole strategies volume.
type Discoverer struct {
	dir       string
	recursive bool
	cache     *cache.Cache
}

func NewDiscoverer(dir string, recursive bool) *Discoverer {
	return &Discoverer{
		dir:       dir,
		recursive: recursive,
		cache:     cache.New(cacheTTL, 2*cacheTTL),
	}
}

// Strategies returns the discovered plugin metadata, rescanning the
// directory when the cached result expired.
func (d *Discoverer) Strategies() ([]Metadata, error) {
	if cached, found := d.cache.Get(cacheKey); found {
		return cached.([]Metadata), nil
	}
	strategies, err := Discover(d.dir, d.recursive)
	if err != nil {
		return nil, err
	}
	d.cache.Set(cacheKey, strategies, cache.DefaultExpiration)
	return strategies, nil
}

// Invalidate drops the cached scan so the next call rereads the directory.
func (d *Discoverer) Invalidate() {
	d.cache.Delete(cacheKey)
}
