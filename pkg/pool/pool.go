// Object pools for the per-line classification path
//
// Every input line is checked for a fan command by every chained
// instance. The argument maps used for that check are recycled here.
//
// Usage:
//
//	args := pool.GetArgsMap()
//	defer pool.PutArgsMap(args)
//	// use args...
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"
)

// ArgsMap pool - for GCode argument maps
var argsMapPool = sync.Pool{
	New: func() any {
		return make(map[string]string, 4) // M106 P S is the common shape
	},
}

// GetArgsMap gets an empty string map from the pool
func GetArgsMap() map[string]string {
	return argsMapPool.Get().(map[string]string)
}

// PutArgsMap returns a string map to the pool after clearing it. Maps
// that grew large are dropped.
func PutArgsMap(m map[string]string) {
	if m == nil || len(m) > 32 {
		return
	}
	clear(m)
	argsMapPool.Put(m)
}
