// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package store

import "sync"

// Pins tracks artifacts that are currently open by a reader (verification,
// delivery, download). Cleanup skips pinned files.
type Pins struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewPins creates an empty pin set.
func NewPins() *Pins {
	return &Pins{counts: make(map[string]int)}
}

// Pin marks filename as open and returns the function that releases it.
// The release function is safe to call more than once.
func (p *Pins) Pin(filename string) func() {
	p.mu.Lock()
	p.counts[filename]++
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.counts[filename]--; p.counts[filename] <= 0 {
				delete(p.counts, filename)
			}
		})
	}
}

// Pinned reports whether filename is open by anyone.
func (p *Pins) Pinned(filename string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[filename] > 0
}

// RemoveIfUnpinned calls remove only when no reader holds filename. The
// check and the call happen under the pin lock, so a concurrent Pin waits
// until remove returns.
func (p *Pins) RemoveIfUnpinned(filename string, remove func() error) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts[filename] > 0 {
		return false, nil
	}
	if err := remove(); err != nil {
		return false, err
	}
	return true, nil
}
