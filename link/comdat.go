// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"sync"
	"sync/atomic"
)

// A ComdatGroup represents one COMDAT signature across the whole
// input set. All files contributing a group with the same signature
// share one ComdatGroup; deduplication picks a single owning file.
type ComdatGroup struct {
	// Signature is the interned group signature. Immutable.
	Signature string

	// file is the current winning owner, readable without the lock
	// for the deduplication fast path.
	file atomic.Pointer[ObjectFile]

	// mu guards the owner swap below. sectionIdx and members describe
	// the winner's SHT_GROUP section and its member section indices.
	mu         sync.Mutex
	sectionIdx uint32
	members    []uint32
}

// File returns the file that won the group, or nil before
// deduplication.
func (g *ComdatGroup) File() *ObjectFile { return g.file.Load() }

// A ComdatGroupRef records one file's contribution to a COMDAT group:
// the SHT_GROUP section index and the validated member section
// indices from its payload.
type ComdatGroupRef struct {
	Group      *ComdatGroup
	SectionIdx uint32
	Members    []uint32
}

// removeComdatMembers discards the member sections of a losing group
// contribution.
func (o *ObjectFile) removeComdatMembers(members []uint32) {
	for _, i := range members {
		o.Sections[i] = nil
	}
}

// eliminateDuplicateComdatGroups resolves each of the file's groups
// against the global winner. The smallest priority wins; the loser's
// member sections are nulled out, outside the critical section when
// the loser is another file.
func (o *ObjectFile) eliminateDuplicateComdatGroups() {
	for _, ref := range o.ComdatGroups {
		g := ref.Group

		// Fast path: a lower-priority file already owns the group, so
		// this file loses without touching the lock.
		if owner := g.file.Load(); owner != nil && owner.Priority < o.Priority {
			o.removeComdatMembers(ref.Members)
			continue
		}

		var loser *ObjectFile
		var loserMembers []uint32

		g.mu.Lock()
		switch owner := g.file.Load(); {
		case owner == nil:
			g.file.Store(o)
			g.sectionIdx = ref.SectionIdx
			g.members = ref.Members
		case owner.Priority < o.Priority:
			loser, loserMembers = o, ref.Members
		default:
			// The incumbent loses; swap ownership before releasing the
			// lock so its sections can be discarded outside it.
			loser, loserMembers = owner, g.members
			g.file.Store(o)
			g.sectionIdx = ref.SectionIdx
			g.members = ref.Members
		}
		g.mu.Unlock()

		if loser != nil {
			loser.removeComdatMembers(loserMembers)
		}
	}
}
