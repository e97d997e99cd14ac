// The MIT License (MIT)
//
// Copyright (c) 2013-2017 Oryx(ossrs)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package ice

import "sort"

// ChecklistState is a media stream's overall checklist state.
type ChecklistState int

const (
	ChecklistNull ChecklistState = iota
	ChecklistRunning
	ChecklistCompleted
	ChecklistFailed
)

// formPairs pairs every local candidate with every remote candidate of
// matching component id and address family.
func formPairs(locals, remotes []*Candidate, localIsControlling bool) []*Pair {
	var pairs []*Pair
	for _, l := range locals {
		for _, r := range remotes {
			if l.ComponentID != r.ComponentID {
				continue
			}
			if addressFamily(l.Address) != addressFamily(r.Address) {
				continue
			}
			pairs = append(pairs, NewPair(l, r, localIsControlling))
		}
	}
	return pairs
}

func addressFamily(addr string) int {
	for i := 0; i < len(addr); i++ {
		if addr[i] == ':' {
			// crude v4-vs-v6 split: a bracketed or multi-colon address is v6
			if countColons(addr) > 1 {
				return 6
			}
			return 4
		}
	}
	return 4
}

func countColons(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			n++
		}
	}
	return n
}

// sortPairs sorts descending by PairPriority.
func sortPairs(pairs []*Pair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].PairPriority > pairs[j].PairPriority
	})
}

// prunePairs removes a pair whose (base-of-local, remote) duplicates a
// higher-priority pair already kept. pairs must
// already be sorted descending by priority.
func prunePairs(pairs []*Pair) []*Pair {
	type key struct {
		base, remote string
	}
	seen := make(map[key]bool)
	var out []*Pair
	for _, p := range pairs {
		k := key{base: p.Local.BaseAddress(), remote: p.Remote.Address}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, p)
	}
	return out
}

// initializeStates sets, for each foundation group, the pair with the
// lowest component id (ties broken by highest priority) to waiting; all
// others frozen. This only happens for the
// first media stream formed in a session.
func initializeStates(pairs []*Pair) {
	groups := make(map[string][]*Pair)
	for _, p := range pairs {
		groups[p.FoundationKey()] = append(groups[p.FoundationKey()], p)
	}
	for _, group := range groups {
		best := group[0]
		for _, p := range group[1:] {
			if p.Local.ComponentID < best.Local.ComponentID {
				best = p
			} else if p.Local.ComponentID == best.Local.ComponentID && p.PairPriority > best.PairPriority {
				best = p
			}
		}
		for _, p := range group {
			if p == best {
				p.State = PairWaiting
			} else {
				p.State = PairFrozen
			}
		}
	}
}

// FormChecklist builds a media stream's checklist from its local/remote
// candidate sets.
// initStates should be true only for the first media stream in a
// session.
func FormChecklist(locals, remotes []*Candidate, localIsControlling, initStates bool) []*Pair {
	pairs := formPairs(locals, remotes, localIsControlling)
	sortPairs(pairs)
	pairs = prunePairs(pairs)
	if initStates {
		initializeStates(pairs)
	} else {
		for _, p := range pairs {
			p.State = PairFrozen
		}
	}
	return pairs
}
