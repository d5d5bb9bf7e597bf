// Copyright The Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package util

// SCC computes the strongly connected components of a directed graph
// with n nodes (0..n-1), using edges(i) to list i's out-neighbors.
// Components are returned in reverse topological order (a node's
// component appears after the components of everything else it can
// reach), matching kosaraju_scc/tarjan_scc's conventional output
// order: reading the slice forward visits dependencies first, and
// reading it in reverse visits dependents first.
func SCC(n int, edges func(int) []int) [][]int {
	s := &sccState{
		edges:   edges,
		index:   make([]int, n),
		lowlink: make([]int, n),
		onStack: make([]bool, n),
		visited: make([]bool, n),
	}
	for i := range s.index {
		s.index[i] = -1
	}
	for v := 0; v < n; v++ {
		if !s.visited[v] {
			s.strongconnect(v)
		}
	}
	return s.out
}

type sccState struct {
	edges   func(int) []int
	index   []int
	lowlink []int
	onStack []bool
	visited []bool
	stack   []int
	counter int
	out     [][]int
}

// strongconnect is Tarjan's algorithm, written iteratively via an
// explicit work stack to avoid recursion depth limits on large call
// graphs.
func (s *sccState) strongconnect(start int) {
	type frame struct {
		v       int
		edgeIdx int
	}
	var work []frame
	push := func(v int) {
		s.index[v] = s.counter
		s.lowlink[v] = s.counter
		s.counter++
		s.stack = append(s.stack, v)
		s.onStack[v] = true
		s.visited[v] = true
		work = append(work, frame{v: v, edgeIdx: 0})
	}
	push(start)

	for len(work) > 0 {
		top := &work[len(work)-1]
		v := top.v
		es := s.edges(v)
		if top.edgeIdx < len(es) {
			w := es[top.edgeIdx]
			top.edgeIdx++
			switch {
			case s.index[w] == -1:
				push(w)
			case s.onStack[w]:
				if s.index[w] < s.lowlink[v] {
					s.lowlink[v] = s.index[w]
				}
			}
			continue
		}
		// All of v's edges explored; pop and propagate lowlink to parent.
		work = work[:len(work)-1]
		if len(work) > 0 {
			parent := &work[len(work)-1]
			if s.lowlink[v] < s.lowlink[parent.v] {
				s.lowlink[parent.v] = s.lowlink[v]
			}
		}
		if s.lowlink[v] == s.index[v] {
			var comp []int
			for {
				n := len(s.stack) - 1
				w := s.stack[n]
				s.stack = s.stack[:n]
				s.onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			s.out = append(s.out, comp)
		}
	}
}
