package grid

import "container/heap"

// maxExpansions caps A* node expansions. A query that exhausts the cap is
// reported as "no path".
const maxExpansions = 10000

// Walker answers path queries for one moving unit. Enemy and Ally classify
// living units other than the mover: enemies block traversal, allies are
// pass-through but not stop-on.
type Walker struct {
	Tiles *Generator
	Enemy func(Position) bool
	Ally  func(Position) bool
}

// passable reports whether the walker may traverse p.
func (w *Walker) passable(p Position) bool {
	return w.Tiles.Walkable(p) && !w.enemy(p)
}

func (w *Walker) enemy(p Position) bool {
	return w.Enemy != nil && w.Enemy(p)
}

func (w *Walker) ally(p Position) bool {
	return w.Ally != nil && w.Ally(p)
}

type node struct {
	pos   Position
	g     int // cost from start
	f     int // g + Chebyshev heuristic
	seq   int // insertion order, breaks f-ties deterministically
	index int
}

type openSet []*node

func (o openSet) Len() int { return len(o) }
func (o openSet) Less(i, j int) bool {
	if o[i].f != o[j].f {
		return o[i].f < o[j].f
	}
	return o[i].seq < o[j].seq
}
func (o openSet) Swap(i, j int) {
	o[i], o[j] = o[j], o[i]
	o[i].index = i
	o[j].index = j
}
func (o *openSet) Push(x any) {
	n := x.(*node)
	n.index = len(*o)
	*o = append(*o, n)
}
func (o *openSet) Pop() any {
	old := *o
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*o = old[:len(old)-1]
	return n
}

// FindPath runs A* over the 8-connected grid with uniform step cost and a
// Chebyshev heuristic. The returned path includes both endpoints. The goal
// tile itself is treated as walkable so callers can validate adjacency
// against occupied or blocked goals.
func (w *Walker) FindPath(from, to Position) ([]Position, bool) {
	if from == to {
		return []Position{from}, true
	}

	open := &openSet{}
	heap.Init(open)
	seq := 0
	start := &node{pos: from, g: 0, f: from.Chebyshev(to), seq: seq}
	heap.Push(open, start)

	cameFrom := map[Position]Position{}
	gScore := map[Position]int{from: 0}
	expanded := 0

	for open.Len() > 0 {
		cur := heap.Pop(open).(*node)
		if cur.pos == to {
			return reconstruct(cameFrom, from, to), true
		}
		if cur.g > gScore[cur.pos] {
			continue // stale entry
		}
		expanded++
		if expanded > maxExpansions {
			return nil, false
		}

		for _, d := range steps {
			next := Position{X: cur.pos.X + d.X, Y: cur.pos.Y + d.Y}
			if next != to && !w.passable(next) {
				continue
			}
			tentative := cur.g + 1
			if g, seen := gScore[next]; seen && tentative >= g {
				continue
			}
			gScore[next] = tentative
			cameFrom[next] = cur.pos
			seq++
			heap.Push(open, &node{
				pos: next,
				g:   tentative,
				f:   tentative + next.Chebyshev(to),
				seq: seq,
			})
		}
	}
	return nil, false
}

func reconstruct(cameFrom map[Position]Position, from, to Position) []Position {
	rev := []Position{to}
	for cur := to; cur != from; {
		cur = cameFrom[cur]
		rev = append(rev, cur)
	}
	path := make([]Position, len(rev))
	for i, p := range rev {
		path[len(rev)-1-i] = p
	}
	return path
}

// Reachable returns every position the walker may stop on within moveRange
// steps, mapped to its step distance. Allies are traversed but excluded from
// the result; enemies block traversal entirely. The origin is always
// reachable at distance 0.
func (w *Walker) Reachable(from Position, moveRange int) map[Position]int {
	visited := map[Position]int{from: 0}
	frontier := []Position{from}

	for dist := 1; dist <= moveRange; dist++ {
		var next []Position
		for _, cur := range frontier {
			for _, d := range steps {
				p := Position{X: cur.X + d.X, Y: cur.Y + d.Y}
				if _, seen := visited[p]; seen {
					continue
				}
				if !w.passable(p) {
					continue
				}
				visited[p] = dist
				next = append(next, p)
			}
		}
		frontier = next
	}

	stoppable := make(map[Position]int, len(visited))
	for p, dist := range visited {
		if p != from && w.ally(p) {
			continue // pass-through only
		}
		stoppable[p] = dist
	}
	return stoppable
}
