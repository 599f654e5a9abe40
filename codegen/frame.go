package codegen

import (
	"fmt"
)

// Frame is one code-emitting unit of a method body.
type Frame interface {
	// Uses returns the variables the frame reads.
	Uses() []*Variable

	// Creates returns the local variables the frame assigns.
	Creates() []*Variable

	// GenerateCode writes the frame's Go source.
	GenerateCode(w *SourceWriter)

	// Compile returns a step that runs the frame and then next.
	Compile(c *Compiler, next Step) (Step, error)
}

// ContainerFrame is a frame with nested blocks.
type ContainerFrame interface {
	Frame
	Blocks() []*Block
}

// Block is an ordered list of frames.
type Block struct {
	Frames []Frame
}

// Append adds frames to the end of the block.
func (b *Block) Append(frames ...Frame) {
	b.Frames = append(b.Frames, frames...)
}

// ArrangeError reports a method whose frames cannot be ordered.
type ArrangeError struct {
	Method   string
	Variable *Variable
	Reason   string
}

func (e *ArrangeError) Error() string {
	return fmt.Sprintf("codegen: %s: variable %s: %s", e.Method, e.Variable, e.Reason)
}

// position locates a placed frame.
type position struct {
	block *Block
	order int // document order
}

// arrangement is the frame layout of one method.
type arrangement struct {
	method  string
	parents map[*Block]*Block
	owner   map[*Block]Frame // container frame holding a nested block
	placed  map[Frame]position
}

// arrange inserts the creator of every used local variable ahead of its first
// use, in the innermost block enclosing all of its uses, then checks that every
// variable is created before and in scope of each use.
func arrange(name string, top *Block) error {
	const maxInsertions = 10000
	for i := 0; i < maxInsertions; i++ {
		a := index(name, top)
		v, users := a.firstUnplaced(top)
		if v == nil {
			return a.check(top)
		}
		if v.Creator == nil {
			return &ArrangeError{Method: name, Variable: v, Reason: "used but never created"}
		}
		a.insert(v.Creator, users)
	}
	return fmt.Errorf("codegen: %s: too many frames inserted while arranging", name)
}

func index(name string, top *Block) *arrangement {
	a := &arrangement{
		method:  name,
		parents: map[*Block]*Block{},
		owner:   map[*Block]Frame{},
		placed:  map[Frame]position{},
	}
	order := 0
	var visit func(b *Block)
	visit = func(b *Block) {
		for _, f := range b.Frames {
			a.placed[f] = position{block: b, order: order}
			order++
			if cf, ok := f.(ContainerFrame); ok {
				for _, inner := range cf.Blocks() {
					a.parents[inner] = b
					a.owner[inner] = f
					visit(inner)
				}
			}
		}
	}
	visit(top)
	return a
}

// walk visits frames in document order.
func walk(b *Block, fn func(f Frame, b *Block) bool) bool {
	for _, f := range b.Frames {
		if !fn(f, b) {
			return false
		}
		if cf, ok := f.(ContainerFrame); ok {
			for _, inner := range cf.Blocks() {
				if !walk(inner, fn) {
					return false
				}
			}
		}
	}
	return true
}

// firstUnplaced finds the first used variable whose creator is not part of the
// method, along with every frame using it.
func (a *arrangement) firstUnplaced(top *Block) (*Variable, []Frame) {
	var target *Variable
	walk(top, func(f Frame, _ *Block) bool {
		for _, v := range f.Uses() {
			v = v.root()
			if !v.needsCreator() {
				continue
			}
			if v.Creator == nil {
				target = v
				return false
			}
			if _, ok := a.placed[v.Creator]; !ok {
				target = v
				return false
			}
		}
		return true
	})
	if target == nil {
		return nil, nil
	}
	var users []Frame
	walk(top, func(f Frame, _ *Block) bool {
		for _, v := range f.Uses() {
			if v.root() == target {
				users = append(users, f)
				break
			}
		}
		return true
	})
	return target, users
}

// insert places creator in the innermost block enclosing every user, right
// before the frame that is or contains the first user. When the first user is
// inside a try body below that block, the creator goes into the try body so
// its failure is caught, and its variables are declared ahead of the try.
func (a *arrangement) insert(creator Frame, users []Frame) {
	common := a.placed[users[0]].block
	for _, u := range users[1:] {
		common = a.commonAncestor(common, a.placed[u].block)
	}

	// Find the frame in common that is, or contains, the first user.
	first := users[0]
	anchor := first
	var guarded *Block
	var guardedAnchor Frame
	for b := a.placed[first].block; b != common; b = a.parents[b] {
		if t, ok := a.owner[b].(*TryFrame); ok && t.Body == b {
			guarded, guardedAnchor = b, anchor
		}
		anchor = a.owner[b]
	}

	if guarded != nil {
		insertBefore(common, anchor, &declareFrame{vars: creator.Creates()})
		insertBefore(guarded, guardedAnchor, creator)
		return
	}
	insertBefore(common, anchor, creator)
}

func insertBefore(b *Block, anchor, f Frame) {
	idx := 0
	for i, existing := range b.Frames {
		if existing == anchor {
			idx = i
			break
		}
	}
	b.Frames = append(b.Frames[:idx], append([]Frame{f}, b.Frames[idx:]...)...)
}

// declareFrame declares variables whose creator sits in a nested try body
// while later frames of the enclosing block read them.
type declareFrame struct {
	vars []*Variable
}

func (f *declareFrame) Uses() []*Variable { return nil }

func (f *declareFrame) Creates() []*Variable { return nil }

func (f *declareFrame) GenerateCode(w *SourceWriter) {
	for _, v := range f.vars {
		w.declared[v] = true
		if w.used[v] {
			w.Line("var %s %s", w.Ref(v), w.Type(v.Type))
		}
	}
}

// Compile implements Frame. Slots start as zero values, so there is nothing
// to run.
func (f *declareFrame) Compile(_ *Compiler, next Step) (Step, error) { return next, nil }

func (a *arrangement) ancestors(b *Block) []*Block {
	var out []*Block
	for ; b != nil; b = a.parents[b] {
		out = append(out, b)
	}
	return out
}

func (a *arrangement) commonAncestor(x, y *Block) *Block {
	seen := map[*Block]bool{}
	for _, b := range a.ancestors(x) {
		seen[b] = true
	}
	for _, b := range a.ancestors(y) {
		if seen[b] {
			return b
		}
	}
	return nil
}

// check verifies every used local is created earlier in an enclosing block.
func (a *arrangement) check(top *Block) error {
	declaredIn := map[*Variable]*Block{}
	walk(top, func(f Frame, b *Block) bool {
		if d, ok := f.(*declareFrame); ok {
			for _, v := range d.vars {
				declaredIn[v] = b
			}
		}
		return true
	})

	var err error
	walk(top, func(f Frame, b *Block) bool {
		for _, v := range f.Uses() {
			v = v.root()
			if !v.needsCreator() {
				continue
			}
			cpos, ok := a.placed[v.Creator]
			if !ok {
				err = &ArrangeError{Method: a.method, Variable: v, Reason: "creator is not part of the method"}
				return false
			}
			if cpos.order >= a.placed[f].order {
				err = &ArrangeError{Method: a.method, Variable: v, Reason: "used before it is created"}
				return false
			}
			scope := cpos.block
			if d, ok := declaredIn[v]; ok {
				scope = d
			}
			inScope := false
			for _, anc := range a.ancestors(b) {
				if anc == scope {
					inScope = true
					break
				}
			}
			if !inScope {
				err = &ArrangeError{Method: a.method, Variable: v, Reason: "used outside the block that creates it"}
				return false
			}
		}
		return true
	})
	return err
}
