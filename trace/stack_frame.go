package trace

import "strconv"

// StackFrame is a node in a tree of call stacks. Frames are shared between
// samples with a common prefix.
type StackFrame struct {
	Parent   *StackFrame
	ID       string
	Category string
	Title    string
	ColorID  int

	// Key distinguishes children of the same parent, e.g. a code entry id.
	Key string

	children map[string]*StackFrame
	order    []*StackFrame
}

// NewStackFrame creates a frame and links it to parent.
func NewStackFrame(parent *StackFrame, id, category, title string, colorID int) *StackFrame {
	frame := &StackFrame{
		Parent:   parent,
		ID:       id,
		Category: category,
		Title:    title,
		ColorID:  colorID,
	}
	if parent != nil {
		parent.addChild(frame)
	}
	return frame
}

func (f *StackFrame) addChild(child *StackFrame) {
	if f.children == nil {
		f.children = map[string]*StackFrame{}
	}
	if child.Key != "" {
		f.children[child.Key] = child
	}
	f.order = append(f.order, child)
}

// SetKey sets the key of a frame and indexes it in the parent.
func (f *StackFrame) SetKey(key string) {
	f.Key = key
	if f.Parent != nil && key != "" {
		f.Parent.children[key] = f
	}
}

// ChildWithKey returns the child with the key, or nil.
func (f *StackFrame) ChildWithKey(key string) *StackFrame {
	return f.children[key]
}

func (f *StackFrame) Children() []*StackFrame { return f.order }

func (f *StackFrame) RemoveAllChildren() {
	for _, child := range f.order {
		child.Parent = nil
	}
	f.children = nil
	f.order = nil
}

// Stack returns the frames from f to the root.
func (f *StackFrame) Stack() []*StackFrame {
	var stack []*StackFrame
	for frame := f; frame != nil; frame = frame.Parent {
		stack = append(stack, frame)
	}
	return stack
}

// Sample is a point-in-time observation of a call stack on a thread.
type Sample struct {
	Thread         *Thread
	Title          string
	Start          Time
	LeafStackFrame *StackFrame
	Weight         float64
	Args           Args
}

// AddStackFrame registers a frame by id, ids must be unique.
func (m *Model) AddStackFrame(frame *StackFrame) error {
	if _, exists := m.StackFrames[frame.ID]; exists {
		return contractError("AddStackFrame", "Stack frame id "+strconv.Quote(frame.ID)+" already exists")
	}
	m.StackFrames[frame.ID] = frame
	return nil
}

// AddSample records a sample on the model and the sampled thread.
func (m *Model) AddSample(sample *Sample) *Sample {
	m.Samples = append(m.Samples, sample)
	if sample.Thread != nil {
		sample.Thread.Samples = append(sample.Thread.Samples, sample)
	}
	return sample
}
