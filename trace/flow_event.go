package trace

// FlowEvent is a point in a chain of causally linked events.
type FlowEvent struct {
	Category string
	ID       string
	Title    string
	ColorID  int
	Start    Time
	Args     Args

	Next     *FlowEvent
	Previous *FlowEvent
}

func NewFlowEvent(category, id, title string, colorID int, start Time, args Args) *FlowEvent {
	return &FlowEvent{
		Category: category,
		ID:       id,
		Title:    title,
		ColorID:  colorID,
		Start:    start,
		Args:     args,
	}
}

// Link makes next follow prev.
func Link(prev, next *FlowEvent) {
	prev.Next = next
	next.Previous = prev
}
