package trace

import (
	"fmt"
	"sort"
	"sync"
)

// ObjectSnapshot is the state of an object instance at one point in time.
type ObjectSnapshot struct {
	Instance *ObjectInstance
	Ts       Time
	Args     any

	// Value holds the result of the registered snapshot decoder for the
	// instance type, after InitializeObjects.
	Value any
}

// SnapshotDecoder turns the raw args of a snapshot into a typed value.
type SnapshotDecoder func(snapshot *ObjectSnapshot) (any, error)

var snapshotTypes = struct {
	sync.Mutex
	decoders map[string]SnapshotDecoder
}{decoders: map[string]SnapshotDecoder{}}

// RegisterSnapshotType registers the decoder for snapshots of objects with
// the given type name. Each type name can be registered once.
func RegisterSnapshotType(typeName string, decode SnapshotDecoder) error {
	snapshotTypes.Lock()
	defer snapshotTypes.Unlock()
	if _, exists := snapshotTypes.decoders[typeName]; exists {
		return contractError("RegisterSnapshotType", "Constructor already registered for "+typeName)
	}
	snapshotTypes.decoders[typeName] = decode
	return nil
}

func snapshotDecoder(typeName string) SnapshotDecoder {
	snapshotTypes.Lock()
	defer snapshotTypes.Unlock()
	return snapshotTypes.decoders[typeName]
}

// ObjectInstance is one lifetime of an object id.
type ObjectInstance struct {
	Parent   *Process
	ID       string
	Category string
	Name     string
	ColorID  int

	CreationTs            Time
	CreationTsWasExplicit bool
	DeletionTs            Time
	DeletionTsWasExplicit bool

	Snapshots []*ObjectSnapshot
	Bounds    TimeRange
}

func NewObjectInstance(parent *Process, id, category, name string, creationTs Time) *ObjectInstance {
	return &ObjectInstance{
		Parent:     parent,
		ID:         id,
		Category:   category,
		Name:       name,
		ColorID:    StringColorID(name),
		CreationTs: creationTs,
		DeletionTs: MaxTime,
		Bounds:     InvalidRange,
	}
}

func (inst *ObjectInstance) TypeName() string { return inst.Name }

func (inst *ObjectInstance) AddSnapshot(ts Time, args any) (*ObjectSnapshot, error) {
	if ts < inst.CreationTs {
		return nil, contractError("AddSnapshot", "Snapshots must be >= instance.creationTs")
	}
	if ts >= inst.DeletionTs {
		return nil, contractError("AddSnapshot", "Snapshots cannot be added after an objects deletion timestamp.")
	}
	if n := len(inst.Snapshots); n > 0 {
		last := inst.Snapshots[n-1]
		if last.Ts == ts {
			return nil, contractError("AddSnapshot", "Snapshots already exists at this time!")
		}
		if ts < last.Ts {
			return nil, contractError("AddSnapshot", "Snapshots must be added in increasing timestamp order")
		}
	}

	snapshot := &ObjectSnapshot{Instance: inst, Ts: ts, Args: args}
	inst.Snapshots = append(inst.Snapshots, snapshot)
	return snapshot, nil
}

func (inst *ObjectInstance) WasDeleted(ts Time) error {
	if n := len(inst.Snapshots); n > 0 && inst.Snapshots[n-1].Ts > ts {
		return contractError("WasDeleted", fmt.Sprintf("Instance cannot be deleted at ts=%v. A snapshot exists that is older.", ts))
	}
	inst.DeletionTs = ts
	inst.DeletionTsWasExplicit = true
	return nil
}

// GetSnapshotAt returns the snapshot that describes the instance at ts.
// Timestamps before the first snapshot resolve to the first snapshot.
func (inst *ObjectInstance) GetSnapshotAt(ts Time) (*ObjectSnapshot, error) {
	if len(inst.Snapshots) == 0 {
		return nil, nil
	}
	if ts < inst.CreationTs {
		if inst.CreationTsWasExplicit {
			return nil, contractError("GetSnapshotAt", "ts must be within lifetime of this instance")
		}
		return inst.Snapshots[0], nil
	}
	if ts > inst.DeletionTs {
		return nil, contractError("GetSnapshotAt", "ts must be within lifetime of this instance")
	}

	snapshots := inst.Snapshots
	i := FindLowIndexInSortedIntervals(snapshots,
		func(s *ObjectSnapshot) Time { return s.Ts },
		func(s *ObjectSnapshot, i int) Time {
			if i == len(snapshots)-1 {
				return inst.DeletionTs - s.Ts
			}
			return snapshots[i+1].Ts - s.Ts
		},
		ts)
	switch {
	case i < 0:
		return snapshots[0], nil
	case i >= len(snapshots):
		return snapshots[len(snapshots)-1], nil
	}
	return snapshots[i], nil
}

func (inst *ObjectInstance) UpdateBounds() {
	inst.Bounds = InvalidRange.Add(inst.CreationTs)
	if inst.DeletionTs != MaxTime {
		inst.Bounds = inst.Bounds.Add(inst.DeletionTs)
	} else if n := len(inst.Snapshots); n > 0 {
		inst.Bounds = inst.Bounds.Add(inst.Snapshots[n-1].Ts)
	}
}

func (inst *ObjectInstance) ShiftTimestampsForward(amount Time) {
	inst.CreationTs += amount
	if inst.DeletionTs != MaxTime {
		inst.DeletionTs += amount
	}
	for _, s := range inst.Snapshots {
		s.Ts += amount
	}
}

// initialize runs the registered decoder over every snapshot.
func (inst *ObjectInstance) initialize() []error {
	decode := snapshotDecoder(inst.Name)
	if decode == nil {
		return nil
	}
	var errs []error
	for _, s := range inst.Snapshots {
		value, err := decode(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s at %v: %w", inst.Name, inst.ID, s.Ts, err))
			continue
		}
		s.Value = value
	}
	return errs
}

// TimeToObjectInstanceMap tracks the successive lifetimes of one object id.
type TimeToObjectInstanceMap struct {
	Parent    *Process
	ID        string
	Instances []*ObjectInstance
}

func NewTimeToObjectInstanceMap(parent *Process, id string) *TimeToObjectInstanceMap {
	return &TimeToObjectInstanceMap{Parent: parent, ID: id}
}

func (m *TimeToObjectInstanceMap) create(category, name string, ts Time) *ObjectInstance {
	inst := NewObjectInstance(m.Parent, m.ID, category, name, ts)
	m.Instances = append(m.Instances, inst)
	return inst
}

func (m *TimeToObjectInstanceMap) LastInstance() *ObjectInstance {
	if len(m.Instances) == 0 {
		return nil
	}
	return m.Instances[len(m.Instances)-1]
}

func (m *TimeToObjectInstanceMap) IDWasCreated(category, name string, ts Time) (*ObjectInstance, error) {
	if last := m.LastInstance(); last != nil && ts < last.DeletionTs {
		return nil, contractError("IDWasCreated", "Mutation of the TimeToObjectInstanceMap must be done in ascending timestamp order.")
	}
	inst := m.create(category, name, ts)
	inst.CreationTsWasExplicit = true
	return inst, nil
}

func (m *TimeToObjectInstanceMap) findInstance(ts Time) int {
	return FindLowIndexInSortedIntervals(m.Instances,
		func(inst *ObjectInstance) Time { return inst.CreationTs },
		func(inst *ObjectInstance, _ int) Time { return inst.DeletionTs - inst.CreationTs },
		ts)
}

// AddSnapshot adds a snapshot to the instance alive at ts. Instances without
// an explicit creation are stretched back or created implicitly.
func (m *TimeToObjectInstanceMap) AddSnapshot(category, name string, ts Time, args any) (*ObjectSnapshot, error) {
	if len(m.Instances) == 0 {
		m.create(category, name, ts)
	}

	var inst *ObjectInstance
	switch i := m.findInstance(ts); {
	case i < 0:
		inst = m.Instances[0]
		if ts > inst.DeletionTs || inst.CreationTsWasExplicit {
			return nil, contractError("AddSnapshot", "At the provided timestamp, no instance was still alive")
		}
		if len(inst.Snapshots) != 0 {
			return nil, contractError("AddSnapshot", fmt.Sprintf(
				"Cannot shift creationTs forward, snapshots have been added. First snap was at ts=%v and creationTs was %v",
				inst.Snapshots[0].Ts, inst.CreationTs))
		}
		inst.CreationTs = ts

	case i >= len(m.Instances):
		inst = m.LastInstance()
		if ts >= inst.DeletionTs {
			inst = m.create(category, name, ts)
			break
		}

		valid := -1
		for k := len(m.Instances) - 1; k >= 0; k-- {
			candidate := m.Instances[k]
			if ts >= candidate.DeletionTs {
				break
			}
			if !candidate.CreationTsWasExplicit && len(candidate.Snapshots) == 0 {
				valid = k
			}
		}
		if valid < 0 {
			return nil, contractError("AddSnapshot", "Cannot add snapshot. No instance was alive that was mutable.")
		}
		inst = m.Instances[valid]
		inst.CreationTs = ts

	default:
		inst = m.Instances[i]
	}

	return inst.AddSnapshot(ts, args)
}

func (m *TimeToObjectInstanceMap) IDWasDeleted(category, name string, ts Time) (*ObjectInstance, error) {
	if len(m.Instances) == 0 {
		m.create(category, name, ts)
	}

	last := m.LastInstance()
	if ts < last.CreationTs {
		return nil, contractError("IDWasDeleted", "Cannot delete an id before it was created")
	}
	if last.DeletionTs == MaxTime {
		if err := last.WasDeleted(ts); err != nil {
			return nil, err
		}
		return last, nil
	}
	if ts < last.DeletionTs {
		return nil, contractError("IDWasDeleted", "id was already deleted earlier.")
	}

	// deleted again without being seen in between
	inst := m.create(category, name, ts)
	if err := inst.WasDeleted(ts); err != nil {
		return nil, err
	}
	return inst, nil
}

// GetInstanceAt returns the instance alive at ts, or nil.
func (m *TimeToObjectInstanceMap) GetInstanceAt(ts Time) *ObjectInstance {
	if len(m.Instances) == 0 {
		return nil
	}
	switch i := m.findInstance(ts); {
	case i < 0:
		if m.Instances[0].CreationTsWasExplicit {
			return nil
		}
		return m.Instances[0]
	case i >= len(m.Instances):
		return nil
	default:
		return m.Instances[i]
	}
}

// ObjectCollection holds the object instances of a process by id.
type ObjectCollection struct {
	Parent *Process
	Bounds TimeRange

	byID map[string]*TimeToObjectInstanceMap
	ids  []string
}

func NewObjectCollection(parent *Process) *ObjectCollection {
	return &ObjectCollection{
		Parent: parent,
		Bounds: InvalidRange,
		byID:   map[string]*TimeToObjectInstanceMap{},
	}
}

func (c *ObjectCollection) instanceMap(id string) *TimeToObjectInstanceMap {
	m, ok := c.byID[id]
	if !ok {
		m = NewTimeToObjectInstanceMap(c.Parent, id)
		c.byID[id] = m
		c.ids = append(c.ids, id)
	}
	return m
}

func (c *ObjectCollection) IDWasCreated(id, category, name string, ts Time) (*ObjectInstance, error) {
	return c.instanceMap(id).IDWasCreated(category, name, ts)
}

func (c *ObjectCollection) AddSnapshot(id, category, name string, ts Time, args any) (*ObjectSnapshot, error) {
	m := c.instanceMap(id)
	if inst := m.GetInstanceAt(ts); inst != nil && (inst.Category != category || inst.Name != name) {
		return nil, contractError("AddSnapshot", fmt.Sprintf(
			"Added snapshot name=%s with cat=%s impossible. Instance was created/snapshotted with cat=%s name=%s",
			name, category, inst.Category, inst.Name))
	}
	return m.AddSnapshot(category, name, ts, args)
}

func (c *ObjectCollection) IDWasDeleted(id, category, name string, ts Time) (*ObjectInstance, error) {
	m := c.instanceMap(id)
	if inst := m.LastInstance(); inst != nil {
		if inst.Category != category {
			return nil, contractError("IDWasDeleted", "Deleting an object with a different category than when it was created")
		}
		if inst.Name != name {
			return nil, contractError("IDWasDeleted", "Deleting an object with a different name than when it was created")
		}
	}
	return m.IDWasDeleted(category, name, ts)
}

// AutoDeleteObjects ends every live instance at max, or at its last
// snapshot when that comes later.
func (c *ObjectCollection) AutoDeleteObjects(max Time) {
	for _, inst := range c.AllInstances() {
		if inst.DeletionTs != MaxTime {
			continue
		}
		end := max
		if n := len(inst.Snapshots); n > 0 {
			end = end.Max(inst.Snapshots[n-1].Ts)
		}
		inst.DeletionTs = end
		inst.DeletionTsWasExplicit = true
	}
}

func (c *ObjectCollection) GetObjectInstanceAt(id string, ts Time) *ObjectInstance {
	m, ok := c.byID[id]
	if !ok {
		return nil
	}
	return m.GetInstanceAt(ts)
}

func (c *ObjectCollection) GetSnapshotAt(id string, ts Time) (*ObjectSnapshot, error) {
	inst := c.GetObjectInstanceAt(id, ts)
	if inst == nil {
		return nil, nil
	}
	return inst.GetSnapshotAt(ts)
}

// AllInstances returns every instance, ordered by id then lifetime.
func (c *ObjectCollection) AllInstances() []*ObjectInstance {
	var all []*ObjectInstance
	for _, id := range c.ids {
		all = append(all, c.byID[id].Instances...)
	}
	return all
}

// AllInstancesByTypeName groups the instances by type name.
func (c *ObjectCollection) AllInstancesByTypeName() map[string][]*ObjectInstance {
	byType := map[string][]*ObjectInstance{}
	for _, inst := range c.AllInstances() {
		byType[inst.Name] = append(byType[inst.Name], inst)
	}
	return byType
}

// TypeNames returns the sorted type names present in the collection.
func (c *ObjectCollection) TypeNames() []string {
	var names []string
	for name := range c.AllInstancesByTypeName() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *ObjectCollection) Len() int { return len(c.ids) }

func (c *ObjectCollection) UpdateBounds() {
	c.Bounds = InvalidRange
	for _, inst := range c.AllInstances() {
		inst.UpdateBounds()
		c.Bounds = c.Bounds.Expand(inst.Bounds)
	}
}

func (c *ObjectCollection) ShiftTimestampsForward(amount Time) {
	for _, inst := range c.AllInstances() {
		inst.ShiftTimestampsForward(amount)
	}
}

// InitializeObjects decodes the snapshots of registered types.
func (c *ObjectCollection) InitializeObjects() []error {
	var errs []error
	for _, inst := range c.AllInstances() {
		errs = append(errs, inst.initialize()...)
	}
	return errs
}
