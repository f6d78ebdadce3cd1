// Package etw imports Event Tracing for Windows traces that were converted
// to JSON, each event carrying its raw payload in base64.
package etw

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"

	"github.com/zeebo/errs/v2"
	"go.uber.org/zap"

	"loov.dev/tracemodel/trace"
)

// Error is the error class of the etw importer.
var Error = errs.Tag("etw")

func init() {
	trace.Register(trace.Format{
		Name:      "etw",
		Priority:  3,
		CanImport: CanImport,
		New: func(m *trace.Model, data []byte) trace.Importer {
			return New(m, data)
		},
	})
}

type document struct {
	Name    string          `json:"name"`
	Content json.RawMessage `json:"content"`
}

// CanImport reports whether data is a JSON object named "ETW" with
// content.
func CanImport(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	var doc document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return false
	}
	return doc.Name == "ETW" && len(doc.Content) > 0
}

// rawEvent is one event of the content array. Events missing a field or
// holding a field of the wrong type are ignored.
type rawEvent struct {
	GUID    *string      `json:"guid"`
	Opcode  *int         `json:"op"`
	Version *int         `json:"ver"`
	CPU     *int         `json:"cpu"`
	TS      *json.Number `json:"ts"`
	Payload *string      `json:"payload"`
}

// Header describes the event whose payload is being decoded.
type Header struct {
	GUID      string
	Opcode    int
	Version   int
	CPU       int
	Timestamp trace.Time
	// Is64 selects 64 bit pointer sized fields.
	Is64 bool
}

// Handler decodes the payload of one event. It returns false when the
// payload is malformed.
type Handler func(header *Header, decoder *Decoder) bool

type handlerKey struct {
	guid   string
	opcode int
}

// Importer imports one ETW trace.
type Importer struct {
	model *trace.Model
	log   *zap.Logger
	data  []byte

	decoder  *Decoder
	handlers map[handlerKey]Handler

	is64      bool
	tidsToPid map[int]int
	cpus      map[int]*cpuState
}

func New(m *trace.Model, data []byte) *Importer {
	imp := &Importer{
		model:     m,
		log:       m.Logger().Named("etw"),
		data:      data,
		decoder:   NewDecoder(),
		handlers:  map[handlerKey]Handler{},
		tidsToPid: map[int]int{},
		cpus:      map[int]*cpuState{},
	}
	registerEventTraceParser(imp)
	registerProcessParser(imp)
	registerThreadParser(imp)
	return imp
}

// RegisterEventHandler makes handler decode the events with the guid and
// opcode.
func (imp *Importer) RegisterEventHandler(guid string, opcode int, handler Handler) {
	imp.handlers[handlerKey{guid: guid, opcode: opcode}] = handler
}

// Model returns the model the importer writes to.
func (imp *Importer) Model() *trace.Model { return imp.model }

// CreateThreadIfNeeded records that tid belongs to pid and creates the
// thread.
func (imp *Importer) CreateThreadIfNeeded(pid, tid int) *trace.Thread {
	imp.tidsToPid[tid] = pid
	return imp.model.GetOrCreateProcess(pid).GetOrCreateThread(tid)
}

// GetPidFromWindowsTid returns the process of a thread seen in a thread
// event.
func (imp *Importer) GetPidFromWindowsTid(tid int) (int, error) {
	pid, ok := imp.tidsToPid[tid]
	if !ok {
		return 0, Error.Errorf("unknown windows tid %d", tid)
	}
	return pid, nil
}

// threadFromWindowsTid returns the model thread of tid, or nil when the
// tid was never seen in a thread event.
func (imp *Importer) threadFromWindowsTid(tid int) *trace.Thread {
	pid, err := imp.GetPidFromWindowsTid(tid)
	if err != nil {
		return nil
	}
	return imp.model.GetOrCreateProcess(pid).GetOrCreateThread(tid)
}

// ticks converts 100ns ticks to model time.
func ticks(v int64) trace.Time { return trace.Time(v * 100) }

func (imp *Importer) ImportEvents(isSecondary bool) error {
	var doc struct {
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(imp.data, &doc); err != nil {
		return Error.Wrap(err)
	}

	type event struct {
		header  Header
		payload string
	}
	events := make([]event, 0, len(doc.Content))
	ignored := 0
	for _, data := range doc.Content {
		var raw rawEvent
		if err := json.Unmarshal(data, &raw); err != nil {
			ignored++
			continue
		}
		if raw.GUID == nil || raw.Opcode == nil || raw.Version == nil ||
			raw.CPU == nil || raw.TS == nil || raw.Payload == nil {
			ignored++
			continue
		}
		ts, err := strconv.ParseInt(raw.TS.String(), 10, 64)
		if err != nil {
			f, ferr := raw.TS.Float64()
			if ferr != nil {
				ignored++
				continue
			}
			ts = int64(f)
		}
		events = append(events, event{
			header: Header{
				GUID:      *raw.GUID,
				Opcode:    *raw.Opcode,
				Version:   *raw.Version,
				CPU:       *raw.CPU,
				Timestamp: ticks(ts),
			},
			payload: *raw.Payload,
		})
	}
	sort.SliceStable(events, func(i, k int) bool {
		return events[i].header.Timestamp < events[k].header.Timestamp
	})

	for i := range events {
		imp.processEvent(&events[i].header, events[i].payload)
	}
	imp.closeCpuSlices()

	imp.log.Debug("imported etw trace",
		zap.Int("events", len(events)),
		zap.Int("ignored", ignored))
	return nil
}

func (imp *Importer) processEvent(header *Header, payload string) {
	handler, ok := imp.handlers[handlerKey{guid: header.GUID, opcode: header.Opcode}]
	if !ok {
		return
	}
	header.Is64 = imp.is64

	if err := imp.decoder.Reset(payload); err != nil || !handler(header, imp.decoder) || imp.decoder.Err() != nil {
		imp.model.ImportWarning(trace.Warning{
			Type:    "parse_error",
			Message: "Malformed " + header.GUID + " event (opcode " + strconv.Itoa(header.Opcode) + ")",
		})
	}
}
