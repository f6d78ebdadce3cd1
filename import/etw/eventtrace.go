package etw

const eventTraceGUID = "68FDD900-4A3E-11D1-84F4-0000F80464E3"

const eventTraceHeaderOpcode = 0

// EventTraceHeader is the header event that starts every trace. It is
// stored as "etw-header" model metadata.
type EventTraceHeader struct {
	BufferSize          uint32
	Version             uint32
	ProviderVersion     uint32
	NumberOfProcessors  uint32
	EndTime             string
	TimerResolution     uint32
	MaxFileSize         uint32
	LogFileMode         uint32
	BuffersWritten      uint32
	StartBuffers        uint32
	PointerSize         uint32
	EventsLost          uint32
	CPUSpeed            uint32
	LoggerName          uint64
	LogFileName         uint64
	TimeZoneInformation TimeZoneInformation
	BootTime            string
	PerfFreq            string
	StartTime           string
	ReservedFlags       uint32
	BuffersLost         uint32
	SessionNameString   string
	LogFileNameString   string
}

func registerEventTraceParser(imp *Importer) {
	imp.RegisterEventHandler(eventTraceGUID, eventTraceHeaderOpcode, func(header *Header, d *Decoder) bool {
		fields, ok := DecodeEventTraceHeader(header, d)
		if !ok {
			return false
		}
		// later events use the pointer size of the traced system
		imp.is64 = fields.PointerSize == 8
		imp.model.AddMetadata("etw-header", fields)
		return true
	})
}

// DecodeEventTraceHeader decodes version 2 of the header. Pointer sized
// fields follow the PointerSize field of the header itself.
func DecodeEventTraceHeader(header *Header, d *Decoder) (EventTraceHeader, bool) {
	var h EventTraceHeader
	if header.Version != 2 {
		return h, false
	}

	h.BufferSize = d.DecodeUInt32()
	h.Version = d.DecodeUInt32()
	h.ProviderVersion = d.DecodeUInt32()
	h.NumberOfProcessors = d.DecodeUInt32()
	h.EndTime = d.DecodeUInt64ToString()
	h.TimerResolution = d.DecodeUInt32()
	h.MaxFileSize = d.DecodeUInt32()
	h.LogFileMode = d.DecodeUInt32()
	h.BuffersWritten = d.DecodeUInt32()
	h.StartBuffers = d.DecodeUInt32()
	h.PointerSize = d.DecodeUInt32()
	h.EventsLost = d.DecodeUInt32()
	h.CPUSpeed = d.DecodeUInt32()

	is64 := h.PointerSize == 8
	h.LoggerName = d.DecodeUInteger(is64)
	h.LogFileName = d.DecodeUInteger(is64)
	h.TimeZoneInformation = d.DecodeTimeZoneInformation()
	d.Skip(4)

	h.BootTime = d.DecodeUInt64ToString()
	h.PerfFreq = d.DecodeUInt64ToString()
	h.StartTime = d.DecodeUInt64ToString()
	h.ReservedFlags = d.DecodeUInt32()
	h.BuffersLost = d.DecodeUInt32()
	h.SessionNameString = d.DecodeW16String()
	h.LogFileNameString = d.DecodeW16String()

	return h, d.Err() == nil
}
