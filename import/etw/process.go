package etw

const processGUID = "3D6FA8D0-FE05-11D0-9DDA-00C04FD7BA7C"

const (
	processStartOpcode   = 1
	processEndOpcode     = 2
	processDCStartOpcode = 3
	processDCEndOpcode   = 4
	processDefunctOpcode = 39
)

// ProcessFields are the fields of the Process_TypeGroup1 events. Fields
// absent from the event version keep their zero value.
type ProcessFields struct {
	PageDirectoryBase  uint64
	UniqueProcessKey   uint64
	ProcessID          uint32
	ParentID           uint32
	SessionID          uint32
	ExitStatus         int32
	DirectoryTableBase uint64
	Flags              uint32
	UserSID            SID
	ImageFileName      string
	CommandLine        string
	PackageFullName    string
	ApplicationID      string
	ExitTime           string
}

func registerProcessParser(imp *Importer) {
	start := func(header *Header, d *Decoder) bool {
		fields, ok := DecodeProcessFields(header, d)
		if !ok {
			return false
		}
		process := imp.model.GetOrCreateProcess(int(fields.ProcessID))
		if fields.ImageFileName != "" {
			process.Name = fields.ImageFileName
		}
		return true
	}
	end := func(header *Header, d *Decoder) bool {
		_, ok := DecodeProcessFields(header, d)
		return ok
	}

	imp.RegisterEventHandler(processGUID, processStartOpcode, start)
	imp.RegisterEventHandler(processGUID, processDCStartOpcode, start)
	imp.RegisterEventHandler(processGUID, processEndOpcode, end)
	imp.RegisterEventHandler(processGUID, processDCEndOpcode, end)
	imp.RegisterEventHandler(processGUID, processDefunctOpcode, end)
}

// DecodeProcessFields decodes versions 0 to 5 of the process events.
func DecodeProcessFields(header *Header, d *Decoder) (ProcessFields, bool) {
	var f ProcessFields
	if header.Version > 5 {
		return f, false
	}
	v := header.Version

	if v == 1 {
		f.PageDirectoryBase = d.DecodeUInteger(header.Is64)
	}
	if v >= 2 {
		f.UniqueProcessKey = d.DecodeUInteger(header.Is64)
	}
	f.ProcessID = d.DecodeUInt32()
	f.ParentID = d.DecodeUInt32()
	if v >= 1 {
		f.SessionID = d.DecodeUInt32()
		f.ExitStatus = d.DecodeInt32()
	}
	if v >= 3 {
		f.DirectoryTableBase = d.DecodeUInteger(header.Is64)
	}
	if v >= 4 {
		f.Flags = d.DecodeUInt32()
	}
	f.UserSID = d.DecodeSID(header.Is64)
	if v >= 1 {
		f.ImageFileName = d.DecodeString()
	}
	if v >= 2 {
		f.CommandLine = d.DecodeW16String()
	}
	if v >= 4 {
		f.PackageFullName = d.DecodeW16String()
		f.ApplicationID = d.DecodeW16String()
	}
	if v == 5 && header.Opcode == processDefunctOpcode {
		f.ExitTime = d.DecodeUInt64ToString()
	}

	return f, d.Err() == nil
}
