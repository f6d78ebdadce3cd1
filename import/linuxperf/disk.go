package linuxperf

import (
	"regexp"
	"strconv"

	"loov.dev/tracemodel/trace"
)

func init() { RegisterParser(newDiskParser) }

var (
	ext4SyncFileEnter = regexp.MustCompile(`dev (\d+,\d+) ino (\d+) parent (\d+) datasync (\d+)`)
	ext4SyncFileExit  = regexp.MustCompile(`dev (\d+,\d+) ino (\d+) ret (\d+)`)
	blockRqIssue      = regexp.MustCompile(`(\d+,\d+) (F)?([DWRN])(F)?(A)?(S)?(M)? \d+ \(.*\) (\d+) \+ (\d+) \[.*\]`)
	blockRqComplete   = regexp.MustCompile(`(\d+,\d+) (F)?([DWRN])(F)?(A)?(S)?(M)? \(.*\) (\d+) \+ (\d+) \[(.*)\]`)
)

// diskParser imports ext4 syncs and block requests as async slices on a
// kernel thread per category and issuing thread.
type diskParser struct{ imp *Importer }

func newDiskParser(imp *Importer) {
	p := &diskParser{imp: imp}
	imp.RegisterEventHandler("ext4_sync_file_enter", p.ext4SyncFileEnter)
	imp.RegisterEventHandler("ext4_sync_file_exit", p.ext4SyncFileExit)
	imp.RegisterEventHandler("block_rq_issue", p.blockRqIssue)
	imp.RegisterEventHandler("block_rq_complete", p.blockRqComplete)
}

func (p *diskParser) openAsyncSlice(ev *Event, category, key, title string) {
	kthread := p.imp.GetOrCreateKernelThread(category+":"+ev.ThreadName, ev.Pid, ev.Pid)
	slice := trace.NewAsyncSlice(category, title, trace.StringColorID(title), ev.Timestamp, nil)
	slice.StartThread = kthread.Thread
	if kthread.openAsyncSlices == nil {
		kthread.openAsyncSlices = map[string]*trace.AsyncSlice{}
	}
	kthread.openAsyncSlices[key] = slice
}

func (p *diskParser) closeAsyncSlice(ev *Event, category, key string, args trace.Args) {
	kthread := p.imp.GetOrCreateKernelThread(category+":"+ev.ThreadName, ev.Pid, ev.Pid)
	slice, ok := kthread.openAsyncSlices[key]
	if !ok {
		return
	}
	delete(kthread.openAsyncSlices, key)

	slice.Duration = ev.Timestamp - slice.Start
	slice.Args = args
	slice.EndThread = kthread.Thread
	slice.SubSlices = []*trace.Slice{
		trace.NewSlice(category, slice.Title, slice.ColorID, slice.Start, args, slice.Duration),
	}
	kthread.Thread.AsyncSliceGroup.Push(slice)
}

func (p *diskParser) ext4SyncFileEnter(ev *Event) bool {
	match := ext4SyncFileEnter.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	device, inode := match[1], match[2]
	action := "fsync"
	if match[4] == "1" {
		action = "fdatasync"
	}
	p.openAsyncSlice(ev, "ext4", device+"-"+inode, action)
	return true
}

func (p *diskParser) ext4SyncFileExit(ev *Event) bool {
	match := ext4SyncFileExit.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	device := match[1]
	inode, _ := strconv.Atoi(match[2])
	ret, _ := strconv.Atoi(match[3])
	p.closeAsyncSlice(ev, "ext4", device+"-"+match[2], trace.Args{
		"device": device,
		"inode":  inode,
		"error":  ret,
	})
	return true
}

// blockAction describes the rwbs flags of a block request.
func blockAction(match []string) string {
	var action string
	switch match[3] {
	case "D":
		action = "discard"
	case "W":
		action = "write"
	case "R":
		action = "read"
	case "N":
		action = "none"
	default:
		action = "unknown"
	}
	if match[2] != "" {
		action += " flush"
	}
	if match[4] == "F" {
		action += " fua"
	}
	if match[5] == "A" {
		action += " ahead"
	}
	if match[6] == "S" {
		action += " sync"
	}
	if match[7] == "M" {
		action += " meta"
	}
	return action
}

func (p *diskParser) blockRqIssue(ev *Event) bool {
	match := blockRqIssue.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	key := match[1] + "-" + match[8] + "-" + match[9]
	p.openAsyncSlice(ev, "block", key, blockAction(match))
	return true
}

func (p *diskParser) blockRqComplete(ev *Event) bool {
	match := blockRqComplete.FindStringSubmatch(ev.Details)
	if match == nil {
		return false
	}
	sector, _ := strconv.Atoi(match[8])
	numSectors, _ := strconv.Atoi(match[9])
	ret, _ := strconv.Atoi(match[10])
	key := match[1] + "-" + match[8] + "-" + match[9]
	p.closeAsyncSlice(ev, "block", key, trace.Args{
		"device":     match[1],
		"sector":     sector,
		"numSectors": numSectors,
		"error":      ret,
	})
	return true
}
