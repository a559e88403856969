package apply

import "math"

// EventKind identifies a progress event, emitted in the order spec section
// 6 specifies: TreeBegin/ImageBegin; DirStructureBegin; DirStructureEnd;
// zero or more Streams; ApplyTimestamps; TreeEnd/ImageEnd.
type EventKind int

// Recognized event kinds.
const (
	EventTreeBegin EventKind = iota
	EventImageBegin
	EventDirStructureBegin
	EventDirStructureEnd
	EventStreams
	EventApplyTimestamps
	EventTreeEnd
	EventImageEnd
)

// Event is delivered to the caller-supplied ProgressFunc.
type Event struct {
	Kind EventKind

	// CompletedBytes and TotalBytes are valid for EventStreams (and any
	// event emitted after streaming begins). In pipe mode TotalBytes is
	// an estimate from image XML metadata and may be over- or
	// under-reported; once the pipe is exhausted, CompletedBytes is raised
	// to TotalBytes if it fell short, before EventApplyTimestamps.
	CompletedBytes uint64
	TotalBytes     uint64
	// StreamCount is the number of distinct streams selected for
	// extraction.
	StreamCount uint64
}

// ProgressFunc receives progress events. It must tolerate under- or
// over-reporting of totals in pipe mode (spec section 4.5 "Pipe mode").
type ProgressFunc func(Event)

// progressState is the portion of ApplyContext tracking progress tallies.
type progressState struct {
	totalBytes     uint64
	completedBytes uint64
	streamCount    uint64
	nextNotify     uint64
	callback       ProgressFunc
}

func (p *progressState) emit(kind EventKind) {
	if p.callback == nil {
		return
	}
	p.callback(Event{
		Kind:           kind,
		CompletedBytes: p.completedBytes,
		TotalBytes:     p.totalBytes,
		StreamCount:    p.streamCount,
	})
}

// addStream registers a newly-selected stream's size against the
// operation's projected totals (spec section 4.3: "on the 0->1
// transition ... add its byte size and one to progress totals").
func (p *progressState) addStream(size uint64) {
	p.totalBytes += size
	p.streamCount++
}

// setEstimatedTotal overrides totalBytes with an XML-declared estimate,
// used only in pipe mode where the exact stream set isn't known ahead of
// time (spec section 4.5).
func (p *progressState) setEstimatedTotal(total uint64) {
	p.totalBytes = total
}

// initNotifyThreshold must be called once totalBytes is final (or, in pipe
// mode, once it has been estimated) and before any stream completion is
// recorded.
func (p *progressState) initNotifyThreshold() {
	p.nextNotify = p.notifyStep()
}

func (p *progressState) notifyStep() uint64 {
	step := p.totalBytes / 128
	if step == 0 {
		step = 1
	}
	if step > p.totalBytes {
		step = p.totalBytes
	}
	return step
}

// completeStream records a finished stream write and emits EventStreams
// when the completed total crosses nextNotify, advancing the threshold by
// total/128 each time (spec section 4.5 "Progress").
func (p *progressState) completeStream(size uint64) {
	p.completedBytes += size
	if p.totalBytes == 0 || p.completedBytes >= p.nextNotify {
		p.emit(EventStreams)
		if p.nextNotify >= p.totalBytes {
			p.nextNotify = math.MaxUint64
		} else {
			p.nextNotify += p.notifyStep()
			if p.nextNotify > p.totalBytes {
				p.nextNotify = p.totalBytes
			}
		}
	}
}

// finalizeTotal bumps completedBytes up to totalBytes before the last
// progress emission, as the Finalizer does (spec section 4.5), so a pipe
// mode under-estimate never leaves the caller with completed < total.
func (p *progressState) finalizeTotal() {
	if p.completedBytes < p.totalBytes {
		p.completedBytes = p.totalBytes
	}
}
