package infrastructure

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/fetchq/fetchq/internal/domain"
)

var (
	rePct   = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reSpeed = regexp.MustCompile(`\bat\s+([^\s]+)`) // yt-dlp [download] ... at X
	reETA   = regexp.MustCompile(`\bETA\s+([0-9:]+)`)
	reOf    = regexp.MustCompile(`\bof\s+~?\s*([^\s(]+)`) // "of 10.5MiB", "of ~ 119.3MiB (frag ...)"
	reDest  = regexp.MustCompile(`^\[download\]\s+Destination:\s+(.+)$`)
	reMerge = regexp.MustCompile(`^\[Merger\]\s+Merging formats into "(.+)"$`)
	reTag   = regexp.MustCompile(`^\[([A-Za-z0-9_:+.-]+)\]`)
	reSize  = regexp.MustCompile(`^~?([0-9]+(?:\.[0-9]+)?)([KMGT]?i?B)$`)
)

// Postprocessor tags yt-dlp prints after the transfer itself is done.
var postProcessTags = map[string]bool{
	"ExtractAudio":   true,
	"VideoConvertor": true,
	"VideoRemuxer":   true,
	"Metadata":       true,
	"EmbedThumbnail": true,
	"EmbedSubtitle":  true,
	"MoveFiles":      true,
	"SplitChapters":  true,
	"FixupM3u8":      true,
	"FixupM4a":       true,
	"FixupStretched": true,
	"FixupTimestamp": true,
	"FixupDuration":  true,
	"ModifyChapters": true,
	"SponsorBlock":   true,
}

const (
	errorMarkerPrefix = "ERROR:"

	alreadyDownloadedMarker = "has already been downloaded"
	archiveHitMarker        = "has already been recorded in the archive"

	// Bounds on accumulated diagnostic text so a chatty process cannot grow
	// memory without limit; the most recent lines win.
	maxDiagBlockLines   = 40
	maxErrorDetailLines = 200
)

// ProgressParser turns one process's raw output lines into structured
// progress events. It is a small state machine: unrecognized lines accumulate
// into the current diagnostic block, an error marker freezes that block and
// starts collecting trailing detail, and any recognized line closes both.
//
// One parser serves exactly one job; instances share nothing.
type ProgressParser struct {
	diag      []string
	errDetail []string
	inError   bool
	sawError  bool
}

// NewProgressParser creates a parser for a single job's output stream.
func NewProgressParser() *ProgressParser {
	return &ProgressParser{}
}

// ParseLine consumes one raw output line and returns the structured event it
// carries, or nil for lines that are pure diagnostic text. Malformed input
// never fails; at worst the line is kept as diagnostic text.
func (p *ProgressParser) ParseLine(raw string) *domain.ProgressEvent {
	line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
	if line == "" {
		return nil
	}

	if strings.HasPrefix(line, errorMarkerPrefix) {
		if !p.sawError && len(p.diag) > 0 {
			p.errDetail = append(p.errDetail, p.diag...)
		}
		p.appendErrDetail(line)
		p.sawError = true
		p.inError = true
		p.diag = nil
		return &domain.ProgressEvent{
			Kind:      domain.EventError,
			ErrorText: strings.TrimSpace(strings.TrimPrefix(line, errorMarkerPrefix)),
		}
	}

	if strings.Contains(line, alreadyDownloadedMarker) {
		ev := &domain.ProgressEvent{Kind: domain.EventSuccess}
		if i := strings.Index(line, " "+alreadyDownloadedMarker); i >= 0 {
			path := strings.TrimSpace(line[:i])
			if tag := reTag.FindString(path); tag != "" {
				path = strings.TrimSpace(path[len(tag):])
			}
			if path != "" {
				ev.Title = filepath.Base(path)
			}
		}
		p.recognized()
		return ev
	}
	if strings.Contains(line, archiveHitMarker) {
		p.recognized()
		return &domain.ProgressEvent{Kind: domain.EventSuccess}
	}

	if m := reDest.FindStringSubmatch(line); len(m) > 1 {
		p.recognized()
		return &domain.ProgressEvent{
			Kind:  domain.EventProgress,
			Title: filepath.Base(strings.TrimSpace(m[1])),
			Stage: domain.StageDownloading,
		}
	}
	if m := reMerge.FindStringSubmatch(line); len(m) > 1 {
		p.recognized()
		return &domain.ProgressEvent{
			Kind:  domain.EventProgress,
			Title: filepath.Base(m[1]),
			Stage: domain.StageMerging,
		}
	}

	tag := ""
	if m := reTag.FindStringSubmatch(line); len(m) > 1 {
		tag = m[1]
	}

	if tag == "download" {
		ev := &domain.ProgressEvent{Kind: domain.EventProgress, Stage: domain.StageDownloading}
		if m := rePct.FindStringSubmatch(line); len(m) > 1 {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil {
				if pct > 100 {
					pct = 100
				}
				ev.Percent = pct
				ev.HasPercent = true
			}
		}
		if m := reSpeed.FindStringSubmatch(line); len(m) > 1 {
			ev.Speed = m[1]
		}
		if m := reETA.FindStringSubmatch(line); len(m) > 1 {
			ev.ETA = m[1]
		}
		if m := reOf.FindStringSubmatch(line); len(m) > 1 {
			ev.TotalBytes = humanSizeToBytes(m[1])
		}
		p.recognized()
		return ev
	}

	if tag != "" {
		ev := &domain.ProgressEvent{Kind: domain.EventProgress}
		switch {
		case tag == "info":
			ev.Stage = domain.StagePreparing
		case tag == "Merger":
			ev.Stage = domain.StageMerging
		case postProcessTags[tag]:
			ev.Stage = domain.StagePostProcessing
		default:
			// Extractor tags: [youtube], [twitter], [generic], ...
			ev.Stage = domain.StageMetadata
		}
		p.recognized()
		return ev
	}

	// Plain diagnostic text.
	if p.inError {
		p.appendErrDetail(line)
	} else {
		p.diag = append(p.diag, line)
		if len(p.diag) > maxDiagBlockLines {
			p.diag = p.diag[len(p.diag)-maxDiagBlockLines:]
		}
	}
	return nil
}

// recognized marks the line as structured: it closes the current diagnostic
// block and ends any trailing error-detail accumulation.
func (p *ProgressParser) recognized() {
	p.diag = nil
	p.inError = false
}

func (p *ProgressParser) appendErrDetail(line string) {
	if len(p.errDetail) >= maxErrorDetailLines {
		return
	}
	p.errDetail = append(p.errDetail, line)
}

// ErrorDetail returns the accumulated failure diagnostic: the unrecognized
// block preceding the first error marker, every marker line, and the trailing
// detail that followed them. Empty if no error marker was seen.
func (p *ProgressParser) ErrorDetail() string {
	return strings.Join(p.errDetail, "\n")
}

// DiagnosticTail returns the current trailing block of unrecognized output,
// for failures the process never announced with an explicit marker.
func (p *ProgressParser) DiagnosticTail() string {
	return strings.Join(p.diag, "\n")
}

// SawError reports whether an explicit error marker was parsed.
func (p *ProgressParser) SawError() bool {
	return p.sawError
}

// humanSizeToBytes converts yt-dlp's size notation ("10.55MiB", "~1.2GiB")
// to bytes. Returns 0 when the token is not a size.
func humanSizeToBytes(s string) int64 {
	m := reSize.FindStringSubmatch(strings.TrimSpace(s))
	if len(m) < 3 {
		return 0
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil || val < 0 {
		return 0
	}
	var unit float64
	switch m[2] {
	case "B":
		unit = 1
	case "KiB":
		unit = 1 << 10
	case "MiB":
		unit = 1 << 20
	case "GiB":
		unit = 1 << 30
	case "TiB":
		unit = 1 << 40
	case "KB":
		unit = 1e3
	case "MB":
		unit = 1e6
	case "GB":
		unit = 1e9
	case "TB":
		unit = 1e12
	default:
		return 0
	}
	return int64(val * unit)
}
