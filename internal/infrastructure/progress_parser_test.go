package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetchq/fetchq/internal/domain"
)

// Variables rather than constants: converting a constant float expression
// with a fractional part to int64 does not compile.
var (
	mib = float64(1 << 20)
	gib = float64(1 << 30)
)

func TestProgressParser_DownloadLine(t *testing.T) {
	p := NewProgressParser()

	ev := p.ParseLine("[download]  42.5% of  123.45MiB at    2.15MiB/s ETA 00:33")

	require.NotNil(t, ev)
	assert.Equal(t, domain.EventProgress, ev.Kind)
	assert.True(t, ev.HasPercent)
	assert.Equal(t, 42.5, ev.Percent)
	assert.Equal(t, "2.15MiB/s", ev.Speed)
	assert.Equal(t, "00:33", ev.ETA)
	assert.Equal(t, int64(123.45*mib), ev.TotalBytes)
	assert.Equal(t, domain.StageDownloading, ev.Stage)
}

func TestProgressParser_FragmentLine(t *testing.T) {
	p := NewProgressParser()

	ev := p.ParseLine("[download]  45.2% of ~ 119.33MiB at  2.15MiB/s ETA 00:27 (frag 24/53)")

	require.NotNil(t, ev)
	assert.True(t, ev.HasPercent)
	assert.Equal(t, 45.2, ev.Percent)
	assert.Equal(t, int64(119.33*mib), ev.TotalBytes)
}

func TestProgressParser_CompletionSummaryLine(t *testing.T) {
	p := NewProgressParser()

	// The per-file summary has no speed or ETA, only the final percent.
	ev := p.ParseLine("[download] 100% of 123.45MiB in 00:58")

	require.NotNil(t, ev)
	assert.True(t, ev.HasPercent)
	assert.Equal(t, 100.0, ev.Percent)
	assert.Empty(t, ev.Speed)
	assert.Empty(t, ev.ETA)
}

func TestProgressParser_PercentClamped(t *testing.T) {
	p := NewProgressParser()

	ev := p.ParseLine("[download] 104.2% of 10MiB at 1MiB/s ETA 00:01")

	require.NotNil(t, ev)
	assert.Equal(t, 100.0, ev.Percent)
}

func TestProgressParser_Destination(t *testing.T) {
	p := NewProgressParser()

	ev := p.ParseLine("[download] Destination: /home/u/Downloads/Rick Astley - Never Gonna Give You Up [dQw4w9WgXcQ].f137.mp4")

	require.NotNil(t, ev)
	assert.Equal(t, domain.EventProgress, ev.Kind)
	assert.Equal(t, "Rick Astley - Never Gonna Give You Up [dQw4w9WgXcQ].f137.mp4", ev.Title)
	assert.Equal(t, domain.StageDownloading, ev.Stage)
}

func TestProgressParser_Merger(t *testing.T) {
	p := NewProgressParser()

	ev := p.ParseLine(`[Merger] Merging formats into "/home/u/Downloads/My Video [abc123].mkv"`)

	require.NotNil(t, ev)
	assert.Equal(t, "My Video [abc123].mkv", ev.Title)
	assert.Equal(t, domain.StageMerging, ev.Stage)
}

func TestProgressParser_Stages(t *testing.T) {
	tests := []struct {
		line  string
		stage domain.Stage
	}{
		{"[youtube] dQw4w9WgXcQ: Downloading webpage", domain.StageMetadata},
		{"[twitter] 123456: Downloading guest token", domain.StageMetadata},
		{"[generic] page: Extracting information", domain.StageMetadata},
		{"[info] dQw4w9WgXcQ: Downloading 1 format(s): 137+140", domain.StagePreparing},
		{"[ExtractAudio] Destination: audio.mp3", domain.StagePostProcessing},
		{"[Metadata] Adding metadata to 'video.mp4'", domain.StagePostProcessing},
		{"[EmbedThumbnail] ffmpeg: Adding thumbnail", domain.StagePostProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			p := NewProgressParser()
			ev := p.ParseLine(tt.line)
			require.NotNil(t, ev)
			assert.Equal(t, tt.stage, ev.Stage)
		})
	}
}

func TestProgressParser_AlreadyDownloaded(t *testing.T) {
	p := NewProgressParser()

	ev := p.ParseLine("[download] /home/u/Downloads/My Video [abc123].mp4 has already been downloaded")

	require.NotNil(t, ev)
	assert.Equal(t, domain.EventSuccess, ev.Kind)
	assert.Equal(t, "My Video [abc123].mp4", ev.Title)
}

func TestProgressParser_ArchiveHit(t *testing.T) {
	p := NewProgressParser()

	ev := p.ParseLine("[download] dQw4w9WgXcQ: has already been recorded in the archive")

	require.NotNil(t, ev)
	assert.Equal(t, domain.EventSuccess, ev.Kind)
}

func TestProgressParser_ErrorMarker(t *testing.T) {
	p := NewProgressParser()

	ev := p.ParseLine("ERROR: [youtube] dQw4w9WgXcQ: Video unavailable")

	require.NotNil(t, ev)
	assert.Equal(t, domain.EventError, ev.Kind)
	assert.Equal(t, "[youtube] dQw4w9WgXcQ: Video unavailable", ev.ErrorText)
	assert.True(t, p.SawError())
	assert.Contains(t, p.ErrorDetail(), "Video unavailable")
}

func TestProgressParser_ErrorDetailAccumulation(t *testing.T) {
	p := NewProgressParser()

	// Unrecognized block preceding the marker is retained.
	assert.Nil(t, p.ParseLine("WARNING: unable to download video info webpage"))
	assert.Nil(t, p.ParseLine("Retrying (1/3)..."))

	ev := p.ParseLine("ERROR: unable to download video data: HTTP Error 403: Forbidden")
	require.NotNil(t, ev)

	// Trailing detail lines accumulate after the marker.
	assert.Nil(t, p.ParseLine("Caused by: blocked by network policy"))

	detail := p.ErrorDetail()
	assert.Contains(t, detail, "WARNING: unable to download video info webpage")
	assert.Contains(t, detail, "Retrying (1/3)...")
	assert.Contains(t, detail, "ERROR: unable to download video data: HTTP Error 403: Forbidden")
	assert.Contains(t, detail, "Caused by: blocked by network policy")
}

func TestProgressParser_RecognizedLineEndsErrorDetail(t *testing.T) {
	p := NewProgressParser()

	p.ParseLine("ERROR: fragment 3 not found")
	p.ParseLine("retrying fragment")
	p.ParseLine("[download]  50.0% of 10.00MiB at 1.00MiB/s ETA 00:05")
	p.ParseLine("this line is ordinary diagnostic again")

	detail := p.ErrorDetail()
	assert.Contains(t, detail, "retrying fragment")
	assert.NotContains(t, detail, "ordinary diagnostic")
}

func TestProgressParser_DiagnosticBlockResets(t *testing.T) {
	p := NewProgressParser()

	assert.Nil(t, p.ParseLine("old noise"))
	p.ParseLine("[download]  10.0% of 10.00MiB at 1.00MiB/s ETA 00:30")
	assert.Nil(t, p.ParseLine("fresh noise"))

	// Only the block after the last recognized line remains.
	assert.Equal(t, "fresh noise", p.DiagnosticTail())

	p.ParseLine("ERROR: something broke")
	detail := p.ErrorDetail()
	assert.Contains(t, detail, "fresh noise")
	assert.NotContains(t, detail, "old noise")
}

func TestProgressParser_MalformedInput(t *testing.T) {
	p := NewProgressParser()

	lines := []string{
		"",
		"   ",
		"\r",
		"[download]",
		"[download] garbage that matches nothing",
		"%%% 42 at of ETA",
		"[unclosed bracket",
		string([]byte{0xff, 0xfe, 0x00}),
	}
	for _, line := range lines {
		assert.NotPanics(t, func() { p.ParseLine(line) })
	}
}

func TestProgressParser_CarriageReturnTrimmed(t *testing.T) {
	p := NewProgressParser()

	ev := p.ParseLine("[download]  99.1% of 5.00MiB at 1.00MiB/s ETA 00:00\r")

	require.NotNil(t, ev)
	assert.Equal(t, 99.1, ev.Percent)
}

func TestHumanSizeToBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512B", 512},
		{"1KiB", 1024},
		{"10.55MiB", int64(10.55 * mib)},
		{"1.2GiB", int64(1.2 * gib)},
		{"2TiB", 2 << 40},
		{"5MB", 5000000},
		{"~119.33MiB", int64(119.33 * mib)},
		{"unknown", 0},
		{"12.3XiB", 0},
		{"", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, humanSizeToBytes(tt.in))
		})
	}
}
