package jobs

import "time"

// Status is the monotonic job lifecycle state.
// Transitions only move forward: queued → started → finished | failed.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Terminal reports whether a status is an end state
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// rank orders statuses for monotonicity checks
func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusStarted:
		return 1
	case StatusFinished, StatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransition reports whether moving from s to next respects the
// forward-only lifecycle
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// Progress stage names written by the worker at each stage boundary
const (
	StageSeparating = "separating_audio"
	StageProcessing = "stem_processing"
	StageMapping    = "mapping_transcript"
	StageFinalizing = "finalizing"
)

// Payload is the translation job's input, written by the gateway at submit
// time. All file references are paths on the shared volume.
type Payload struct {
	AudioPath        string `json:"audio_path"`
	LyricsPath       string `json:"lyrics_path"`
	StoredAudioName  string `json:"stored_audio_name"`
	OriginalFilename string `json:"original_filename"`
}

// CleanupPayload names the artifacts a finished job leaves behind.
// The persisted audio is deliberately absent: it is retained for playback
// until the client deletes it through the gateway.
type CleanupPayload struct {
	LyricsPath    string `json:"lyrics_path"`
	AlignmentPath string `json:"alignment_path"`
	StemsDir      string `json:"stems_dir"`
}

// Job is the broker-side view of a translation job
type Job struct {
	ID            string     `json:"id"`
	Status        Status     `json:"status"`
	ProgressStage string     `json:"progress_stage,omitempty"`
	ExcInfo       string     `json:"exc_info,omitempty"`
	Payload       Payload    `json:"payload"`
	Result        *Result    `json:"result,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// MappedWord is one lyric token with its aligned interval. Start and End are
// nil for tokens the aligner never matched.
type MappedWord struct {
	Word  string   `json:"word"`
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

// MappedLine is one lyric line with per-word timing and the line envelope
type MappedLine struct {
	LineText      string       `json:"line_text"`
	Words         []MappedWord `json:"words"`
	LineStartTime *float64     `json:"line_start_time"`
	LineEndTime   *float64     `json:"line_end_time"`
}

// F0Series is a per-stem pitch curve. F0Values holds nil for unvoiced
// analysis frames; Times and F0Values always have identical length.
type F0Series struct {
	Times        []float64  `json:"times"`
	F0Values     []*float64 `json:"f0_values"`
	TimeInterval float64    `json:"time_interval"`
}

// Result is the payload returned to pollers once a job finishes.
// F0Analysis maps instrument name to an F0Series, null, or an in-band
// {error, info} report; VolumeAnalysis and DrumAnalysis follow the same
// degraded-in-band convention.
type Result struct {
	MappedResult     []MappedLine   `json:"mapped_result"`
	F0Analysis       map[string]any `json:"f0_analysis"`
	VolumeAnalysis   any            `json:"volume_analysis,omitempty"`
	DrumAnalysis     any            `json:"drum_analysis,omitempty"`
	AudioURL         string         `json:"audio_url"`
	OriginalFilename string         `json:"original_filename"`
}
