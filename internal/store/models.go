package store

import "time"

// Status is an episode's position in the pipeline state machine. Values are
// totally ordered per their declaration order below; callers compare via
// StatusRank, not string comparison.
type Status string

const (
	StatusNew              Status = "NEW"
	StatusDownloaded       Status = "DOWNLOADED"
	StatusTranscribed      Status = "TRANSCRIBED"
	StatusCorrected        Status = "CORRECTED"
	StatusTranslated       Status = "TRANSLATED"
	StatusAdapted          Status = "ADAPTED"
	StatusChapterized      Status = "CHAPTERIZED"
	StatusImagesGenerated  Status = "IMAGES_GENERATED"
	StatusTTSDone          Status = "TTS_DONE"
	StatusRendered         Status = "RENDERED"
	StatusApproved         Status = "APPROVED"
	StatusPublished        Status = "PUBLISHED"
	StatusFailed           Status = "FAILED"
	StatusCostLimit        Status = "COST_LIMIT"
)

// statusRank gives the monotonic total order an episode advances through.
// FAILED and COST_LIMIT are terminal but orthogonal to the order and are not
// ranked; callers must check for them explicitly before consulting StatusRank.
var statusRank = map[Status]int{
	StatusNew:             0,
	StatusDownloaded:      1,
	StatusTranscribed:     2,
	StatusCorrected:       3,
	StatusTranslated:      4,
	StatusAdapted:         5,
	StatusChapterized:     6,
	StatusImagesGenerated: 7,
	StatusTTSDone:         8,
	StatusRendered:        9,
	StatusApproved:        10,
	StatusPublished:       11,
}

// StatusRank returns the position of s in the monotonic total order and
// whether s participates in that order at all (FAILED/COST_LIMIT do not).
func StatusRank(s Status) (int, bool) {
	rank, ok := statusRank[s]
	return rank, ok
}

// IsTerminal reports whether s ends the pipeline for an episode.
func IsTerminal(s Status) bool {
	return s == StatusPublished || s == StatusFailed || s == StatusCostLimit
}

// ActionablePendingStatuses are the statuses the batch selector's Pending
// mode considers eligible for pickup.
var ActionablePendingStatuses = []Status{
	StatusNew,
	StatusDownloaded,
	StatusTranscribed,
	StatusCorrected,
	StatusTranslated,
	StatusAdapted,
	StatusChapterized,
	StatusImagesGenerated,
	StatusTTSDone,
	StatusRendered,
	StatusApproved,
}

// AllStatuses lists every status an episode can occupy, in pipeline order
// followed by the two terminal failure states. Used by the CLI status
// command to report counts across the whole table.
var AllStatuses = []Status{
	StatusNew,
	StatusDownloaded,
	StatusTranscribed,
	StatusCorrected,
	StatusTranslated,
	StatusAdapted,
	StatusChapterized,
	StatusImagesGenerated,
	StatusTTSDone,
	StatusRendered,
	StatusApproved,
	StatusPublished,
	StatusFailed,
	StatusCostLimit,
}

// Episode is the unit of work flowing through the pipeline.
type Episode struct {
	ID                 string
	Status             Status
	PipelineVersion    int
	ErrorMessage       string
	SourceURI          string
	YouTubeVideoID     string
	PublishedAtYouTube *time.Time
	ReviewStatus       string
	ProgressMessage    string
	LastHeartbeat      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RunStatus is the lifecycle state of a PipelineRun row.
type RunStatus string

const (
	RunRunning RunStatus = "RUNNING"
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
	RunSkipped RunStatus = "SKIPPED"
)

// PipelineRun is one attempt of one stage against one episode.
type PipelineRun struct {
	ID                int64
	RunID             string
	EpisodeID         string
	Stage             string
	Status            RunStatus
	StartedAt         time.Time
	FinishedAt        *time.Time
	InputTokens       int64
	OutputTokens      int64
	EstimatedCostUSD  float64
	ErrorMessage      string
}

// ContentArtifact is a persisted, hash-addressed output of a stage.
type ContentArtifact struct {
	ID              int64
	EpisodeID       string
	ArtifactType    string
	FilePath        string
	PromptVersionID *int64
	InputTokens     int64
	OutputTokens    int64
	CostUSD         float64
	PromptHash      string
	CreatedAt       time.Time
}

// PromptVersion is an immutable snapshot of a named prompt template.
type PromptVersion struct {
	ID           int64
	Name         string
	Version      int
	ContentHash  string
	TemplatePath string
	Model        string
	ModelParams  string // JSON-encoded
	IsDefault    bool
	CreatedAt    time.Time
	Notes        string
}

// ReviewTaskStatus is the lifecycle state of a ReviewTask.
type ReviewTaskStatus string

const (
	ReviewPending           ReviewTaskStatus = "PENDING"
	ReviewInReview          ReviewTaskStatus = "IN_REVIEW"
	ReviewApproved          ReviewTaskStatus = "APPROVED"
	ReviewRejected          ReviewTaskStatus = "REJECTED"
	ReviewChangesRequested  ReviewTaskStatus = "CHANGES_REQUESTED"
)

// activeReviewStatuses are the statuses that count as "an active task" for
// the at-most-one-active-per-episode invariant.
var activeReviewStatuses = map[ReviewTaskStatus]bool{
	ReviewPending:  true,
	ReviewInReview: true,
}

// IsActiveReviewStatus reports whether s counts as an active (undecided)
// review task status.
func IsActiveReviewStatus(s ReviewTaskStatus) bool {
	return activeReviewStatuses[s]
}

// ReviewTask is a request for human decision at a review gate.
type ReviewTask struct {
	ID              int64
	EpisodeID       string
	Stage           string
	Status          ReviewTaskStatus
	ArtifactPaths   []string
	DiffPath        string
	ArtifactHash    string
	ReviewerNotes   string
	PromptVersionID *int64
	CreatedBy       string
	CreatedAt       time.Time
	ReviewedAt      *time.Time
}

// ReviewDecisionKind enumerates the terminal action taken on a ReviewTask.
type ReviewDecisionKind string

const (
	DecisionApproved         ReviewDecisionKind = "APPROVED"
	DecisionRejected         ReviewDecisionKind = "REJECTED"
	DecisionChangesRequested ReviewDecisionKind = "CHANGES_REQUESTED"
)

// ReviewDecision is an append-only record of an action on a ReviewTask.
type ReviewDecision struct {
	ID           int64
	ReviewTaskID int64
	Decision     ReviewDecisionKind
	Notes        string
	DecidedBy    string
	DecidedAt    time.Time
}

// MediaAssetType enumerates the kind of file a MediaAsset wraps.
type MediaAssetType string

const (
	AssetImage MediaAssetType = "IMAGE"
	AssetAudio MediaAssetType = "AUDIO"
	AssetVideo MediaAssetType = "VIDEO"
)

// MediaAsset is a produced media file with duration/size metadata.
type MediaAsset struct {
	ID              int64
	EpisodeID       string
	ChapterID       string
	AssetType       MediaAssetType
	FilePath        string
	MimeType        string
	SizeBytes       int64
	DurationSeconds *float64
	Metadata        string // JSON-encoded opaque map
	PromptVersionID *int64
	CreatedAt       time.Time
}
