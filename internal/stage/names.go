package stage

// Name identifies a pipeline stage by its canonical string form, used as
// the PipelineRun.Stage column value and as a ContentArtifact.ArtifactType
// discriminator.
type Name string

const (
	Download   Name = "download"
	Transcribe Name = "transcribe"
	Correct    Name = "correct"
	Translate  Name = "translate"
	Adapt      Name = "adapt"
	Chapterize Name = "chapterize"
	ImageGen   Name = "imagegen"
	TTS        Name = "tts"
	Render     Name = "render"
	Publish    Name = "publish"

	ReviewGate1 Name = "review_gate_1"
	ReviewGate2 Name = "review_gate_2"
	ReviewGate3 Name = "review_gate_3"
)

// Ordered is the fixed, build-time stage-graph topology in execution order.
// Review gates are not separate executor steps; they are checkpoints the
// executor consults before advancing past Correct, Adapt, and Render.
var Ordered = []Name{
	Download,
	Transcribe,
	Correct,
	Translate,
	Adapt,
	Chapterize,
	ImageGen,
	TTS,
	Render,
	Publish,
}

// String satisfies fmt.Stringer so Name prints without a conversion.
func (n Name) String() string { return string(n) }
