package cascade

import "dubforge/internal/stage"

// Downstream is the fixed invalidation map: the stages that must be
// re-run when the key stage's output changes. Chapterize fans out to
// both chapter-parallel stages since each consumes the chapters document.
var Downstream = map[stage.Name][]stage.Name{
	stage.Correct:    {stage.Translate},
	stage.Translate:  {stage.Adapt},
	stage.Adapt:      {stage.Chapterize},
	stage.Chapterize: {stage.ImageGen, stage.TTS},
	stage.ImageGen:   {stage.Render},
	stage.TTS:        {stage.Render},
}

// Invalidated returns the full transitive closure of stages that must be
// re-run because from's output changed, in stage-graph order, excluding
// from itself.
func Invalidated(from stage.Name) []stage.Name {
	seen := make(map[stage.Name]bool)
	var walk func(stage.Name)
	walk = func(n stage.Name) {
		for _, next := range Downstream[n] {
			if seen[next] {
				continue
			}
			seen[next] = true
			walk(next)
		}
	}
	walk(from)
	var order []stage.Name
	for _, n := range stage.Ordered {
		if seen[n] {
			order = append(order, n)
		}
	}
	return order
}
