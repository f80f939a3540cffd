package retrieval

import (
	"strings"
)

// chunkSeparator splits a chunk-level hit ID into material ID and chunk
// suffix. Vector hits come back at chunk granularity; the pipeline ranks
// materials.
const chunkSeparator = "#"

// Promote collapses chunk-level hits to material level. The first chunk
// of a material keeps the material's rank position; the material's score
// is the maximum over its chunks. Input lists must be aligned.
func Promote(ids []string, scores []float64) ([]string, []float64) {
	if len(ids) == 0 {
		return nil, nil
	}

	outIDs := make([]string, 0, len(ids))
	outScores := make([]float64, 0, len(ids))
	position := make(map[string]int, len(ids))

	for i, id := range ids {
		materialID := id
		if sep := strings.Index(id, chunkSeparator); sep > 0 {
			materialID = id[:sep]
		}
		score := 0.0
		if i < len(scores) {
			score = scores[i]
		}

		if at, seen := position[materialID]; seen {
			if score > outScores[at] {
				outScores[at] = score
			}
			continue
		}
		position[materialID] = len(outIDs)
		outIDs = append(outIDs, materialID)
		outScores = append(outScores, score)
	}
	return outIDs, outScores
}
