package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/phrazzld/judith/pkg/model"
)

const memorySeparator = "\n\n###\n\n"

// RenderTriggered renders a recall result as the trace stored on reflections:
// "(score) :: createdAt :: kind:\ntext" blocks separated by "###"
func RenderTriggered(scored []*model.ScoredMemory) string {
	blocks := make([]string, 0, len(scored))
	for _, s := range scored {
		blocks = append(blocks, fmt.Sprintf("(%v) :: %s :: %s:\n%s",
			s.Score, s.Memory.CreatedAt.Format(time.RFC1123Z), s.Memory.Kind, s.Memory.Text))
	}
	return strings.Join(blocks, memorySeparator)
}

// FormatMemories renders recalled memories for a downstream prompt without scores
func FormatMemories(scored []*model.ScoredMemory) string {
	blocks := make([]string, 0, len(scored))
	for _, s := range scored {
		blocks = append(blocks, fmt.Sprintf("%s :: %s:\n%s",
			s.Memory.CreatedAt.Format(time.RFC1123Z), s.Memory.Kind, s.Memory.Text))
	}
	return strings.Join(blocks, memorySeparator)
}
