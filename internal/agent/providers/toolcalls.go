package providers

import (
	"encoding/json"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aipp-workbench/engine/pkg/models"
)

// toolCallAssembler stitches Chat Completions tool-call deltas back into
// whole calls. The id and name arrive on the first delta for an index;
// arguments arrive as string fragments across many deltas.
type toolCallAssembler struct {
	byIndex map[int]*partialCall
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{byIndex: make(map[int]*partialCall)}
}

func (a *toolCallAssembler) add(deltas []openai.ToolCall) {
	for _, d := range deltas {
		index := 0
		if d.Index != nil {
			index = *d.Index
		}
		pc := a.byIndex[index]
		if pc == nil {
			pc = &partialCall{}
			a.byIndex[index] = pc
		}
		if d.ID != "" {
			pc.id = d.ID
		}
		if d.Function.Name != "" {
			pc.name = d.Function.Name
		}
		pc.args.WriteString(d.Function.Arguments)
	}
}

// finished returns the completed calls in index order, skipping partials
// that never received an id or name.
func (a *toolCallAssembler) finished() []*models.ToolCall {
	indexes := make([]int, 0, len(a.byIndex))
	for i := range a.byIndex {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var out []*models.ToolCall
	for _, i := range indexes {
		pc := a.byIndex[i]
		if pc.id == "" || pc.name == "" {
			continue
		}
		out = append(out, &models.ToolCall{
			ID:    pc.id,
			Name:  pc.name,
			Input: json.RawMessage(pc.args.String()),
		})
	}
	return out
}

func (a *toolCallAssembler) reset() {
	a.byIndex = make(map[int]*partialCall)
}
