// File path: internal/vector/chunker.go
package vector

import (
	"fmt"

	"github.com/codeproof/codeproof/internal/model"
)

const (
	// defaultMinLines is the smallest symbol span worth embedding on its own.
	defaultMinLines = 10
	// windowLines / windowOverlap shape the sliding windows cut from very
	// large symbols.
	windowLines   = 40
	windowOverlap = 10
)

// BuildChunks turns a generation's symbols into embedding chunks. Symbols
// spanning at least minLines become one chunk; symbols longer than a window
// are additionally split into overlapping windows so a query can land inside
// a large class body. Chunk identity (repo, file, start, end) is unique.
func BuildChunks(repoID int64, symbols []model.Symbol, minLines int) []model.Chunk {
	if minLines <= 0 {
		minLines = defaultMinLines
	}
	seen := make(map[string]struct{})
	var chunks []model.Chunk
	add := func(chunk model.Chunk) {
		key := fmt.Sprintf("%s:%d:%d", chunk.FilePath, chunk.StartLine, chunk.EndLine)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		chunks = append(chunks, chunk)
	}
	for _, symbol := range symbols {
		span := symbol.EndLine - symbol.StartLine + 1
		if span < minLines {
			continue
		}
		text := symbol.SearchText
		if text == "" {
			text = symbol.BuildSearchText()
		}
		base := model.Chunk{
			RepoID:        repoID,
			FilePath:      symbol.FilePath,
			StartLine:     symbol.StartLine,
			EndLine:       symbol.EndLine,
			SymbolKind:    string(symbol.Kind),
			QualifiedName: symbol.QualifiedName,
			Text:          text,
		}
		if span <= windowLines {
			add(base)
			continue
		}
		for start := symbol.StartLine; start <= symbol.EndLine; start += windowLines - windowOverlap {
			end := start + windowLines - 1
			if end > symbol.EndLine {
				end = symbol.EndLine
			}
			window := base
			window.StartLine = start
			window.EndLine = end
			add(window)
			if end == symbol.EndLine {
				break
			}
		}
	}
	return chunks
}
