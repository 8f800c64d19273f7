package prompt

import (
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// tableSeparator splits a schema document into per-table blocks.
const tableSeparator = "\n\nTable: "

// Budget caps the token size of generate prompts by dropping trailing table
// blocks from the schema document.
type Budget struct {
	count     func(text string) int
	maxTokens int
	logger    *slog.Logger
}

// loadEncoding resolves the tokenizer for model. tiktoken-go fetches BPE
// ranks over the network on first use, so this can fail on offline hosts.
var loadEncoding = func(model string) (*tiktoken.Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return enc, nil
	}
	return tiktoken.GetEncoding("cl100k_base")
}

// NewBudget creates a budget of maxTokens for prompts sent to model. Unknown
// models fall back to the cl100k_base encoding. A maxTokens of zero or less
// returns a nil Budget, which never truncates. So does a tokenizer that
// cannot be loaded; that case is logged as a warning.
func NewBudget(model string, maxTokens int, logger *slog.Logger) *Budget {
	if maxTokens <= 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	enc, err := loadEncoding(model)
	if err != nil {
		logger.Warn("tokenizer unavailable, prompt budget disabled", "model", model, "error", err)
		return nil
	}
	return newBudget(func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, maxTokens, logger)
}

func newBudget(count func(string) int, maxTokens int, logger *slog.Logger) *Budget {
	if logger == nil {
		logger = slog.Default()
	}
	return &Budget{count: count, maxTokens: maxTokens, logger: logger}
}

// Count returns the token count for text.
func (b *Budget) Count(text string) int {
	if b == nil {
		return 0
	}
	return b.count(text)
}

// Max returns the configured ceiling, or zero for an unlimited budget.
func (b *Budget) Max() int {
	if b == nil {
		return 0
	}
	return b.maxTokens
}

// FitSchema returns the longest prefix of whole table blocks from schema for
// which GenerateSQL(prefix, ask) stays within budget, and how many blocks were
// dropped. If no block fits the result is empty.
func (b *Budget) FitSchema(schema, ask string) (string, int) {
	if b == nil || b.Count(GenerateSQL(schema, ask)) <= b.maxTokens {
		return schema, 0
	}

	blocks := splitTables(schema)
	overhead := b.Count(GenerateSQL("", ask))
	used := overhead
	kept := 0
	for i, block := range blocks {
		cost := b.Count(block)
		if i > 0 {
			cost += b.Count("\n\n")
		}
		if used+cost > b.maxTokens {
			break
		}
		used += cost
		kept++
	}

	dropped := len(blocks) - kept
	b.logger.Warn("schema truncated to fit prompt budget",
		"max_tokens", b.maxTokens, "tables_kept", kept, "tables_dropped", dropped)
	return strings.Join(blocks[:kept], "\n\n"), dropped
}

// splitTables cuts a document built by schema.Introspector.Document back into
// its table blocks.
func splitTables(schema string) []string {
	parts := strings.Split(schema, tableSeparator)
	for i := 1; i < len(parts); i++ {
		parts[i] = "Table: " + parts[i]
	}
	return parts
}
