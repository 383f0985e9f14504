package extraction

import (
	"encoding/json"
	"strings"

	"github.com/prasetyawan/billing-extractor-service/internal/domain"
)

// ParseResponse turns the model's raw text into a partially-populated
// ExtractedPageInfo. It never fails: malformed text yields an all-empty
// record so one bad image cannot abort a whole batch.
func ParseResponse(raw string) domain.ExtractedPageInfo {
	cleaned := stripCodeFence(raw)

	var info domain.ExtractedPageInfo
	if err := json.Unmarshal([]byte(cleaned), &info); err != nil {
		return domain.ExtractedPageInfo{}
	}
	return info
}

// stripCodeFence removes a surrounding markdown code fence when present:
// the first and last lines are dropped, the rest rejoined
func stripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}

	lines := strings.Split(cleaned, "\n")
	if len(lines) < 2 {
		return cleaned
	}
	return strings.Join(lines[1:len(lines)-1], "\n")
}
