package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/VeloBillHQ/VeloBill/app/models"
)

// HeuristicSummaryGenerator derives evaluation content locally. It
// stands in for a hosted model behind the same interface.
type HeuristicSummaryGenerator struct{}

// NewHeuristicSummaryGenerator creates the default summary generator
func NewHeuristicSummaryGenerator() *HeuristicSummaryGenerator {
	return &HeuristicSummaryGenerator{}
}

// GenerateSummary produces a short description of the submitted code
func (g *HeuristicSummaryGenerator) GenerateSummary(ctx context.Context, code *models.Code) (string, error) {
	if code == nil || code.Code == "" {
		return "", fmt.Errorf("no code content to summarize")
	}

	lines := strings.Count(code.Code, "\n") + 1
	return fmt.Sprintf("Evaluated bike-program code %s: %d line(s), submitted by user %s.",
		code.ID, lines, code.UserID), nil
}
