package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/illustration-analyzer/internal/common"
)

// NarratorConfig tunes the commentary call.
type NarratorConfig struct {
	Temperature float32
}

type narrator struct {
	c      Completer
	cfg    NarratorConfig
	logger *slog.Logger
}

// NewNarrator builds a Narrator on top of c. With a nil Completer it returns the
// deterministic template commentary.
func NewNarrator(c Completer, cfg NarratorConfig, logger *slog.Logger) Narrator {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		return TemplateNarrator{}
	}
	return &narrator{c: c, cfg: cfg, logger: logger}
}

func (n *narrator) Narrate(ctx context.Context, req NarrativeRequest) (string, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, n.logger)
	log.Debug("llm.narrate.start", "provider", n.c.Name(), "product", req.ProductName)

	content, err := n.c.Complete(ctx, CompletionRequest{
		User:        BuildNarrativePrompt(req),
		Temperature: n.cfg.Temperature,
	})
	if err != nil {
		log.Error("llm.narrate.failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("narrative completion: %w", err)
	}
	text := MarkdownToPlain(content)
	if text == "" {
		return "", common.NewAppError(common.CodeUpstream, "empty narrative", common.ErrUpstream)
	}
	log.Info("llm.narrate.ok", "chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

// TemplateNarrator writes a fixed-form commentary from the figures alone.
// It is used when no provider is configured and as the fallback when the
// provider fails.
type TemplateNarrator struct{}

func (TemplateNarrator) Narrate(_ context.Context, req NarrativeRequest) (string, error) {
	return TemplateNarrative(req), nil
}

// TemplateNarrative renders the fallback commentary.
func TemplateNarrative(req NarrativeRequest) string {
	name := strings.TrimSpace(req.ProductName)
	if name == "" {
		name = "该产品"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "“%s”%s，IRR约在%s~%s，年均现金价值增长约%s。",
		name, paybackPhrase(req.Payback),
		percentOrUnknown(req.IRRMin), percentOrUnknown(req.IRRMax),
		percentOrUnknown(req.AvgAnnualGrowth))

	switch {
	case req.Payback == nil:
		b.WriteString("演示期内现金价值未覆盖已交保费，提前退保会损失本金，更适合只看重保障功能的人群。")
	case *req.Payback > 10:
		b.WriteString("回本周期较长，前期退保损失明显，适合资金长期闲置、不会中途动用的人群。")
	default:
		b.WriteString("回本相对较快，资金灵活性较好。")
	}
	if req.IRRMax != nil {
		if *req.IRRMax >= 3 {
			b.WriteString("长期持有收益较稳健，适合做养老或子女教育金等长期储蓄规划。")
		} else {
			b.WriteString("长期收益率偏低，更适合追求资金安全、风险偏好较低的人群。")
		}
	}
	return b.String()
}
