package agent

import (
	"context"
	"fmt"

	"github.com/convodesk/convodesk/llm"
	"github.com/convodesk/convodesk/types"
	"go.uber.org/zap"
)

// RouterConfig maps intent labels to handler names and sets the fallback
// policy.
type RouterConfig struct {
	// Intents maps a classification label to a handler name.
	Intents map[string]string `yaml:"intents" json:"intents"`

	// DefaultHandler receives low-confidence and unknown-label traffic.
	DefaultHandler string `yaml:"default_handler" json:"default_handler"`

	// EscalationHandler is never a first-contact target; classifications
	// pointing at it divert to the default handler.
	EscalationHandler string `yaml:"escalation_handler" json:"escalation_handler"`

	// ConfidenceThreshold is the minimum classification confidence required
	// to honor the classified target.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
}

// DefaultRouterConfig returns the built-in intent map for the four standard
// specialists.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Intents: map[string]string{
			"general_inquiry":   HandlerGeneral,
			"billing_issue":     HandlerSales,
			"purchase_interest": HandlerSales,
			"technical_issue":   HandlerTechnical,
			"account_issue":     HandlerGeneral,
			"complaint":         HandlerGeneral,
		},
		DefaultHandler:      HandlerGeneral,
		EscalationHandler:   HandlerEscalation,
		ConfidenceThreshold: 0.6,
	}
}

// Route is the router's verdict for one unowned turn.
type Route struct {
	Target     string
	Intent     string
	Confidence float64
}

// IntentRouter classifies a user message into a target handler. It is
// deterministic given identical input: all non-determinism lives in the
// classification provider, and every fallback (low confidence, unknown
// label, unavailable target, escalation target) breaks toward the configured
// default handler.
type IntentRouter struct {
	provider llm.Provider
	registry *Registry
	cfg      RouterConfig
	logger   *zap.Logger
}

// NewIntentRouter builds a router over the given provider and registry.
func NewIntentRouter(provider llm.Provider, registry *Registry, cfg RouterConfig, logger *zap.Logger) *IntentRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultHandler == "" {
		cfg.DefaultHandler = HandlerGeneral
	}
	if cfg.EscalationHandler == "" {
		cfg.EscalationHandler = HandlerEscalation
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.6
	}
	if len(cfg.Intents) == 0 {
		cfg.Intents = DefaultRouterConfig().Intents
	}
	return &IntentRouter{
		provider: provider,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "intent_router")),
	}
}

// Route classifies userText and returns an available target handler.
// Provider failures propagate unchanged; they are turn failures, not
// occasions for a silent default. Only classification quality problems (low
// confidence, unknown label, unavailable candidate) fall back to the default
// handler. An unavailable default is a RoutingError.
func (r *IntentRouter) Route(ctx context.Context, userText string, contextMsgs []types.Message) (*Route, error) {
	cls, err := r.provider.Classify(ctx, userText, contextMsgs)
	if err != nil {
		return nil, err
	}

	target, known := r.cfg.Intents[cls.Label]
	fallback := ""
	switch {
	case !known:
		fallback = "unknown_label"
	case cls.Confidence < r.cfg.ConfidenceThreshold:
		fallback = "low_confidence"
	case target == r.cfg.EscalationHandler:
		fallback = "escalation_not_first_contact"
	case !r.registry.IsAvailable(target):
		fallback = "target_unavailable"
	}
	if fallback != "" {
		r.logger.Debug("routing fell back to default",
			zap.String("label", cls.Label),
			zap.Float64("confidence", cls.Confidence),
			zap.String("candidate", target),
			zap.String("cause", fallback),
		)
		target = r.cfg.DefaultHandler
	}

	if !r.registry.IsAvailable(target) {
		return nil, types.NewError(types.ErrRouting,
			fmt.Sprintf("no available handler: default %q is unavailable", target)).
			WithHTTPStatus(503)
	}

	r.logger.Info("routed",
		zap.String("intent", cls.Label),
		zap.Float64("confidence", cls.Confidence),
		zap.String("target", target),
	)
	return &Route{Target: target, Intent: cls.Label, Confidence: cls.Confidence}, nil
}
