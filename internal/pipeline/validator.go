package pipeline

import (
	"log/slog"
	"time"

	"github.com/IshaanNene/ForumHarvest/internal/config"
	"github.com/IshaanNene/ForumHarvest/internal/types"
)

// ValidatorOptions wires the run-scoped collaborators of a Validator.
type ValidatorOptions struct {
	Config config.ValidationConfig
	// Window enables the date-range stage when non-nil.
	Window *types.Window
	Dedup  HashClaimer
	Now    func() time.Time
	RunID  string
}

// Validator turns raw extracted posts into normalized posts or rejections.
type Validator struct {
	pipeline *Pipeline
	runID    string
}

// NewValidator builds the standard chain. Checks run in this order:
// missing fields, cleaned length, excluded patterns, word count, then
// timestamp normalization, the date window and the run-wide duplicate check.
func NewValidator(opts ValidatorOptions, logger *slog.Logger) *Validator {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	p := New(logger)
	p.Use(&RequiredFieldsMiddleware{})
	p.Use(&CleanMiddleware{})
	p.Use(&LengthMiddleware{Min: opts.Config.MinContentLength, Max: opts.Config.MaxContentLength})
	p.Use(NewExcludePatternMiddleware(opts.Config.ExcludePatterns))
	p.Use(&WordCountMiddleware{Min: opts.Config.MinWords})
	p.Use(&DateNormalizeMiddleware{Now: opts.Now})
	if opts.Window != nil {
		p.Use(&DateRangeMiddleware{Window: *opts.Window})
	}
	p.Use(&DedupMiddleware{Claimer: opts.Dedup})

	return &Validator{pipeline: p, runID: opts.RunID}
}

// Validate runs raw through the chain. Exactly one return value is non-nil.
func (v *Validator) Validate(raw types.RawPost) (*types.Post, *types.Rejection) {
	return v.pipeline.Process(raw, v.runID)
}
