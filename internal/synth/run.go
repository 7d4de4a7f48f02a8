package synth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strikezor/SDMaker/internal/intake"
	"github.com/Strikezor/SDMaker/internal/kb"
	"github.com/Strikezor/SDMaker/internal/llm"
	"github.com/Strikezor/SDMaker/internal/schema"
)

// State is the position of a run in the synthesis state machine.
type State string

const (
	StateIdle              State = "idle"
	StateValidating        State = "validating"
	StateValidationFailed  State = "validation_failed"
	StateGapDetecting      State = "gap_detecting"
	StateAwaitingUserInput State = "awaiting_user_input"
	StateSynthesizing      State = "synthesizing"
	StateSynthesized       State = "synthesized"
	StateRefining          State = "refining"
	StateCommitted         State = "committed"
)

// Run tracks the state of one synthesis session. All stages of a run
// execute sequentially; the mutex protects against concurrent HTTP
// access, not concurrent stages.
type Run struct {
	mu sync.Mutex

	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time

	state       State
	docs        []intake.Document
	fileErrors  []intake.FileError
	validation  []ValidationResult
	gaps        []GapItem
	doc         *Document
	parentCR    string
	committedCR string
	warnings    []string
}

// NewRun creates a run in the Idle state.
func NewRun() *Run {
	now := time.Now()
	return &Run{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		state:     StateIdle,
	}
}

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// AddFiles normalizes a batch of uploads into the run. Allowed while
// Idle, and after a validation failure to let the user resupply
// inputs, which restarts the run from the top.
func (r *Run) AddFiles(files []intake.File) ([]intake.Document, []intake.FileError, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateIdle && r.state != StateValidationFailed {
		return nil, nil, fmt.Errorf("cannot add files in state %s", r.state)
	}

	docs, errs := intake.NormalizeAll(files)
	r.docs = append(r.docs, docs...)
	r.fileErrors = append(r.fileErrors, errs...)

	// Resupplying inputs clears the failed validation verdict.
	if r.state == StateValidationFailed {
		r.state = StateIdle
		r.validation = nil
	}
	r.UpdatedAt = time.Now()
	return docs, errs, nil
}

// SetParentCR records the CR number whose document should seed the
// synthesis context. Lookup happens at context resolution.
func (r *Run) SetParentCR(cr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parentCR = strings.TrimSpace(cr)
	r.UpdatedAt = time.Now()
}

// ResolveGaps applies user answers to open gap questions and is the
// resume operation for the AwaitingUserInput pause. An answer of
// "not applicable" is as valid as any other; only blank answers leave
// a gap unresolved. Answers for unknown section ids are ignored.
func (r *Run) ResolveGaps(answers map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateAwaitingUserInput {
		return fmt.Errorf("cannot resolve gaps in state %s", r.state)
	}
	for i := range r.gaps {
		answer, ok := answers[r.gaps[i].SectionID]
		if !ok || strings.TrimSpace(answer) == "" {
			continue
		}
		r.gaps[i].Answer = strings.TrimSpace(answer)
		r.gaps[i].Resolved = true
	}
	r.UpdatedAt = time.Now()
	return nil
}

// beginStage moves the run into an in-flight state if the current
// state is one of the allowed origins. It returns the origin so a
// failed stage can be rolled back to it.
func (r *Run) beginStage(inflight State, from ...State) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range from {
		if r.state == s {
			origin := r.state
			r.state = inflight
			r.UpdatedAt = time.Now()
			return origin, nil
		}
	}
	return "", fmt.Errorf("cannot enter %s from state %s", inflight, r.state)
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	r.UpdatedAt = time.Now()
}

func (r *Run) addWarnings(ws []string) {
	if len(ws) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, ws...)
	r.UpdatedAt = time.Now()
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID          string             `json:"run_id"`
	State       State              `json:"state"`
	Documents   []intake.Document  `json:"documents"`
	FileErrors  []intake.FileError `json:"file_errors,omitempty"`
	Validation  []ValidationResult `json:"validation,omitempty"`
	Gaps        []GapItem          `json:"gaps,omitempty"`
	ParentCR    string             `json:"parent_cr,omitempty"`
	CommittedCR string             `json:"committed_cr,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Document    *Document          `json:"document,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := RunSnapshot{
		ID:          r.ID,
		State:       r.state,
		Documents:   append([]intake.Document(nil), r.docs...),
		FileErrors:  append([]intake.FileError(nil), r.fileErrors...),
		Validation:  append([]ValidationResult(nil), r.validation...),
		Gaps:        append([]GapItem(nil), r.gaps...),
		ParentCR:    r.parentCR,
		CommittedCR: r.committedCR,
		Warnings:    append([]string(nil), r.warnings...),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.doc != nil {
		doc := *r.doc
		snap.Document = &doc
	}
	return snap
}

// DocumentMarkdown returns the generated markdown, if any.
func (r *Run) DocumentMarkdown() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return "", false
	}
	return r.doc.Markdown, true
}

// Pipeline drives runs through validation, gap detection, synthesis,
// refinement and commit. Every stage is a blocking call; the state
// machine either advances on success or holds at the prior state on
// failure.
type Pipeline struct {
	tpl         *schema.Template
	store       *kb.Store
	validator   *Validator
	detector    *GapDetector
	synthesizer *Synthesizer
	refiner     *Refiner
	log         *slog.Logger
}

// PipelineConfig bundles the tunables the pipeline needs.
type PipelineConfig struct {
	ValidationSnippet int
	GapSnippet        int
}

func NewPipeline(tpl *schema.Template, store *kb.Store, inf llm.Inferencer, cfg PipelineConfig, log *slog.Logger) *Pipeline {
	return &Pipeline{
		tpl:         tpl,
		store:       store,
		validator:   NewValidator(inf, cfg.ValidationSnippet),
		detector:    NewGapDetector(inf, cfg.GapSnippet),
		synthesizer: NewSynthesizer(inf),
		refiner:     NewRefiner(inf),
		log:         log,
	}
}

// Template returns the session template.
func (p *Pipeline) Template() *schema.Template { return p.tpl }

// Store returns the knowledge base store.
func (p *Pipeline) Store() *kb.Store { return p.store }

// Analyze validates the run's intake documents and detects gaps.
// Invalid inputs leave the run in ValidationFailed until the user
// resupplies them. When every reported gap already has source
// material, the run proceeds straight into synthesis.
func (p *Pipeline) Analyze(ctx context.Context, run *Run) error {
	origin, err := p.beginAnalyze(run)
	if err != nil {
		return err
	}

	log := p.log.With("run_id", run.ID)

	docs, results := p.validator.ValidateAll(ctx, p.snapshotDocs(run))
	failed := false
	for _, res := range results {
		if !res.Valid {
			failed = true
			log.Warn("category failed validation", "category", res.Category, "reason", res.Reason)
		}
	}

	run.mu.Lock()
	run.docs = docs
	run.validation = results
	run.UpdatedAt = time.Now()
	run.mu.Unlock()

	if failed {
		run.setState(StateValidationFailed)
		return nil
	}

	run.setState(StateGapDetecting)
	gaps, err := p.detector.Detect(ctx, p.tpl, docs)
	if err != nil {
		log.Error("gap detection failed", "error", err)
		run.setState(origin)
		return err
	}

	run.mu.Lock()
	run.gaps = gaps
	run.state = StateAwaitingUserInput
	run.UpdatedAt = time.Now()
	run.mu.Unlock()

	log.Info("analysis complete", "gaps", len(gaps))
	if len(gaps) == 0 {
		return p.Synthesize(ctx, run)
	}
	return nil
}

func (p *Pipeline) beginAnalyze(run *Run) (State, error) {
	origin, err := run.beginStage(StateValidating, StateIdle)
	if err != nil {
		return "", err
	}

	run.mu.Lock()
	hasDocs := len(run.docs) > 0
	run.mu.Unlock()
	if !hasDocs {
		run.setState(origin)
		return "", fmt.Errorf("no intake documents uploaded")
	}
	return origin, nil
}

// Synthesize resolves the context and generates the document. Valid
// once every reported gap is resolved; a failed attempt returns the
// run to AwaitingUserInput so the user can re-trigger.
func (p *Pipeline) Synthesize(ctx context.Context, run *Run) error {
	run.mu.Lock()
	docs := append([]intake.Document(nil), run.docs...)
	gaps := append([]GapItem(nil), run.gaps...)
	parentCR := run.parentCR
	run.mu.Unlock()

	sctx, err := Resolve(p.tpl, docs, gaps, p.store, parentCR)
	if err != nil {
		return err
	}

	origin, err := run.beginStage(StateSynthesizing, StateAwaitingUserInput)
	if err != nil {
		return err
	}
	run.addWarnings(sctx.Warnings)

	doc, err := p.synthesizer.Synthesize(ctx, p.tpl, sctx)
	if err != nil {
		p.log.Error("synthesis failed", "run_id", run.ID, "error", err)
		run.setState(origin)
		return err
	}

	run.mu.Lock()
	run.doc = doc
	run.state = StateSynthesized
	run.UpdatedAt = time.Now()
	run.mu.Unlock()

	p.log.Info("document synthesized", "run_id", run.ID, "chars", len(doc.Markdown))
	return nil
}

// Refine applies an edit instruction to the generated document. On
// failure the prior document and state are preserved.
func (p *Pipeline) Refine(ctx context.Context, run *Run, instruction string) error {
	origin, err := run.beginStage(StateRefining, StateSynthesized)
	if err != nil {
		return err
	}

	run.mu.Lock()
	doc := *run.doc
	run.mu.Unlock()

	if err := p.refiner.Refine(ctx, &doc, instruction); err != nil {
		p.log.Error("refinement failed", "run_id", run.ID, "error", err)
		run.setState(origin)
		return err
	}

	run.mu.Lock()
	run.doc = &doc
	run.state = StateSynthesized
	run.UpdatedAt = time.Now()
	run.mu.Unlock()

	p.log.Info("document refined", "run_id", run.ID, "revision", doc.RevisionCount)
	return nil
}

// Commit stores the generated document in the knowledge base under the
// given CR number, allocating the next one when none is supplied. A
// persistence failure or CR conflict leaves the run re-committable.
func (p *Pipeline) Commit(run *Run, crNumber, title string) (kb.Entry, error) {
	run.mu.Lock()
	if run.state != StateSynthesized {
		state := run.state
		run.mu.Unlock()
		return kb.Entry{}, fmt.Errorf("cannot commit in state %s", state)
	}
	doc := *run.doc
	parentCR := run.parentCR
	run.mu.Unlock()

	crNumber = strings.TrimSpace(crNumber)
	if crNumber == "" {
		crNumber = p.store.AllocateNextCRNumber()
	}
	if title == "" {
		title = "Solution Document " + crNumber
	}

	entry := kb.Entry{
		CRNumber:  crNumber,
		Title:     title,
		CreatedAt: time.Now().UTC(),
		ParentCR:  parentCR,
		Document: kb.Document{
			Markdown:      doc.Markdown,
			SchemaVersion: doc.SchemaVersion,
			RevisionCount: doc.RevisionCount,
		},
	}
	if err := p.store.Commit(entry); err != nil {
		p.log.Error("commit failed", "run_id", run.ID, "cr_number", crNumber, "error", err)
		return kb.Entry{}, err
	}

	run.mu.Lock()
	run.committedCR = crNumber
	run.state = StateCommitted
	run.UpdatedAt = time.Now()
	run.mu.Unlock()

	p.log.Info("document committed", "run_id", run.ID, "cr_number", crNumber)
	return entry, nil
}

func (p *Pipeline) snapshotDocs(run *Run) []intake.Document {
	run.mu.Lock()
	defer run.mu.Unlock()
	return append([]intake.Document(nil), run.docs...)
}

// Registry is a thread-safe in-memory run registry with TTL eviction.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*Run
	ttl  time.Duration
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		runs: make(map[string]*Run),
		ttl:  ttl,
	}
}

func (reg *Registry) Put(run *Run) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.runs[run.ID] = run
}

func (reg *Registry) Get(id string) *Run {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.runs[id]
}

// Cleanup removes runs idle longer than the TTL.
func (reg *Registry) Cleanup() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	now := time.Now()
	for id, run := range reg.runs {
		run.mu.Lock()
		idle := now.Sub(run.UpdatedAt)
		run.mu.Unlock()
		if idle > reg.ttl {
			delete(reg.runs, id)
		}
	}
}
