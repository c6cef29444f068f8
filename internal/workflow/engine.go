// Package workflow implements the checkpointed claim-contestation state
// machine. A run executes stage transitions for one thread until it reaches a
// suspension point or a terminal stage, writing a checkpoint after every
// transition; suspension is logical, not thread-blocking, so the process may
// restart arbitrarily between suspension and resumption.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/claimclaw/contest-cli/internal/checkpoint"
	"github.com/claimclaw/contest-cli/internal/draft"
	"github.com/claimclaw/contest-cli/internal/escalate"
	"github.com/claimclaw/contest-cli/internal/evidence"
	"github.com/claimclaw/contest-cli/internal/model"
	"github.com/claimclaw/contest-cli/internal/moratorium"
	"github.com/claimclaw/contest-cli/internal/resilience"
)

// Config carries the engine's tunables.
type Config struct {
	// DraftRetry bounds retries of the drafting capability. Zero value uses
	// resilience defaults (3 attempts, 500ms initial backoff).
	DraftRetry resilience.RetryConfig

	// StageTimeout caps each external capability call. Zero means no cap.
	StageTimeout time.Duration
}

// Engine orchestrates claim contestation over the capability ports. One
// engine may run many threads concurrently; a single thread is only ever
// advanced by one writer at a time.
type Engine struct {
	cfg      Config
	store    checkpoint.Store
	evidence *evidence.Adapter
	drafter  draft.Drafter
	filer    escalate.Filer
}

// StartRequest describes a new contestation case.
type StartRequest struct {
	ClaimID       string
	Documents     model.DocumentSet
	Complainant   model.Complainant
	PolicyAgeHint float64
	DryRunPortal  bool
}

// ResumeSignal carries the external facts a resume delivers.
type ResumeSignal struct {
	// InsurerReplied completes a case waiting at AWAITING_RESPONSE.
	InsurerReplied bool

	// HumanConfirmed releases ESCALATING_PAUSED: the operator solved the
	// portal obstacle and submitted the complaint. Filing is not re-attempted.
	HumanConfirmed bool
}

// New creates an Engine over the given store and capability ports.
func New(cfg Config, store checkpoint.Store, extractor evidence.Extractor, drafter draft.Drafter, filer escalate.Filer) *Engine {
	if cfg.DraftRetry.MaxAttempts == 0 {
		cfg.DraftRetry = resilience.DefaultRetryConfig()
		cfg.DraftRetry.ShouldRetry = func(error) bool { return true }
		cfg.DraftRetry.OnRetry = resilience.RetryLogger("drafter", "draft_rebuttal")
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		evidence: evidence.NewAdapter(extractor),
		drafter:  drafter,
		filer:    filer,
	}
}

// Start creates a case for the claim and runs it until suspension or a
// terminal stage. The thread ID equals the claim ID.
func (e *Engine) Start(ctx context.Context, req StartRequest) (*model.ClaimCase, error) {
	if req.ClaimID == "" {
		return nil, eris.New("workflow: claim ID is required")
	}
	if missing := req.Documents.Missing(); len(missing) > 0 {
		return nil, eris.Wrapf(evidence.ErrMissingDocument, "%v", missing)
	}

	if prior, err := e.store.LoadLatest(ctx, req.ClaimID); err == nil {
		// A FAILED run may be restarted from scratch with resupplied
		// documents; any other existing run blocks a duplicate start.
		if prior.Case.Stage.Terminal() && prior.Case.Stage != model.StageFailed {
			return nil, eris.Wrapf(ErrWorkflowTerminated, "claim %s is %s", req.ClaimID, prior.Case.Stage)
		}
		if !prior.Case.Stage.Terminal() {
			return nil, eris.Wrapf(ErrCaseExists, "claim %s is at %s", req.ClaimID, prior.Case.Stage)
		}
	} else if !errors.Is(err, checkpoint.ErrNotFound) {
		return nil, eris.Wrap(err, "workflow: load prior state")
	}

	now := time.Now().UTC()
	cs := &model.ClaimCase{
		ClaimID:       req.ClaimID,
		Documents:     req.Documents,
		Complainant:   req.Complainant,
		PolicyAgeHint: req.PolicyAgeHint,
		DryRunPortal:  req.DryRunPortal,
		Stage:         model.StageInit,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	cs.AppendTimeline("Case created")
	if err := e.save(ctx, cs); err != nil {
		return nil, err
	}

	zap.L().Info("workflow started",
		zap.String("claim_id", cs.ClaimID),
		zap.Bool("dry_run_portal", cs.DryRunPortal),
	)
	return e.run(ctx, cs)
}

// Resume loads the latest checkpoint for the thread and continues from the
// recorded stage, applying the signal at suspension points.
func (e *Engine) Resume(ctx context.Context, threadID string, signal ResumeSignal) (*model.ClaimCase, error) {
	cp, err := e.store.LoadLatest(ctx, threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, eris.Wrapf(err, "workflow: no checkpoint for thread %s", threadID)
		}
		return nil, eris.Wrap(err, "workflow: load checkpoint")
	}

	cs := &cp.Case
	if cs.Stage.Terminal() {
		return nil, eris.Wrapf(ErrWorkflowTerminated, "claim %s is %s", threadID, cs.Stage)
	}

	zap.L().Info("workflow resumed",
		zap.String("claim_id", cs.ClaimID),
		zap.String("stage", string(cs.Stage)),
		zap.Int64("sequence_number", cp.SequenceNumber),
	)

	switch cs.Stage {
	case model.StageAwaitingResponse:
		if signal.InsurerReplied {
			cs.InsurerReplied = true
			cs.AppendTimeline("Insurer replied in time")
			return e.transition(ctx, cs, model.StageCompleted)
		}
		cs.AppendTimeline("No insurer reply, escalating")
		if _, err := e.transition(ctx, cs, model.StageEscalating); err != nil {
			return nil, err
		}

	case model.StageEscalatingPaused:
		if !signal.HumanConfirmed {
			return nil, eris.Wrapf(ErrAwaitingHuman, "claim %s", threadID)
		}
		cs.AppendTimeline("Human confirmed portal submission")
		return e.transition(ctx, cs, model.StageEscalated)
	}

	return e.run(ctx, cs)
}

// Abandon moves a non-terminal case to ABANDONED.
func (e *Engine) Abandon(ctx context.Context, threadID string) (*model.ClaimCase, error) {
	cp, err := e.store.LoadLatest(ctx, threadID)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, eris.Wrapf(err, "workflow: no checkpoint for thread %s", threadID)
		}
		return nil, eris.Wrap(err, "workflow: load checkpoint")
	}

	cs := &cp.Case
	if cs.Stage.Terminal() {
		return nil, eris.Wrapf(ErrWorkflowTerminated, "claim %s is %s", threadID, cs.Stage)
	}

	cs.AppendTimeline("Case abandoned by operator")
	return e.transition(ctx, cs, model.StageAbandoned)
}

// run advances the case until it suspends or terminates.
func (e *Engine) run(ctx context.Context, cs *model.ClaimCase) (*model.ClaimCase, error) {
	for !cs.Stage.Terminal() && !cs.Stage.Suspended() {
		var err error
		switch cs.Stage {
		case model.StageInit:
			_, err = e.transition(ctx, cs, model.StageAnalyzing)
		case model.StageAnalyzing:
			err = e.analyze(ctx, cs)
		case model.StageMoratoriumCheck:
			err = e.checkMoratorium(ctx, cs)
		case model.StageDrafting:
			err = e.draftRebuttal(ctx, cs)
		case model.StageEscalating:
			err = e.escalateCase(ctx, cs)
		default:
			err = eris.Errorf("workflow: no handler for stage %s", cs.Stage)
		}
		if err != nil {
			return nil, err
		}
	}
	return cs, nil
}

// analyze runs document extraction. Extraction failure is terminal and not
// retried: the caller must resupply documents and restart.
func (e *Engine) analyze(ctx context.Context, cs *model.ClaimCase) error {
	if !cs.AnalysisDone {
		stageCtx, cancel := e.stageContext(ctx)
		ev, err := e.evidence.Assess(stageCtx, cs.Documents)
		cancel()
		if err != nil {
			return e.fail(ctx, cs, "ExtractionError", err)
		}
		cs.Evidence = ev
		cs.AnalysisDone = true
		cs.AppendTimeline("Analysis complete")
	}
	_, err := e.transition(ctx, cs, model.StageMoratoriumCheck)
	return err
}

// checkMoratorium attaches the verdict. INSUFFICIENT_DATA is the only
// verdict that fails the run; everything else drafts onward.
func (e *Engine) checkMoratorium(ctx context.Context, cs *model.ClaimCase) error {
	verdict, err := e.renderVerdict(cs)
	if err != nil {
		return e.fail(ctx, cs, "InvalidDateRange", err)
	}
	cs.Verdict = &verdict
	cs.AppendTimeline(fmt.Sprintf("Moratorium verdict: %s", verdict.RuleTag))

	if verdict.RuleTag == model.RuleInsufficientData {
		return e.fail(ctx, cs, "InsufficientData", eris.New(verdict.Rationale))
	}
	_, err = e.transition(ctx, cs, model.StageDrafting)
	return err
}

// renderVerdict picks the strongest age signal available: calendar dates
// parsed from the documents, then the extractor's own age figure, then the
// operator's hint. No signal at all means the age is unknown, which is
// insufficient data rather than an age of zero.
func (e *Engine) renderVerdict(cs *model.ClaimCase) (model.MoratoriumVerdict, error) {
	reason := ""
	if cs.Evidence != nil {
		reason = cs.Evidence.RejectionReason

		if cs.Evidence.PolicyStartDate != "" {
			asOf := cs.Evidence.ClaimSubmissionDate
			if asOf == "" {
				asOf = cs.Evidence.RejectionDate
			}
			if asOf != "" {
				start, err1 := evidence.ParseDate(cs.Evidence.PolicyStartDate)
				end, err2 := evidence.ParseDate(asOf)
				if err1 == nil && err2 == nil {
					return moratorium.Evaluate(start, end, reason)
				}
			}
		}
		if cs.Evidence.PolicyAgeYears > 0 {
			return moratorium.EvaluateAge(cs.Evidence.PolicyAgeYears, reason), nil
		}
	}
	if cs.PolicyAgeHint > 0 {
		return moratorium.EvaluateAge(cs.PolicyAgeHint, reason), nil
	}

	category, fraud := moratorium.DefaultClassifier().Classify(reason)
	return model.MoratoriumVerdict{
		RuleTag:      model.RuleInsufficientData,
		Category:     category,
		FraudAlleged: fraud,
		Rationale: "Policy age could not be determined from the documents and no age was " +
			"supplied; the moratorium position cannot be assessed.",
	}, nil
}

// draftRebuttal produces the rebuttal text with bounded retries.
func (e *Engine) draftRebuttal(ctx context.Context, cs *model.ClaimCase) error {
	if !cs.DraftDone {
		meta := draft.Meta{
			ComplainantName: cs.Complainant.Name,
			InsurerName:     cs.Complainant.InsurerName,
			PolicyNumber:    cs.Complainant.PolicyNumber,
		}
		rebuttal, err := resilience.DoVal(ctx, e.cfg.DraftRetry, func(ctx context.Context) (string, error) {
			stageCtx, cancel := e.stageContext(ctx)
			defer cancel()
			return e.drafter.Draft(stageCtx, *cs.Verdict, cs.Evidence, meta)
		})
		if err != nil {
			return e.fail(ctx, cs, "DraftError", err)
		}
		cs.Rebuttal = rebuttal
		cs.DraftDone = true
		cs.AppendTimeline("Rebuttal drafted")
	}
	_, err := e.transition(ctx, cs, model.StageAwaitingResponse)
	return err
}

// escalateCase files the complaint. Filing is never retried automatically: a
// failure is terminal and a portal obstacle pauses for a human.
func (e *Engine) escalateCase(ctx context.Context, cs *model.ClaimCase) error {
	if cs.FilingAttempted {
		// Re-entered after a crash between filing and checkpointing the
		// outcome is impossible (both are recorded in one save); a set flag
		// with no recorded outcome means nothing is left to do here.
		if cs.Filing == nil {
			return e.fail(ctx, cs, "FilingError", eris.New("filing attempted but outcome lost"))
		}
	} else {
		stageCtx, cancel := e.stageContext(ctx)
		result, err := e.filer.File(stageCtx, e.buildComplaint(cs), cs.DryRunPortal)
		cancel()
		cs.FilingAttempted = true
		if err != nil {
			cs.Filing = &model.FilingResult{Status: model.FilingFailed, Detail: err.Error()}
			return e.fail(ctx, cs, "FilingError", err)
		}
		cs.Filing = result
		cs.AppendTimeline("Bima Bharosa filing executed")
	}

	switch cs.Filing.Status {
	case model.FilingSuccess:
		_, err := e.transition(ctx, cs, model.StageEscalated)
		return err
	case model.FilingPausedForHuman:
		cs.AppendTimeline("Filing paused for human action")
		_, err := e.transition(ctx, cs, model.StageEscalatingPaused)
		return err
	default:
		return e.fail(ctx, cs, "FilingError", eris.New(cs.Filing.Detail))
	}
}

func (e *Engine) buildComplaint(cs *model.ClaimCase) model.Complaint {
	return model.Complaint{
		ComplainantName:   cs.Complainant.Name,
		InsurerName:       cs.Complainant.InsurerName,
		PolicyNumber:      cs.Complainant.PolicyNumber,
		Mobile:            cs.Complainant.Mobile,
		Email:             cs.Complainant.Email,
		GrievanceCategory: escalate.DefaultGrievanceCategory,
		IssueSummary:      cs.Rebuttal,
		ReliefSought:      escalate.DefaultReliefSought,
		Attachments: []string{
			cs.Documents.PolicyDocument,
			cs.Documents.RejectionLetter,
			cs.Documents.DischargeSummary,
			cs.Documents.HospitalBill,
		},
	}
}

// transition moves the case to the next stage and checkpoints.
func (e *Engine) transition(ctx context.Context, cs *model.ClaimCase, next model.Stage) (*model.ClaimCase, error) {
	prev := cs.Stage
	cs.Stage = next
	if err := e.save(ctx, cs); err != nil {
		return nil, err
	}
	zap.L().Debug("stage transition",
		zap.String("claim_id", cs.ClaimID),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	return cs, nil
}

// fail records a terminal failure with its originating error kind. The
// returned error is nil: a FAILED case is a completed run, not an engine
// fault, and the caller inspects the case record.
func (e *Engine) fail(ctx context.Context, cs *model.ClaimCase, kind string, cause error) error {
	cs.FailureKind = kind
	cs.FailureDetail = cause.Error()
	cs.AppendTimeline("Failed: " + kind)
	zap.L().Warn("workflow failed",
		zap.String("claim_id", cs.ClaimID),
		zap.String("failure_kind", kind),
		zap.Error(cause),
	)
	_, err := e.transition(ctx, cs, model.StageFailed)
	return err
}

func (e *Engine) save(ctx context.Context, cs *model.ClaimCase) error {
	cs.UpdatedAt = time.Now().UTC()
	if _, err := e.store.Save(ctx, cs.ClaimID, cs); err != nil {
		return eris.Wrapf(err, "workflow: checkpoint claim %s at %s", cs.ClaimID, cs.Stage)
	}
	return nil
}

func (e *Engine) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.StageTimeout)
}
