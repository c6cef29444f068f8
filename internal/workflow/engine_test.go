package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/claimclaw/contest-cli/internal/checkpoint"
	"github.com/claimclaw/contest-cli/internal/draft"
	"github.com/claimclaw/contest-cli/internal/model"
	"github.com/claimclaw/contest-cli/internal/resilience"
)

// memStore is an in-memory checkpoint.Store for engine tests. Snapshots are
// round-tripped through JSON so stored state cannot alias live state.
type memStore struct {
	mu      sync.Mutex
	threads map[string][]model.WorkflowCheckpoint
}

func newMemStore() *memStore {
	return &memStore{threads: make(map[string][]model.WorkflowCheckpoint)}
}

func (s *memStore) Save(ctx context.Context, threadID string, snapshot *model.ClaimCase) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(snapshot)
	if err != nil {
		return 0, err
	}
	var frozen model.ClaimCase
	if err := json.Unmarshal(data, &frozen); err != nil {
		return 0, err
	}

	seq := int64(len(s.threads[threadID]) + 1)
	s.threads[threadID] = append(s.threads[threadID], model.WorkflowCheckpoint{
		ThreadID:       threadID,
		SequenceNumber: seq,
		Stage:          frozen.Stage,
		Case:           frozen,
		CreatedAt:      time.Now().UTC(),
	})
	return seq, nil
}

func (s *memStore) LoadLatest(ctx context.Context, threadID string) (*model.WorkflowCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cps := s.threads[threadID]
	if len(cps) == 0 {
		return nil, checkpoint.ErrNotFound
	}
	cp := cps[len(cps)-1]
	return &cp, nil
}

func (s *memStore) History(ctx context.Context, threadID string, limit int) ([]model.WorkflowCheckpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cps := s.threads[threadID]
	out := make([]model.WorkflowCheckpoint, 0, len(cps))
	for i := len(cps) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, cps[i])
	}
	return out, nil
}

func (s *memStore) ListThreads(ctx context.Context, filter checkpoint.ThreadFilter) ([]checkpoint.ThreadSummary, error) {
	return nil, nil
}

func (s *memStore) Migrate(ctx context.Context) error { return nil }
func (s *memStore) Close() error                      { return nil }

func (s *memStore) count(threadID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads[threadID])
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, docs model.DocumentSet) (*model.ClaimEvidence, error) {
	args := m.Called(ctx, docs)
	if ev := args.Get(0); ev != nil {
		return ev.(*model.ClaimEvidence), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDrafter struct {
	mock.Mock
}

func (m *mockDrafter) Draft(ctx context.Context, verdict model.MoratoriumVerdict, evidence *model.ClaimEvidence, meta draft.Meta) (string, error) {
	args := m.Called(ctx, verdict, evidence, meta)
	return args.String(0), args.Error(1)
}

type mockFiler struct {
	mock.Mock
}

func (m *mockFiler) File(ctx context.Context, complaint model.Complaint, dryRun bool) (*model.FilingResult, error) {
	args := m.Called(ctx, complaint, dryRun)
	if r := args.Get(0); r != nil {
		return r.(*model.FilingResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func fastEngineConfig() Config {
	return Config{
		DraftRetry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
			Multiplier:     2.0,
			ShouldRetry:    func(error) bool { return true },
		},
	}
}

func startRequest() StartRequest {
	return StartRequest{
		ClaimID: "CLM-001",
		Documents: model.DocumentSet{
			PolicyDocument:   "policy.txt",
			RejectionLetter:  "rejection.txt",
			DischargeSummary: "discharge.txt",
			HospitalBill:     "bill.txt",
		},
		Complainant: model.Complainant{
			Name:         "Asha Verma",
			Mobile:       "9876543210",
			Email:        "asha@example.com",
			InsurerName:  "Star Health",
			PolicyNumber: "SH-2018-44521",
		},
		DryRunPortal: true,
	}
}

func nonDisclosureEvidence() *model.ClaimEvidence {
	return &model.ClaimEvidence{
		RejectionReason: "non-disclosure of PED",
		PolicyAgeYears:  6,
	}
}

func TestStart_RunsToAwaitingResponse(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nonDisclosureEvidence(), nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()
	filer := &mockFiler{}

	engine := New(fastEngineConfig(), store, ext, drafter, filer)
	cs, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StageAwaitingResponse, cs.Stage)
	assert.Equal(t, model.RuleNonDisclosureException, cs.Verdict.RuleTag)
	assert.True(t, cs.Verdict.Contestable)
	assert.Equal(t, "rebuttal body", cs.Rebuttal)
	assert.True(t, cs.AnalysisDone)
	assert.True(t, cs.DraftDone)
	filer.AssertNotCalled(t, "File")

	// INIT creation plus one checkpoint per transition: ANALYZING,
	// MORATORIUM_CHECK, DRAFTING, AWAITING_RESPONSE.
	assert.Equal(t, 5, store.count("CLM-001"))
}

func TestEndToEnd_DryRunEscalation(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nonDisclosureEvidence(), nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()
	filer := &mockFiler{}
	filer.On("File", mock.Anything, mock.MatchedBy(func(c model.Complaint) bool {
		return c.IssueSummary == "rebuttal body" && c.PolicyNumber == "SH-2018-44521"
	}), true).Return(&model.FilingResult{Status: model.FilingSuccess, Detail: "dry run"}, nil).Once()

	engine := New(fastEngineConfig(), store, ext, drafter, filer)
	cs, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)
	require.Equal(t, model.StageAwaitingResponse, cs.Stage)

	cs, err = engine.Resume(context.Background(), "CLM-001", ResumeSignal{})
	require.NoError(t, err)
	assert.Equal(t, model.StageEscalated, cs.Stage)
	assert.True(t, cs.FilingAttempted)
	require.NotNil(t, cs.Filing)
	assert.Equal(t, model.FilingSuccess, cs.Filing.Status)

	ext.AssertNumberOfCalls(t, "Extract", 1)
	drafter.AssertNumberOfCalls(t, "Draft", 1)
	filer.AssertNumberOfCalls(t, "File", 1)
}

func TestResume_InsurerRepliedCompletes(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nonDisclosureEvidence(), nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()
	filer := &mockFiler{}

	engine := New(fastEngineConfig(), store, ext, drafter, filer)
	_, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	cs, err := engine.Resume(context.Background(), "CLM-001", ResumeSignal{InsurerReplied: true})
	require.NoError(t, err)
	assert.Equal(t, model.StageCompleted, cs.Stage)
	assert.True(t, cs.InsurerReplied)
	filer.AssertNotCalled(t, "File")
}

func TestResume_IdempotentAfterCrashAtDrafting(t *testing.T) {
	store := newMemStore()

	// Simulate a crash: checkpoint exists at DRAFTING with analysis done.
	verdict := model.MoratoriumVerdict{
		Contestable: true,
		RuleTag:     model.RuleNonDisclosureException,
		Category:    model.ReasonNonDisclosure,
	}
	crashed := &model.ClaimCase{
		ClaimID:      "CLM-002",
		Documents:    startRequest().Documents,
		Complainant:  startRequest().Complainant,
		DryRunPortal: true,
		Stage:        model.StageDrafting,
		Evidence:     nonDisclosureEvidence(),
		Verdict:      &verdict,
		AnalysisDone: true,
	}
	_, err := store.Save(context.Background(), "CLM-002", crashed)
	require.NoError(t, err)

	ext := &mockExtractor{}
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()
	filer := &mockFiler{}

	engine := New(fastEngineConfig(), store, ext, drafter, filer)
	cs, err := engine.Resume(context.Background(), "CLM-002", ResumeSignal{})
	require.NoError(t, err)

	assert.Equal(t, model.StageAwaitingResponse, cs.Stage)
	assert.Equal(t, "rebuttal body", cs.Rebuttal)
	ext.AssertNotCalled(t, "Extract")
}

func TestEscalatingPaused_HumanConfirmFilesOnce(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nonDisclosureEvidence(), nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()
	filer := &mockFiler{}
	filer.On("File", mock.Anything, mock.Anything, mock.Anything).
		Return(&model.FilingResult{Status: model.FilingPausedForHuman, Detail: "captcha"}, nil).Once()

	req := startRequest()
	req.DryRunPortal = false

	engine := New(fastEngineConfig(), store, ext, drafter, filer)
	_, err := engine.Start(context.Background(), req)
	require.NoError(t, err)

	cs, err := engine.Resume(context.Background(), "CLM-001", ResumeSignal{})
	require.NoError(t, err)
	assert.Equal(t, model.StageEscalatingPaused, cs.Stage)

	// Resume without confirmation does not advance or re-file.
	_, err = engine.Resume(context.Background(), "CLM-001", ResumeSignal{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAwaitingHuman))

	cs, err = engine.Resume(context.Background(), "CLM-001", ResumeSignal{HumanConfirmed: true})
	require.NoError(t, err)
	assert.Equal(t, model.StageEscalated, cs.Stage)
	filer.AssertNumberOfCalls(t, "File", 1)
}

func TestTerminalCaseRejectsFurtherOperations(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nonDisclosureEvidence(), nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()
	filer := &mockFiler{}

	engine := New(fastEngineConfig(), store, ext, drafter, filer)
	_, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	_, err = engine.Resume(context.Background(), "CLM-001", ResumeSignal{InsurerReplied: true})
	require.NoError(t, err)

	before := store.count("CLM-001")

	_, err = engine.Resume(context.Background(), "CLM-001", ResumeSignal{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWorkflowTerminated))

	_, err = engine.Abandon(context.Background(), "CLM-001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWorkflowTerminated))

	// Terminal rejection leaves the record unchanged: no new checkpoints.
	assert.Equal(t, before, store.count("CLM-001"))
}

func TestExtractionFailureIsTerminalNotRetried(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nil, eris.New("unreadable scan")).Once()
	drafter := &mockDrafter{}
	filer := &mockFiler{}

	engine := New(fastEngineConfig(), store, ext, drafter, filer)
	cs, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StageFailed, cs.Stage)
	assert.Equal(t, "ExtractionError", cs.FailureKind)
	assert.Contains(t, cs.FailureDetail, "unreadable scan")
	ext.AssertNumberOfCalls(t, "Extract", 1)
	drafter.AssertNotCalled(t, "Draft")
}

func TestInsufficientDataFailsRun(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(&model.ClaimEvidence{
		RejectionReason: "xyzzy",
		PolicyAgeYears:  6,
	}, nil).Once()
	drafter := &mockDrafter{}
	filer := &mockFiler{}

	engine := New(fastEngineConfig(), store, ext, drafter, filer)
	cs, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StageFailed, cs.Stage)
	assert.Equal(t, "InsufficientData", cs.FailureKind)
	assert.Equal(t, model.RuleInsufficientData, cs.Verdict.RuleTag)
	drafter.AssertNotCalled(t, "Draft")
}

func TestStart_BoundaryAgeFromDocumentDates(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	// Exactly five calendar years, leap day included. The verdict must come
	// from anniversary arithmetic, not a day count that rounds down.
	ext.On("Extract", mock.Anything, mock.Anything).Return(&model.ClaimEvidence{
		RejectionReason:     "room rent capping exclusion",
		PolicyStartDate:     "2018-01-15",
		ClaimSubmissionDate: "2023-01-15",
	}, nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()

	engine := New(fastEngineConfig(), store, ext, drafter, &mockFiler{})
	cs, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StageAwaitingResponse, cs.Stage)
	require.NotNil(t, cs.Verdict)
	assert.Equal(t, model.RuleBeyondMoratoriumContestable, cs.Verdict.RuleTag)
	assert.True(t, cs.Verdict.Contestable)
	assert.Equal(t, 5.0, cs.Verdict.PolicyAgeYears)
}

func TestStart_InvertedDatesFailRun(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(&model.ClaimEvidence{
		RejectionReason:     "room rent capping exclusion",
		PolicyStartDate:     "2024-01-01",
		ClaimSubmissionDate: "2023-01-01",
	}, nil).Once()
	drafter := &mockDrafter{}

	engine := New(fastEngineConfig(), store, ext, drafter, &mockFiler{})
	cs, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StageFailed, cs.Stage)
	assert.Equal(t, "InvalidDateRange", cs.FailureKind)
	drafter.AssertNotCalled(t, "Draft")
}

func TestStart_UnknownPolicyAgeIsInsufficientData(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(&model.ClaimEvidence{
		RejectionReason: "non-disclosure of PED",
	}, nil).Once()
	drafter := &mockDrafter{}

	engine := New(fastEngineConfig(), store, ext, drafter, &mockFiler{})
	cs, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StageFailed, cs.Stage)
	assert.Equal(t, "InsufficientData", cs.FailureKind)
	require.NotNil(t, cs.Verdict)
	assert.Equal(t, model.RuleInsufficientData, cs.Verdict.RuleTag)
	assert.Contains(t, cs.Verdict.Rationale, "could not be determined")
	drafter.AssertNotCalled(t, "Draft")
}

func TestStart_PolicyAgeHintUsedWhenDocumentsSilent(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(&model.ClaimEvidence{
		RejectionReason: "non-disclosure of PED",
	}, nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()

	req := startRequest()
	req.PolicyAgeHint = 6

	engine := New(fastEngineConfig(), store, ext, drafter, &mockFiler{})
	cs, err := engine.Start(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, model.StageAwaitingResponse, cs.Stage)
	assert.Equal(t, model.RuleNonDisclosureException, cs.Verdict.RuleTag)
	assert.True(t, cs.Verdict.Contestable)
	assert.Equal(t, 6.0, cs.Verdict.PolicyAgeYears)
}

func TestDraftingRetriedThenSucceeds(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nonDisclosureEvidence(), nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", eris.New("model overloaded")).Twice()
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()
	filer := &mockFiler{}

	engine := New(fastEngineConfig(), store, ext, drafter, filer)
	cs, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StageAwaitingResponse, cs.Stage)
	assert.Equal(t, "rebuttal body", cs.Rebuttal)
	drafter.AssertNumberOfCalls(t, "Draft", 3)
}

func TestDraftingExhaustedFailsRun(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nonDisclosureEvidence(), nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", eris.New("model down"))
	filer := &mockFiler{}

	engine := New(fastEngineConfig(), store, ext, drafter, filer)
	cs, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StageFailed, cs.Stage)
	assert.Equal(t, "DraftError", cs.FailureKind)
	drafter.AssertNumberOfCalls(t, "Draft", 3)
}

func TestFilingFailureIsTerminal(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nonDisclosureEvidence(), nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()
	filer := &mockFiler{}
	filer.On("File", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, eris.New("portal unreachable")).Once()

	engine := New(fastEngineConfig(), store, ext, drafter, filer)
	_, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	cs, err := engine.Resume(context.Background(), "CLM-001", ResumeSignal{})
	require.NoError(t, err)

	assert.Equal(t, model.StageFailed, cs.Stage)
	assert.Equal(t, "FilingError", cs.FailureKind)
	filer.AssertNumberOfCalls(t, "File", 1)
}

func TestStart_MissingDocumentSurfacedImmediately(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	engine := New(fastEngineConfig(), store, ext, &mockDrafter{}, &mockFiler{})

	req := startRequest()
	req.Documents.HospitalBill = ""

	_, err := engine.Start(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, 0, store.count("CLM-001"))
	ext.AssertNotCalled(t, "Extract")
}

func TestStart_DuplicateActiveCaseRejected(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nonDisclosureEvidence(), nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()

	engine := New(fastEngineConfig(), store, ext, drafter, &mockFiler{})
	_, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	_, err = engine.Start(context.Background(), startRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCaseExists))
}

func TestStart_RestartAfterFailedRun(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nil, eris.New("unreadable")).Once()
	ext.On("Extract", mock.Anything, mock.Anything).Return(nonDisclosureEvidence(), nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()

	engine := New(fastEngineConfig(), store, ext, drafter, &mockFiler{})

	cs, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)
	require.Equal(t, model.StageFailed, cs.Stage)

	cs, err = engine.Start(context.Background(), startRequest())
	require.NoError(t, err)
	assert.Equal(t, model.StageAwaitingResponse, cs.Stage)
}

func TestResume_UnknownThread(t *testing.T) {
	engine := New(fastEngineConfig(), newMemStore(), &mockExtractor{}, &mockDrafter{}, &mockFiler{})

	_, err := engine.Resume(context.Background(), "CLM-404", ResumeSignal{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, checkpoint.ErrNotFound))
}

func TestAbandon(t *testing.T) {
	store := newMemStore()
	ext := &mockExtractor{}
	ext.On("Extract", mock.Anything, mock.Anything).Return(nonDisclosureEvidence(), nil).Once()
	drafter := &mockDrafter{}
	drafter.On("Draft", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("rebuttal body", nil).Once()

	engine := New(fastEngineConfig(), store, ext, drafter, &mockFiler{})
	_, err := engine.Start(context.Background(), startRequest())
	require.NoError(t, err)

	cs, err := engine.Abandon(context.Background(), "CLM-001")
	require.NoError(t, err)
	assert.Equal(t, model.StageAbandoned, cs.Stage)
}
