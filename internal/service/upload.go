package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"vizboard/dashboard/internal/model"
	"vizboard/dashboard/internal/pkg/ingesterr"
)

var (
	ErrUnknownHandle = errors.New("unknown upload handle")
	ErrBadTransition = errors.New("operation not valid in the current upload state")
)

// Progress checkpoints of the sequential pre-transfer stages. The transfer
// itself reports up to 90; the final 10% belongs to the record write.
const (
	progressValidated     = 5
	progressProbed        = 10
	progressBootstrapped  = 15
	progressRecordWriting = 95
)

// UploadManager drives the end-to-end ingestion state machine for every
// active upload attempt. One attempt is one cooperative control flow; the
// only true parallelism underneath is the chunk worker pool.
type UploadManager struct {
	bootstrap *Bootstrapper
	transfer  *TransferService
	datasets  *DatasetService
	preview   PreviewCache
	notifier  Notifier

	mu       sync.Mutex
	attempts map[string]*uploadAttempt
}

type uploadAttempt struct {
	mu sync.Mutex

	handle    string
	req       *model.UploadRequest
	state     model.UploadState
	progress  *ProgressReporter
	startedAt time.Time

	// Artifacts reused across retries.
	probe     ProbeResult
	container string
	path      string

	overwrite  bool
	conflictID uint
	confirmed  bool
	confirmCh  chan struct{}

	// Set once the transfer artifacts (container, path) exist; only such
	// attempts may re-enter the transfer stage.
	transferReady bool

	failure error
	record  *model.DatasetRecord
	cancel  context.CancelFunc
}

func NewUploadManager(bootstrap *Bootstrapper, transfer *TransferService, datasets *DatasetService, preview PreviewCache, notifier Notifier) *UploadManager {
	return &UploadManager{
		bootstrap: bootstrap,
		transfer:  transfer,
		datasets:  datasets,
		preview:   preview,
		notifier:  notifier,
		attempts:  make(map[string]*uploadAttempt),
	}
}

// Begin validates nothing up front; it registers the attempt and drives the
// pipeline asynchronously. The returned handle identifies the attempt for
// confirm, cancel, retry, and status calls.
func (m *UploadManager) Begin(req *model.UploadRequest) string {
	ctx, cancel := context.WithCancel(context.Background())

	attempt := &uploadAttempt{
		handle:    uuid.New().String(),
		req:       req,
		state:     model.StateIdle,
		startedAt: time.Now(),
		confirmCh: make(chan struct{}),
		cancel:    cancel,
	}
	attempt.progress = NewProgressReporter(func(percent int) {
		m.notifier.NotifyProgress(req.OwnerID, attempt.handle, percent)
	})

	m.mu.Lock()
	m.attempts[attempt.handle] = attempt
	m.mu.Unlock()

	go m.run(ctx, attempt)
	return attempt.handle
}

// run is the single control flow of one attempt, from validation through the
// record write. Every stage can move the attempt to Failed.
func (m *UploadManager) run(ctx context.Context, a *uploadAttempt) {
	// Validation is pure and happens before any network call.
	a.setState(model.StateValidating)
	if err := ValidateUpload(a.req); err != nil {
		m.fail(a, err)
		return
	}
	a.progress.Report(progressValidated)

	a.setState(model.StateProbing)
	a.probe = InferSchema(a.req.FileName, a.req.Data, 0)
	if a.probe.Preview != nil {
		if err := m.preview.Save(ctx, a.handle, a.probe.Preview); err != nil {
			// Advisory cache only; the pipeline never depends on it.
			log.Printf("upload %s: preview cache save: %v", a.handle, err)
		}
	}
	a.progress.Report(progressProbed)

	a.setState(model.StateBootstrapping)
	report := m.bootstrap.EnsureContainers(ctx, model.RequiredContainers())
	if report.Degraded {
		log.Printf("upload %s: proceeding with degraded storage, missing %v", a.handle, report.Missing)
	}
	a.progress.Report(progressBootstrapped)

	// Duplicate-name detour: surface the conflict and wait for an explicit
	// decision instead of auto-resolving.
	existing, err := m.datasets.CheckConflict(ctx, a.req.OwnerID, a.req.DatasetName)
	if err != nil {
		m.fail(a, ingesterr.NewInternal("duplicate check failed", err))
		return
	}
	if existing != nil && a.req.OverwriteTargetID == 0 {
		a.mu.Lock()
		a.conflictID = existing.ID
		a.mu.Unlock()
		a.setState(model.StateAwaitingOverwrite)

		select {
		case <-a.confirmCh:
			a.mu.Lock()
			a.overwrite = true
			a.mu.Unlock()
		case <-ctx.Done():
			m.fail(a, ingesterr.NewCancelled())
			return
		}
	}
	if a.req.OverwriteTargetID != 0 {
		a.mu.Lock()
		a.overwrite = true
		a.mu.Unlock()
	}

	a.mu.Lock()
	a.container = model.ContainerPrimary
	a.path = path.Join("datasets", fmt.Sprint(a.req.OwnerID), uuid.New().String(), a.req.FileName)
	a.transferReady = true
	a.mu.Unlock()

	m.runTransfer(ctx, a)
}

// runTransfer runs the Transferring and RecordWriting stages. Retry re-enters
// here, reusing the already validated and probed artifacts.
func (m *UploadManager) runTransfer(ctx context.Context, a *uploadAttempt) {
	a.setState(model.StateTransferring)

	stored, err := m.transfer.Transfer(ctx, a.req, a.container, a.path, a.progress.Report)
	if err != nil {
		m.fail(a, err)
		return
	}

	a.setState(model.StateRecordWriting)
	a.progress.Report(progressRecordWriting)

	a.mu.Lock()
	overwrite := a.overwrite
	a.mu.Unlock()

	record, err := m.datasets.WriteRecord(ctx, RecordMeta{
		Name:             a.req.DatasetName,
		Description:      a.req.Description,
		OwnerID:          a.req.OwnerID,
		FileName:         a.req.FileName,
		Stored:           stored,
		RowCountEstimate: a.probe.RowCountEstimate,
		Schema:           a.probe.Schema,
	}, overwrite)
	if err != nil {
		m.fail(a, err)
		return
	}

	a.mu.Lock()
	a.record = record
	a.state = model.StateComplete
	a.mu.Unlock()

	a.progress.Report(100)
	m.notifier.NotifyComplete(a.req.OwnerID, a.handle, record)
	log.Printf("upload %s: complete, dataset %d (%s)", a.handle, record.ID, record.Name)
}

func (m *UploadManager) fail(a *uploadAttempt, err error) {
	a.mu.Lock()
	if a.state == model.StateComplete {
		a.mu.Unlock()
		return
	}
	a.state = model.StateFailed
	a.failure = err
	a.mu.Unlock()

	reason := ingesterr.UserMessage(err)
	retryable := ingesterr.IsRetryable(err)
	m.notifier.NotifyFailed(a.req.OwnerID, a.handle, reason, retryable)
	log.Printf("upload %s: failed: %v", a.handle, err)
}

func (a *uploadAttempt) setState(state model.UploadState) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

func (m *UploadManager) lookup(handle string) (*uploadAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[handle]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return a, nil
}

// ConfirmOverwrite resumes an attempt paused on a duplicate-name conflict.
// Exactly one confirm takes effect; the attempt may still report
// AwaitingOverwrite until the control goroutine wakes, so the confirmed flag,
// not the state, guards the channel close.
func (m *UploadManager) ConfirmOverwrite(handle string) error {
	a, err := m.lookup(handle)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != model.StateAwaitingOverwrite || a.confirmed {
		return ErrBadTransition
	}
	a.confirmed = true
	close(a.confirmCh)
	return nil
}

// Cancel aborts an attempt. In-flight chunk uploads see the context cancel;
// no dataset record is written for a cancelled attempt.
func (m *UploadManager) Cancel(handle string) error {
	a, err := m.lookup(handle)
	if err != nil {
		return err
	}

	a.mu.Lock()
	state := a.state
	a.mu.Unlock()
	if state == model.StateComplete {
		return ErrBadTransition
	}

	a.cancel()
	return nil
}

// Retry restarts a failed attempt from the Transferring stage, reusing the
// validated file and the probed schema. Attempts that never reached the
// transfer stage (rejected by validation, or cancelled before a destination
// existed) cannot be retried: their failure is final.
func (m *UploadManager) Retry(handle string) error {
	a, err := m.lookup(handle)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.state != model.StateFailed || !a.transferReady {
		a.mu.Unlock()
		return ErrBadTransition
	}
	a.failure = nil
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	go m.runTransfer(ctx, a)
	return nil
}

// Status is the poll surface of an attempt.
func (m *UploadManager) Status(handle string) (*model.UploadStatus, error) {
	a, err := m.lookup(handle)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	status := &model.UploadStatus{
		Handle:     a.handle,
		State:      a.state,
		Progress:   a.progress.Current(),
		ConflictID: a.conflictID,
		Dataset:    a.record,
		StartedAt:  a.startedAt,
	}
	if a.failure != nil {
		status.Error = ingesterr.UserMessage(a.failure)
		status.Retryable = ingesterr.IsRetryable(a.failure)
	}
	return status, nil
}

// Preview returns the cached sample rows of an attempt, if still present.
func (m *UploadManager) Preview(ctx context.Context, handle string) (*model.PreviewRows, error) {
	if _, err := m.lookup(handle); err != nil {
		return nil, err
	}
	return m.preview.Get(ctx, handle)
}
