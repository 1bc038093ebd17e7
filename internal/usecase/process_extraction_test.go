package usecase

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/fiapx/fiapx-frame-studio/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-studio/internal/domain/port"
	"github.com/fiapx/fiapx-frame-studio/internal/infra/archive"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]entity.Job
}

func (r *memRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) Update(ctx context.Context, job *entity.Job) error {
	return r.Create(ctx, job)
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &j, nil
}

type memStorage struct {
	downloadErr error
	uploads     map[string][]byte
}

func (s *memStorage) DownloadVideo(_ context.Context, _ string, destPath string) error {
	if s.downloadErr != nil {
		return s.downloadErr
	}
	return os.WriteFile(destPath, []byte("video"), 0644)
}

func (s *memStorage) UploadArchive(_ context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	s.uploads[key] = data
	return nil
}

type staticOpener struct {
	src port.VideoSource
	err error
}

func (o *staticOpener) Open(context.Context, string) (port.VideoSource, error) {
	return o.src, o.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []entity.ExtractionStatusMessage
}

func (p *recordingPublisher) PublishStatus(_ context.Context, msg []byte) error {
	var m entity.ExtractionStatusMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return err
	}
	p.mu.Lock()
	p.statuses = append(p.statuses, m)
	p.mu.Unlock()
	return nil
}

type recordingDLQ struct {
	reasons []string
}

func (d *recordingDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

type recordingNotifier struct {
	sent    []string
	notices []port.FailureNotice
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, to string, notice port.FailureNotice) error {
	n.sent = append(n.sent, to)
	n.notices = append(n.notices, notice)
	return nil
}

type workerFixture struct {
	uc        *ProcessExtractionUseCase
	repo      *memRepo
	storage   *memStorage
	opener    *staticOpener
	publisher *recordingPublisher
	dlq       *recordingDLQ
	notifier  *recordingNotifier
}

func newWorkerFixture(t *testing.T, src port.VideoSource) *workerFixture {
	f := &workerFixture{
		repo:      &memRepo{jobs: map[uuid.UUID]entity.Job{}},
		storage:   &memStorage{uploads: map[string][]byte{}},
		opener:    &staticOpener{src: src},
		publisher: &recordingPublisher{},
		dlq:       &recordingDLQ{},
		notifier:  &recordingNotifier{},
	}
	f.uc = NewProcessExtractionUseCase(
		f.repo, f.storage, f.opener, &fakeSink{}, archive.NewZipWriter(),
		f.publisher, f.dlq, f.notifier,
		zap.NewNop(),
		ProcessExtractionConfig{TempDir: t.TempDir(), MaxRetries: 3, Defaults: DefaultSettings()},
	)
	return f
}

func requestBody(t *testing.T, msg entity.ExtractionRequestMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func (f *workerFixture) job(id uuid.UUID) entity.Job {
	return f.repo.jobs[id]
}

func TestProcessExtractionCompletes(t *testing.T) {
	f := newWorkerFixture(t, newFakeSource(1.0))
	id := uuid.New()
	body := requestBody(t, entity.ExtractionRequestMessage{
		JobID: id, UserID: "user-1", VideoKey: "user-1/clip.mp4",
		IntervalSeconds: 0.25, ScaleFactor: 2, Format: entity.FormatPNG,
	})

	require.NoError(t, f.uc.Execute(context.Background(), body))

	job := f.job(id)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, 4, job.FrameCount)
	assert.Equal(t, "user-1/frames_"+id.String()+".zip", job.ArchiveKey)

	data := f.storage.uploads[job.ArchiveKey]
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 4)
	assert.Equal(t, "frame_0001_0-00_2x_1280x720.png", zr.File[0].Name)

	var percents []int
	for _, s := range f.publisher.statuses {
		if s.Progress != nil {
			percents = append(percents, s.Progress.Percent)
		}
	}
	assert.Equal(t, []int{25, 50, 75, 100}, percents)
	last := f.publisher.statuses[len(f.publisher.statuses)-1]
	assert.Equal(t, entity.JobStatusCompleted, last.Status)
	assert.Empty(t, f.dlq.reasons)
}

func TestProcessExtractionAppliesDefaults(t *testing.T) {
	f := newWorkerFixture(t, newFakeSource(0.5))
	id := uuid.New()
	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, entity.ExtractionRequestMessage{
		JobID: id, UserID: "u", VideoKey: "u/v.mp4",
	})))

	job := f.job(id)
	assert.Equal(t, 0.1, job.IntervalSeconds)
	assert.Equal(t, entity.FormatPNG, job.Format)
	assert.Equal(t, 5, job.FrameCount)
}

func TestProcessExtractionShortVideoHasNoArchive(t *testing.T) {
	f := newWorkerFixture(t, newFakeSource(0.05))
	id := uuid.New()
	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, entity.ExtractionRequestMessage{
		JobID: id, UserID: "u", VideoKey: "u/v.mp4", IntervalSeconds: 0.1,
	})))

	job := f.job(id)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, 0, job.FrameCount)
	assert.Empty(t, job.ArchiveKey)
	assert.Empty(t, f.storage.uploads)
}

func TestProcessExtractionRejectsBadMessages(t *testing.T) {
	f := newWorkerFixture(t, newFakeSource(1.0))

	require.NoError(t, f.uc.Execute(context.Background(), []byte("{not json")))
	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, entity.ExtractionRequestMessage{
		JobID: uuid.New(), VideoKey: "k", Format: "gif",
	})))

	require.Len(t, f.dlq.reasons, 2)
	assert.Contains(t, f.dlq.reasons[0], "unmarshal_error")
	assert.Contains(t, f.dlq.reasons[1], "validation_error")
	assert.Empty(t, f.repo.jobs)
}

func TestProcessExtractionMediaErrorIsPermanent(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.opener.err = entity.NewMediaError(entity.MediaErrSrcNotSupported, errors.New("no video stream"))
	id := uuid.New()

	err := f.uc.Execute(context.Background(), requestBody(t, entity.ExtractionRequestMessage{
		JobID: id, UserID: "u", VideoKey: "u/v.txt", UserEmail: "u@example.com",
	}))
	require.NoError(t, err)

	job := f.job(id)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Equal(t, "unsupported-format", job.ErrorCategory)
	assert.Len(t, f.dlq.reasons, 1)
	assert.Equal(t, []string{"u@example.com"}, f.notifier.sent)
	require.Len(t, f.notifier.notices, 1)
	assert.Equal(t, "unsupported-format", f.notifier.notices[0].Category)
	assert.Equal(t, "u/v.txt", f.notifier.notices[0].VideoKey)
}

func TestProcessExtractionSeekFailureCarriesCategory(t *testing.T) {
	src := newFakeSource(1.0)
	src.seekErr = map[int]error{2: entity.NewMediaError(entity.MediaErrNetwork, errors.New("reset"))}
	f := newWorkerFixture(t, src)
	id := uuid.New()

	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, entity.ExtractionRequestMessage{
		JobID: id, UserID: "u", VideoKey: "u/v.mp4",
	})))

	job := f.job(id)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Equal(t, "network", job.ErrorCategory)
	assert.Equal(t, 2, job.FrameCount)
}

func TestProcessExtractionDownloadFailureRetries(t *testing.T) {
	f := newWorkerFixture(t, newFakeSource(1.0))
	f.storage.downloadErr = errors.New("minio unavailable")
	id := uuid.New()
	body := requestBody(t, entity.ExtractionRequestMessage{JobID: id, UserID: "u", VideoKey: "u/v.mp4"})

	for attempt := 1; attempt < 3; attempt++ {
		err := f.uc.Execute(context.Background(), body)
		require.Error(t, err)
		job := f.job(id)
		assert.Equal(t, attempt, job.Attempt)
		assert.Equal(t, entity.JobStatusFailed, job.Status)
		assert.Empty(t, job.ErrorCategory)
	}

	require.NoError(t, f.uc.Execute(context.Background(), body), "last attempt goes to the DLQ")
	assert.Len(t, f.dlq.reasons, 1)
}

func TestProcessExtractionInterrupted(t *testing.T) {
	src := newFakeSource(1.0)
	src.started = make(chan struct{})
	src.block = make(chan struct{})
	f := newWorkerFixture(t, src)
	id := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-src.started
		cancel()
	}()

	err := f.uc.Execute(ctx, requestBody(t, entity.ExtractionRequestMessage{JobID: id, UserID: "u", VideoKey: "u/v.mp4"}))
	require.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, entity.JobStatusCancelled, f.job(id).Status)
	assert.Empty(t, f.dlq.reasons)
}

func TestProcessExtractionNotifiesFallbackRecipient(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.uc.notifyTo = "ops@example.com"
	f.opener.err = entity.NewMediaError(entity.MediaErrDecode, errors.New("corrupt"))

	require.NoError(t, f.uc.Execute(context.Background(), requestBody(t, entity.ExtractionRequestMessage{
		JobID: uuid.New(), UserID: "u", VideoKey: "u/v.mp4",
	})))
	assert.Equal(t, []string{"ops@example.com"}, f.notifier.sent)
}
