package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"blueprint-room-pipeline/internal/backoff"
	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/adapter"
	"blueprint-room-pipeline/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func fastPolicy() backoff.Policy {
	return backoff.Policy{MaxAttempts: 3, Base: time.Millisecond, Max: 4 * time.Millisecond}
}

// ---- job registry ----

type transition struct {
	Stage   model.Stage
	Status  model.JobStatus
	Attempt int
	ErrMsg  string
}

type mockJobRegistry struct {
	mu          sync.Mutex
	job         *model.Job
	cancelled   bool
	cancelAfter int // boundary index at which IsCancelled flips true; -1 never
	checks      int
	transitions []transition
}

func newMockJobRegistry(job *model.Job) *mockJobRegistry {
	return &mockJobRegistry{job: job, cancelAfter: -1}
}

func (m *mockJobRegistry) Create(_ context.Context, _ repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.job = job
	return nil
}

func (m *mockJobRegistry) GetStatus(_ context.Context, _ repository.Tx, jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job == nil || m.job.ID != jobID {
		return nil, domain.ErrNotFound
	}
	cp := *m.job
	return &cp, nil
}

func (m *mockJobRegistry) UpdateStatus(_ context.Context, _ repository.Tx, _ string, stage model.Stage, status model.JobStatus, attempt int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, transition{stage, status, attempt, errMsg})
	m.job.Stage, m.job.Status, m.job.Attempt, m.job.LastError = stage, status, attempt, errMsg
	return nil
}

func (m *mockJobRegistry) IsCancelled(_ context.Context, _ string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelAfter >= 0 && m.checks >= m.cancelAfter {
		m.cancelled = true
	}
	m.checks++
	return m.cancelled, nil
}

func (m *mockJobRegistry) RequestCancel(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job.Status.Terminal() {
		return domain.ErrJobFinished
	}
	m.cancelled = true
	return nil
}

func (m *mockJobRegistry) FetchAndMarkRunning(_ context.Context) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.job != nil && m.job.Status == model.JobStatusPending {
		m.job.Status = model.JobStatusRunning
		cp := *m.job
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockJobRegistry) lastTransition() transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.transitions) == 0 {
		return transition{}
	}
	return m.transitions[len(m.transitions)-1]
}

// ---- artifact store ----

type mockArtifactStore struct {
	mu       sync.Mutex
	stored   map[string]*model.StageArtifact
	failPuts int // first N Put calls fail
	puts     int
}

func newMockArtifactStore() *mockArtifactStore {
	return &mockArtifactStore{stored: map[string]*model.StageArtifact{}}
}

func (m *mockArtifactStore) key(jobID string, stage model.Stage) string {
	return jobID + "/" + string(stage)
}

func (m *mockArtifactStore) Put(_ context.Context, a *model.StageArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.puts <= m.failPuts {
		return domain.ErrServiceUnavailable
	}
	k := m.key(a.JobID, a.Stage)
	if _, ok := m.stored[k]; ok {
		return domain.ErrArtifactExists
	}
	m.stored[k] = a
	return nil
}

func (m *mockArtifactStore) Get(_ context.Context, jobID string, stage model.Stage) (*model.StageArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.stored[m.key(jobID, stage)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

func (m *mockArtifactStore) has(jobID string, stage model.Stage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.stored[m.key(jobID, stage)]
	return ok
}

// ---- preview cache ----

type mockPreviewCache struct {
	mu      sync.Mutex
	entries map[string][]model.Room
	puts    int
}

func newMockPreviewCache() *mockPreviewCache {
	return &mockPreviewCache{entries: map[string][]model.Room{}}
}

func (m *mockPreviewCache) key(hash, version string) string { return hash + "/" + version }

func (m *mockPreviewCache) Get(_ context.Context, hash, version string) ([]model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms, ok := m.entries[m.key(hash, version)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rooms, nil
}

func (m *mockPreviewCache) Put(_ context.Context, hash, version string, rooms []model.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.entries[m.key(hash, version)] = rooms
	return nil
}

func (m *mockPreviewCache) has(hash, version string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[m.key(hash, version)]
	return ok
}

// ---- blueprint store ----

type mockBlueprintStore struct {
	blobs map[string][]byte
}

func (m *mockBlueprintStore) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := m.blobs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (m *mockBlueprintStore) Put(_ context.Context, key string, data []byte) error {
	m.blobs[key] = data
	return nil
}

// ---- inference ----

type mockInference struct {
	mu     sync.Mutex
	calls  int
	invoke func(call int, endpointID string, input *adapter.ModelInput) (*adapter.InferenceResult, error)
}

func (m *mockInference) Invoke(_ context.Context, endpointID string, input *adapter.ModelInput, _ string) (*adapter.InferenceResult, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.invoke(call, endpointID, input)
}

// ---- stage executor ----

type mockStage struct {
	stage   model.Stage
	mu      sync.Mutex
	calls   int
	execute func(call int, job *model.Job, prior *model.StageArtifact) (*model.StageArtifact, bool, error)
}

func (m *mockStage) Stage() model.Stage { return m.stage }

func (m *mockStage) Execute(_ context.Context, job *model.Job, prior *model.StageArtifact) (*model.StageArtifact, bool, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	return m.execute(call, job, prior)
}

func (m *mockStage) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func okStage(stage model.Stage) *mockStage {
	return &mockStage{
		stage: stage,
		execute: func(_ int, job *model.Job, _ *model.StageArtifact) (*model.StageArtifact, bool, error) {
			return testArtifact(job.ID, stage), true, nil
		},
	}
}

func testArtifact(jobID string, stage model.Stage) *model.StageArtifact {
	return &model.StageArtifact{
		JobID: jobID,
		Stage: stage,
		Rooms: []model.Room{
			{ID: "room_001", BoundingBox: model.BoundingBox{10, 10, 300, 300}, Confidence: 0.9},
		},
		Timestamp:     time.Now().UTC(),
		SchemaVersion: model.ArtifactSchemaVersion,
	}
}

// ---- notification path ----

type mockSubs struct {
	mu       sync.Mutex
	channels map[string][]string
}

func newMockSubs(jobID string, channels ...string) *mockSubs {
	return &mockSubs{channels: map[string][]string{jobID: channels}}
}

func (m *mockSubs) Subscribe(_ context.Context, jobID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[jobID] = append(m.channels[jobID], channelID)
	return nil
}

func (m *mockSubs) Unsubscribe(_ context.Context, jobID, channelID string) error {
	return nil
}

func (m *mockSubs) ListChannels(_ context.Context, jobID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.channels[jobID]...), nil
}

func (m *mockSubs) Clear(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.channels, jobID)
	return nil
}

type sentEvent struct {
	Channel string
	Event   model.ProgressEvent
}

type mockSender struct {
	mu        sync.Mutex
	sent      []sentEvent
	failCount map[string]int // channel -> remaining failures
}

func newMockSender() *mockSender {
	return &mockSender{failCount: map[string]int{}}
}

func (m *mockSender) Send(_ context.Context, channelID string, event *model.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCount[channelID] > 0 {
		m.failCount[channelID]--
		return domain.ErrServiceUnavailable
	}
	m.sent = append(m.sent, sentEvent{Channel: channelID, Event: *event})
	return nil
}

func (m *mockSender) sentTo(channelID string) []model.ProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ProgressEvent
	for _, s := range m.sent {
		if s.Channel == channelID {
			out = append(out, s.Event)
		}
	}
	return out
}

// collectNotifier records published events without any delivery machinery.
type collectNotifier struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (n *collectNotifier) Publish(_ context.Context, _ string, event *model.ProgressEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, *event)
}

func (n *collectNotifier) types() []model.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.EventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}
