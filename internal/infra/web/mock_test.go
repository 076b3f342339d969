package web

import (
	"context"
	"sync"

	"blueprint-room-pipeline/internal/domain"
	"blueprint-room-pipeline/internal/domain/model"
	"blueprint-room-pipeline/internal/domain/ports/repository"
)

// In-memory fakes for handler tests.

type memJobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func newMemJobRegistry() *memJobRegistry {
	return &memJobRegistry{jobs: map[string]*model.Job{}}
}

func (m *memJobRegistry) Create(_ context.Context, _ repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRegistry) GetStatus(_ context.Context, _ repository.Tx, jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRegistry) UpdateStatus(_ context.Context, _ repository.Tx, jobID string, stage model.Stage, status model.JobStatus, attempt int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	j.Stage, j.Status, j.Attempt, j.LastError = stage, status, attempt, errMsg
	return nil
}

func (m *memJobRegistry) IsCancelled(_ context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return false, domain.ErrNotFound
	}
	return j.CancelFlag, nil
}

func (m *memJobRegistry) RequestCancel(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.Status.Terminal() {
		return domain.ErrJobFinished
	}
	j.CancelFlag = true
	return nil
}

func (m *memJobRegistry) FetchAndMarkRunning(_ context.Context) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status == model.JobStatusPending {
			j.Status = model.JobStatusRunning
			cp := *j
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

type memArtifactStore struct {
	mu        sync.Mutex
	artifacts map[string]*model.StageArtifact
}

func newMemArtifactStore() *memArtifactStore {
	return &memArtifactStore{artifacts: map[string]*model.StageArtifact{}}
}

func artifactMapKey(jobID string, stage model.Stage) string {
	return jobID + "/" + string(stage)
}

func (m *memArtifactStore) Put(_ context.Context, a *model.StageArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := artifactMapKey(a.JobID, a.Stage)
	if _, ok := m.artifacts[key]; ok {
		return domain.ErrArtifactExists
	}
	m.artifacts[key] = a
	return nil
}

func (m *memArtifactStore) Get(_ context.Context, jobID string, stage model.Stage) (*model.StageArtifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.artifacts[artifactMapKey(jobID, stage)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return a, nil
}

type memBlueprintStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemBlueprintStore() *memBlueprintStore {
	return &memBlueprintStore{blobs: map[string][]byte{}}
}

func (m *memBlueprintStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

func (m *memBlueprintStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
	return nil
}

type memSubs struct {
	mu   sync.Mutex
	subs map[string][]string
}

func newMemSubs() *memSubs {
	return &memSubs{subs: map[string][]string{}}
}

func (m *memSubs) Subscribe(_ context.Context, jobID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[jobID] = append(m.subs[jobID], channelID)
	return nil
}

func (m *memSubs) Unsubscribe(_ context.Context, jobID, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	channels := m.subs[jobID]
	for i, ch := range channels {
		if ch == channelID {
			m.subs[jobID] = append(channels[:i], channels[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memSubs) ListChannels(_ context.Context, jobID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.subs[jobID]...), nil
}

func (m *memSubs) Clear(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, jobID)
	return nil
}
