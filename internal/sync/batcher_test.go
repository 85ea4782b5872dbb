package sync_test

import (
	"context"
	"sort"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	syncpkg "patscan/internal/sync"
)

type fakeStore struct {
	mu       stdsync.Mutex
	balancer map[string]bool
	gptLoad  map[string]bool
	saves    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{balancer: map[string]bool{}, gptLoad: map[string]bool{}}
}

func (s *fakeStore) queueBalancer(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.balancer[k] = true
	}
}

func (s *fakeStore) PendingBalancer() []string { return s.pending(s.balancer) }
func (s *fakeStore) PendingGPTLoad() []string  { return s.pending(s.gptLoad) }

func (s *fakeStore) pending(set map[string]bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *fakeStore) RemoveBalancer(keys []string) { s.remove(s.balancer, keys) }
func (s *fakeStore) RemoveGPTLoad(keys []string)  { s.remove(s.gptLoad, keys) }

func (s *fakeStore) remove(set map[string]bool, keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(set, k)
	}
}

func (s *fakeStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return nil
}

type MockPusher struct{ mock.Mock }

func (m *MockPusher) Push(ctx context.Context, keys []string) (map[string]string, error) {
	args := m.Called(ctx, keys)
	results, _ := args.Get(0).(map[string]string)
	return results, args.Error(1)
}

type MockSendLogger struct{ mock.Mock }

func (m *MockSendLogger) AppendSendResults(results map[string]string) error {
	return m.Called(results).Error(0)
}

func TestBatcher_Flush(t *testing.T) {
	t.Run("Drains And Saves On Success", func(t *testing.T) {
		store := newFakeStore()
		store.queueBalancer("k1", "k2")

		pusher := new(MockPusher)
		pusher.On("Push", mock.Anything, []string{"k1", "k2"}).
			Return(map[string]string{"k1": "ok", "k2": "duplicate"}, nil)

		sendLog := new(MockSendLogger)
		sendLog.On("AppendSendResults", map[string]string{"k1": "ok", "k2": "duplicate"}).Return(nil)

		b := syncpkg.NewBatcher(store, pusher, nil, sendLog, time.Minute)
		b.Flush(context.Background())

		pusher.AssertExpectations(t)
		sendLog.AssertExpectations(t)
		assert.Empty(t, store.PendingBalancer())
		assert.Equal(t, 1, store.saves)
	})

	t.Run("Keys Stay Queued On Failure", func(t *testing.T) {
		store := newFakeStore()
		store.queueBalancer("k1")

		pusher := new(MockPusher)
		pusher.On("Push", mock.Anything, []string{"k1"}).Return(nil, assert.AnError)

		b := syncpkg.NewBatcher(store, pusher, nil, nil, time.Minute)
		b.Flush(context.Background())

		assert.Equal(t, []string{"k1"}, store.PendingBalancer())
		assert.Equal(t, 0, store.saves)
	})

	t.Run("Nil Pushers And Empty Queues Are Skipped", func(t *testing.T) {
		store := newFakeStore()
		b := syncpkg.NewBatcher(store, nil, nil, nil, time.Minute)
		b.Flush(context.Background())
		assert.Equal(t, 0, store.saves)
	})

	t.Run("Keys Queued Mid-Flight Survive The Drain", func(t *testing.T) {
		store := newFakeStore()
		store.queueBalancer("k1")

		pusher := new(MockPusher)
		pusher.On("Push", mock.Anything, []string{"k1"}).
			Run(func(args mock.Arguments) { store.queueBalancer("k2") }).
			Return(map[string]string{"k1": "ok"}, nil)

		b := syncpkg.NewBatcher(store, pusher, nil, nil, time.Minute)
		b.Flush(context.Background())

		// Only the snapshot that was pushed is removed.
		assert.Equal(t, []string{"k2"}, store.PendingBalancer())
	})

	t.Run("Single Flight", func(t *testing.T) {
		store := newFakeStore()
		store.queueBalancer("k1")

		started := make(chan struct{})
		release := make(chan struct{})
		pusher := new(MockPusher)
		pusher.On("Push", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				close(started)
				<-release
			}).
			Return(map[string]string{"k1": "ok"}, nil).
			Once()

		b := syncpkg.NewBatcher(store, pusher, nil, nil, time.Minute)

		done := make(chan struct{})
		go func() {
			b.Flush(context.Background())
			close(done)
		}()

		<-started
		b.Flush(context.Background()) // overlapping call returns without pushing
		close(release)
		<-done

		pusher.AssertNumberOfCalls(t, "Push", 1)
	})
}
