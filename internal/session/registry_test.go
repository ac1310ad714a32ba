package session

import (
	"context"
	"sync"
	"testing"

	"github.com/lavabit/magmad/internal/mailbox"
)

type stubLoader struct {
	mu    sync.Mutex
	calls int
}

func (l *stubLoader) Load(ctx context.Context, userID uint64) (*mailbox.Mailbox, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return mailbox.New(&mailbox.User{UserID: userID}), nil
}

func TestAcquireSharesInstanceAcrossSameProtocol(t *testing.T) {
	loader := &stubLoader{}
	reg := NewRegistry(loader)

	us1, err := reg.Acquire(context.Background(), 1, "imap")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	us2, err := reg.Acquire(context.Background(), 1, "imap")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if us1 != us2 {
		t.Fatal("second acquire for the same (user, protocol) returned a different instance")
	}
	if loader.calls != 1 {
		t.Fatalf("loader called %d times, want 1", loader.calls)
	}
}

func TestAcquireIsolatesByProtocol(t *testing.T) {
	loader := &stubLoader{}
	reg := NewRegistry(loader)

	imapState, err := reg.Acquire(context.Background(), 1, "imap")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	webState, err := reg.Acquire(context.Background(), 1, "web")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if imapState == webState {
		t.Fatal("instances for different protocols were shared")
	}
}

func TestReleaseEvictsAtZeroRefcount(t *testing.T) {
	loader := &stubLoader{}
	reg := NewRegistry(loader)

	us, err := reg.Acquire(context.Background(), 1, "imap")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	reg.Release(us)

	reg.userMu.Lock()
	_, exists := reg.instances[userKey{1, "imap"}]
	reg.userMu.Unlock()
	if exists {
		t.Fatal("instance still registered after refcount dropped to zero")
	}

	us2, err := reg.Acquire(context.Background(), 1, "imap")
	if err != nil {
		t.Fatalf("Acquire after eviction: %v", err)
	}
	if us2 == us {
		t.Fatal("acquire after eviction returned the evicted instance")
	}
	if loader.calls != 2 {
		t.Fatalf("loader called %d times, want 2 (one per instance)", loader.calls)
	}
}

func TestConcurrentAcquireDedupsLoad(t *testing.T) {
	loader := &stubLoader{}
	reg := NewRegistry(loader)

	var wg sync.WaitGroup
	results := make([]*UserState, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			us, err := reg.Acquire(context.Background(), 7, "pop3")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			results[i] = us
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("concurrent acquisitions returned different instances")
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	loader := &stubLoader{}
	reg := NewRegistry(loader)

	us, err := reg.Acquire(context.Background(), 1, "web")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	sess := reg.NewSession("web", us)

	if got := reg.Lookup(sess.Token); got != sess {
		t.Fatal("Lookup did not return the registered session")
	}

	reg.Terminate(sess.Token)
	if got := reg.Lookup(sess.Token); got != nil {
		t.Fatal("Lookup returned a terminated session")
	}

	reg.userMu.Lock()
	_, exists := reg.instances[userKey{1, "web"}]
	reg.userMu.Unlock()
	if exists {
		t.Fatal("terminating the only session did not release the user instance")
	}
}
