package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ---- test doubles ----

// gatedFetcher blocks every fetch until release is closed.
type gatedFetcher struct {
	release chan struct{}
	key     string
	err     error
	calls   atomic.Int32
}

func (f *gatedFetcher) FetchKey(ctx context.Context, _ string) (string, error) {
	f.calls.Add(1)
	select {
	case <-f.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return f.key, f.err
}

type countingInjector struct {
	err   error
	calls atomic.Int32
}

func (i *countingInjector) Inject(_ context.Context, key string) (*SDK, error) {
	i.calls.Add(1)
	if i.err != nil {
		return nil, i.err
	}
	return &SDK{Key: key}, nil
}

func readyFetcher(key string) *gatedFetcher {
	f := &gatedFetcher{release: make(chan struct{}), key: key}
	close(f.release)
	return f
}

// ---- Loader ----

func TestLoader_ConcurrentAcquire_SingleFetchAndInjection(t *testing.T) {
	fetcher := &gatedFetcher{release: make(chan struct{}), key: "ABC"}
	injector := &countingInjector{}
	l := NewLoader(NewKeyCache(fetcher, ""), injector)

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	sdks := make(chan *SDK, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sdk, err := l.Acquire(context.Background())
			errs <- err
			sdks <- sdk
		}()
	}

	// Let every caller reach the pending load before the key arrives.
	deadline := time.Now().Add(2 * time.Second)
	for fetcher.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()
	close(errs)
	close(sdks)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	var first *SDK
	for sdk := range sdks {
		if first == nil {
			first = sdk
		}
		if sdk != first {
			t.Fatal("callers received different SDK handles")
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("key fetches = %d, want 1", got)
	}
	if got := injector.calls.Load(); got != 1 {
		t.Errorf("injections = %d, want 1", got)
	}
	if l.Status().State != Ready {
		t.Errorf("state = %v, want ready", l.Status().State)
	}
}

func TestLoader_ReadyIsCached(t *testing.T) {
	fetcher := readyFetcher("ABC")
	injector := &countingInjector{}
	l := NewLoader(NewKeyCache(fetcher, ""), injector)

	sdk, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sdk.Key != "ABC" {
		t.Errorf("key = %q, want ABC", sdk.Key)
	}

	for i := 0; i < 5; i++ {
		if _, err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("key fetches = %d, want 1 (no network call once ready)", got)
	}
	if got := l.injectionCount(); got != 1 {
		t.Errorf("injections = %d, want 1", got)
	}
}

func TestLoader_KeyFetchFailure_IsRetryable(t *testing.T) {
	fetcher := readyFetcher("")
	fetcher.err = errors.New("backend unreachable")
	injector := &countingInjector{}
	l := NewLoader(NewKeyCache(fetcher, ""), injector)

	_, err := l.Acquire(context.Background())
	var kfe *KeyFetchError
	if !errors.As(err, &kfe) {
		t.Fatalf("err = %v, want *KeyFetchError", err)
	}
	if l.Status().State != Unloaded {
		t.Errorf("state = %v, want unloaded after key fetch failure", l.Status().State)
	}
	if injector.calls.Load() != 0 {
		t.Error("SDK injected despite key fetch failure")
	}

	fetcher.err = nil
	fetcher.key = "ABC"
	if _, err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if got := fetcher.calls.Load(); got != 2 {
		t.Errorf("key fetches = %d, want 2", got)
	}
}

func TestLoader_SDKLoadFailure_IsTerminal(t *testing.T) {
	fetcher := readyFetcher("ABC")
	injector := &countingInjector{err: errors.New("network error")}
	l := NewLoader(NewKeyCache(fetcher, ""), injector)

	_, err := l.Acquire(context.Background())
	var sle *ScriptLoadError
	if !errors.As(err, &sle) {
		t.Fatalf("err = %v, want *ScriptLoadError", err)
	}

	_, err2 := l.Acquire(context.Background())
	if !errors.As(err2, &sle) {
		t.Fatalf("second err = %v, want *ScriptLoadError", err2)
	}
	if err2.Error() != err.Error() {
		t.Errorf("reason changed between calls: %q vs %q", err.Error(), err2.Error())
	}
	if got := injector.calls.Load(); got != 1 {
		t.Errorf("injections = %d, want 1 (no repeated load after failure)", got)
	}

	st := l.Status()
	if st.State != Failed || st.Reason == "" {
		t.Errorf("status = %+v, want failed with reason", st)
	}
}

func TestLoader_WaiterCancellationDoesNotFailSharedLoad(t *testing.T) {
	fetcher := &gatedFetcher{release: make(chan struct{}), key: "ABC"}
	l := NewLoader(NewKeyCache(fetcher, ""), &countingInjector{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := l.Acquire(ctx)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for fetcher.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	close(fetcher.release)
	if _, err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("key fetches = %d, want 1", got)
	}
}

func TestLoader_StatusStartsUnloaded(t *testing.T) {
	l := NewLoader(NewKeyCache(readyFetcher("ABC"), ""), &countingInjector{})
	if st := l.Status(); st.State != Unloaded || st.Reason != "" {
		t.Errorf("status = %+v, want unloaded", st)
	}
}

// ---- HTTPKeyFetcher ----

func TestHTTPKeyFetcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("region") != "sp" {
			t.Errorf("region = %q, want sp", r.URL.Query().Get("region"))
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("authorization = %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"key":"ABC"}`))
	}))
	t.Cleanup(srv.Close)

	key, err := NewHTTPKeyFetcher(srv.URL, "tok").FetchKey(context.Background(), "sp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "ABC" {
		t.Errorf("key = %q, want ABC", key)
	}
}

func TestHTTPKeyFetcher_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"no maps API key configured"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewHTTPKeyFetcher(srv.URL, "").FetchKey(context.Background(), "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !contains(err.Error(), "no maps API key configured") {
		t.Errorf("error %q does not carry the endpoint reason", err.Error())
	}
}

func TestKeyCache_EmptyKeyIsAnError(t *testing.T) {
	c := NewKeyCache(KeyFetcherFunc(func(context.Context, string) (string, error) { return "", nil }), "")
	if _, err := c.Get(context.Background()); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("err = %v, want ErrEmptyKey", err)
	}
}

// ---- GoogleSDKInjector ----

func TestGoogleSDKInjector(t *testing.T) {
	inj := NewGoogleSDKInjector()

	sdk, err := inj.Inject(context.Background(), "AIza-test-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sdk.Maps == nil || sdk.Key != "AIza-test-key" {
		t.Errorf("sdk = %+v, want client bound to key", sdk)
	}

	if _, err := inj.Inject(context.Background(), ""); err == nil {
		t.Error("expected error for empty key")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// injectionCount returns how many times the SDK load was attempted.
func (l *Loader) injectionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.injections
}
