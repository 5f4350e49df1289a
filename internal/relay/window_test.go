package relay

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rkravets/edsync/internal/group"
	"github.com/rkravets/edsync/internal/store"
)

type memStore struct {
	files map[string]string
}

func newMemStore(files map[string]string) *memStore {
	if files == nil {
		files = make(map[string]string)
	}
	return &memStore{files: files}
}

func (s *memStore) ReadFile(path string) (store.File, error) {
	content, ok := s.files[path]
	if !ok {
		return store.File{}, fmt.Errorf("no such file: %s", path)
	}
	return store.File{Content: content}, nil
}

func (s *memStore) WriteFile(path, content string) error {
	s.files[path] = content
	return nil
}

// waitFor polls until cond holds; the relay is asynchronous by design.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// detachFixture wires a host and a detached window over a pair
// transport, with path already open and detached.
func detachFixture(t *testing.T, path, content string) (*Host, *Detached, *group.Manager, *memStore) {
	t.Helper()
	st := newMemStore(map[string]string{path: content})
	groups := group.NewManager(st)
	if _, err := groups.OpenFile(path); err != nil {
		t.Fatalf("open: %v", err)
	}
	host := NewHost("main", groups)

	hostEnd, detEnd := NewPair()
	det := NewDetached(detEnd)
	det.Start()

	if _, err := host.Detach(path, func() (Transport, string, error) { return hostEnd, "", nil }); err != nil {
		t.Fatalf("Detach: %v", err)
	}
	waitFor(t, "initial snapshot", func() bool {
		_, ok := det.Snapshot()
		return ok
	})
	return host, det, groups, st
}

func TestDetachDeliversSnapshotAndClosesTab(t *testing.T) {
	host, det, groups, _ := detachFixture(t, "a.ts", "foo")
	defer host.Close()

	s, _ := det.Snapshot()
	if s.Path != "a.ts" || s.Content != "foo" || s.Baseline != "foo" {
		t.Fatalf("projection = %+v", s)
	}
	// The tab left the main surface but the canonical document stays.
	if groups.ActivePath() == "a.ts" {
		t.Fatalf("detached file still active in main surface")
	}
	if _, ok := groups.Document("a.ts"); !ok {
		t.Fatalf("canonical document gone after detach")
	}
	if len(host.Links()) != 1 {
		t.Fatalf("links = %d, want 1", len(host.Links()))
	}
}

func TestDetachBlockedOpenerFailsSynchronously(t *testing.T) {
	st := newMemStore(map[string]string{"a.ts": "foo"})
	groups := group.NewManager(st)
	if _, err := groups.OpenFile("a.ts"); err != nil {
		t.Fatalf("open: %v", err)
	}
	host := NewHost("main", groups)

	_, err := host.Detach("a.ts", func() (Transport, string, error) {
		return nil, "", errors.New("popup blocked")
	})
	if err == nil {
		t.Fatalf("Detach with blocked opener succeeded")
	}
	// No state change, no zombie channel.
	if groups.ActivePath() != "a.ts" {
		t.Fatalf("document state changed on failed detach")
	}
	if len(host.Links()) != 0 {
		t.Fatalf("link registered despite failed detach")
	}
}

func TestDetachUnknownDocument(t *testing.T) {
	host := NewHost("main", group.NewManager(newMemStore(nil)))
	if _, err := host.Detach("ghost.ts", func() (Transport, string, error) {
		t.Fatalf("opener invoked for unknown document")
		return nil, "", nil
	}); err == nil {
		t.Fatalf("Detach of unknown document succeeded")
	}
}

func TestContentChangedIdempotent(t *testing.T) {
	host, _, groups, _ := detachFixture(t, "a.ts", "foo")
	defer host.Close()

	// Same message applied twice must equal it applied once.
	doc, _ := groups.Document("a.ts")
	msg := Message{Kind: KindContentChanged, SourceWindowID: "w-det", Path: "a.ts", Content: "foobar"}

	l := func() *link {
		host.mu.Lock()
		defer host.mu.Unlock()
		for _, l := range host.links {
			return l
		}
		return nil
	}()
	host.handle(l, msg)
	once := doc.Content()
	host.handle(l, msg)

	if doc.Content() != once || doc.Content() != "foobar" {
		t.Fatalf("duplicate apply diverged: %q vs %q", doc.Content(), once)
	}
}

func TestEditPropagatesToHost(t *testing.T) {
	host, det, groups, _ := detachFixture(t, "a.ts", "foo")
	defer host.Close()

	det.Edit("foobar")
	waitFor(t, "host content update", func() bool {
		content, _ := groups.ContentOf("a.ts")
		return content == "foobar"
	})
	snap, _ := groups.SnapshotOf("a.ts")
	if snap.Content == snap.Baseline {
		t.Fatalf("host unmodified after remote edit")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	host, det, groups, st := detachFixture(t, "a.ts", "foo")
	defer host.Close()

	det.Edit("foobar")
	det.RequestSave()

	waitFor(t, "persisted content", func() bool { return st.files["a.ts"] == "foobar" })
	waitFor(t, "host baseline", func() bool {
		snap, _ := groups.SnapshotOf("a.ts")
		return snap.Baseline == "foobar" && snap.Content == "foobar"
	})
	waitFor(t, "detached baseline", func() bool {
		s, ok := det.Snapshot()
		return ok && s.Baseline == "foobar" && s.Content == "foobar"
	})
}

func TestHostBroadcastContentChanged(t *testing.T) {
	host, det, groups, _ := detachFixture(t, "a.ts", "foo")
	defer host.Close()

	groups.UpdateContent("a.ts", "local edit")
	host.BroadcastContentChanged("a.ts")

	waitFor(t, "detached projection update", func() bool {
		s, ok := det.Snapshot()
		return ok && s.Content == "local edit"
	})
}

func TestConcurrentLocalAndRemoteEdits(t *testing.T) {
	host, det, groups, _ := detachFixture(t, "a.ts", "foo")
	defer host.Close()

	// Remote edits stream in from the detached window while the host
	// side edits and broadcasts the same document.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			det.Edit(fmt.Sprintf("remote %d", i))
		}
	}()
	for i := 0; i < 200; i++ {
		groups.UpdateContent("a.ts", fmt.Sprintf("local %d", i))
		host.BroadcastContentChanged("a.ts")
	}
	<-done

	// Once the streams drain, resync must settle both sides on the
	// same last write.
	waitFor(t, "converged projection", func() bool {
		det.Resync()
		s, ok := det.Snapshot()
		content, _ := groups.ContentOf("a.ts")
		return ok && content != "" && s.Content == content
	})
}

func TestResyncRecoversProjection(t *testing.T) {
	host, det, groups, _ := detachFixture(t, "a.ts", "foo")
	defer host.Close()

	// Host content moved but the broadcast was "lost" (never sent).
	groups.UpdateContent("a.ts", "drifted")

	det.Resync()
	waitFor(t, "resynced projection", func() bool {
		s, ok := det.Snapshot()
		return ok && s.Content == "drifted"
	})
}

func TestReattachAdoptsFinalSnapshot(t *testing.T) {
	host, det, groups, _ := detachFixture(t, "a.ts", "foo")
	defer host.Close()

	det.Edit("final state")
	det.Reattach()

	waitFor(t, "host adoption", func() bool {
		content, ok := groups.ContentOf("a.ts")
		return ok && content == "final state"
	})
	waitFor(t, "tab restored", func() bool { return groups.ActivePath() == "a.ts" })
	waitFor(t, "link removed", func() bool { return len(host.Links()) == 0 })
}

func TestCloseWindowWithUnsavedReattaches(t *testing.T) {
	host, det, groups, _ := detachFixture(t, "a.ts", "foo")
	defer host.Close()

	det.Edit("unsaved")
	det.CloseWindow()

	waitFor(t, "implicit reattach", func() bool {
		content, ok := groups.ContentOf("a.ts")
		return ok && content == "unsaved"
	})
}

func TestCloseWindowCleanIsSilentDrop(t *testing.T) {
	host, det, groups, _ := detachFixture(t, "a.ts", "foo")
	defer host.Close()

	det.CloseWindow()
	waitFor(t, "link removed", func() bool { return len(host.Links()) == 0 })

	if content, _ := groups.ContentOf("a.ts"); content != "foo" {
		t.Fatalf("clean close changed content: %q", content)
	}
	// Silent drop: the tab does not come back.
	if groups.ActivePath() == "a.ts" {
		t.Fatalf("clean close reattached the tab")
	}
}

func TestPairTransportDropsWhenFull(t *testing.T) {
	a, b := NewPair()
	defer a.Close()
	defer b.Close()

	for i := 0; i < pairBuffer+10; i++ {
		if err := a.Send(Message{Kind: KindPing, SourceWindowID: "w", Path: "a.ts"}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	// No blocking, no error: overflow is silently dropped.
}

func TestPairTransportSendAfterClose(t *testing.T) {
	a, b := NewPair()
	_ = b
	_ = a.Close()
	if err := a.Send(Message{Kind: KindPing, SourceWindowID: "w", Path: "a.ts"}); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("err = %v, want ErrTransportClosed", err)
	}
}
