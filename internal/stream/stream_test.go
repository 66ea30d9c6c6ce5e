package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeRunner returns a canned answer or error.
type fakeRunner struct {
	answer string
	err    error
	calls  int
	gotSID string
}

func (f *fakeRunner) Run(ctx context.Context, sessionID, message, userID string) (string, error) {
	f.calls++
	f.gotSID = sessionID
	return f.answer, f.err
}

// recordingSinks collects events with a done channel for synchronization.
type recordingSinks struct {
	mu       sync.Mutex
	sessions []string
	units    []string
	complete []string
	errs     []error
	done     chan struct{}
}

func newRecordingSinks() *recordingSinks {
	return &recordingSinks{done: make(chan struct{})}
}

func (r *recordingSinks) sinks() Sinks {
	return Sinks{
		OnSession: func(sid string) {
			r.mu.Lock()
			r.sessions = append(r.sessions, sid)
			r.mu.Unlock()
		},
		OnUnit: func(unit string) {
			r.mu.Lock()
			r.units = append(r.units, unit)
			r.mu.Unlock()
		},
		OnComplete: func(final string) {
			r.mu.Lock()
			r.complete = append(r.complete, final)
			r.mu.Unlock()
			close(r.done)
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			close(r.done)
		},
	}
}

func (r *recordingSinks) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream to finish")
	}
}

func TestStreamChat_FilteredEmission(t *testing.T) {
	runner := &fakeRunner{answer: "Hi\n\n\n\nthere"}
	d := New(runner, WithUnitDelay(0))
	rec := newRecordingSinks()

	d.StreamChat(context.Background(), "sid", "msg", "", rec.sinks())
	rec.wait(t)

	wantUnits := []string{"H", "i", "\n", "\n", "t", "h", "e", "r", "e"}
	if len(rec.units) != len(wantUnits) {
		t.Fatalf("units = %q, want %q", rec.units, wantUnits)
	}
	for i, u := range wantUnits {
		if rec.units[i] != u {
			t.Errorf("units[%d] = %q, want %q", i, rec.units[i], u)
		}
	}
	if len(rec.complete) != 1 || rec.complete[0] != "Hi\n\nthere" {
		t.Errorf("complete = %q, want [\"Hi\\n\\nthere\"]", rec.complete)
	}
	if len(rec.errs) != 0 {
		t.Errorf("errs = %v, want none", rec.errs)
	}
}

func TestStreamChat_SessionAnnouncedFirst(t *testing.T) {
	runner := &fakeRunner{answer: "ok"}
	d := New(runner, WithUnitDelay(0))

	var order []string
	done := make(chan struct{})
	d.StreamChat(context.Background(), "", "msg", "", Sinks{
		OnSession: func(sid string) {
			if sid == "" {
				t.Error("announced session identity is blank")
			}
			order = append(order, "session")
		},
		OnComplete: func(string) {
			order = append(order, "done")
			close(done)
		},
	})
	<-done

	if len(order) < 2 || order[0] != "session" {
		t.Errorf("order = %v, want session first", order)
	}
}

func TestStreamChat_ResolvedIdentityPassedToRunner(t *testing.T) {
	runner := &fakeRunner{answer: "ok"}
	d := New(runner, WithUnitDelay(0))
	rec := newRecordingSinks()

	d.StreamChat(context.Background(), "", "msg", "", rec.sinks())
	rec.wait(t)

	if runner.gotSID == "" {
		t.Fatal("runner received blank session identity")
	}
	if len(rec.sessions) != 1 || rec.sessions[0] != runner.gotSID {
		t.Errorf("announced %v, runner saw %q; must match", rec.sessions, runner.gotSID)
	}
}

func TestStreamChat_GenerationErrorReported(t *testing.T) {
	genErr := errors.New("model unavailable")
	runner := &fakeRunner{err: genErr}
	d := New(runner, WithUnitDelay(0))
	rec := newRecordingSinks()

	d.StreamChat(context.Background(), "sid", "msg", "", rec.sinks())
	rec.wait(t)

	if len(rec.sessions) != 1 {
		t.Error("session event must fire even when generation fails")
	}
	if len(rec.errs) != 1 || !errors.Is(rec.errs[0], genErr) {
		t.Errorf("errs = %v, want the generation error", rec.errs)
	}
	if len(rec.units) != 0 || len(rec.complete) != 0 {
		t.Error("no units or done event after a generation failure")
	}
}

func TestStreamChat_UnitsInOrder(t *testing.T) {
	answer := "The quick brown fox jumps over the lazy dog"
	runner := &fakeRunner{answer: answer}
	d := New(runner, WithUnitDelay(0), WithFilter(PassthroughFilter))
	rec := newRecordingSinks()

	d.StreamChat(context.Background(), "sid", "msg", "", rec.sinks())
	rec.wait(t)

	if got := strings.Join(rec.units, ""); got != answer {
		t.Errorf("joined units = %q, want %q", got, answer)
	}
	if rec.complete[0] != answer {
		t.Errorf("done text = %q, want %q", rec.complete[0], answer)
	}
}

func TestStreamChat_MultiByteRunesAreSingleUnits(t *testing.T) {
	answer := "你好🌍"
	runner := &fakeRunner{answer: answer}
	d := New(runner, WithUnitDelay(0))
	rec := newRecordingSinks()

	d.StreamChat(context.Background(), "sid", "msg", "", rec.sinks())
	rec.wait(t)

	want := []string{"你", "好", "🌍"}
	if len(rec.units) != len(want) {
		t.Fatalf("units = %q, want %q", rec.units, want)
	}
	for i := range want {
		if rec.units[i] != want[i] {
			t.Errorf("units[%d] = %q, want %q", i, rec.units[i], want[i])
		}
	}
}

func TestStreamChat_PanickingSinkReportsErrorOnce(t *testing.T) {
	runner := &fakeRunner{answer: "some answer text"}
	d := New(runner, WithUnitDelay(0))

	var mu sync.Mutex
	var errCount, completeCount int
	done := make(chan struct{})

	d.StreamChat(context.Background(), "sid", "msg", "", Sinks{
		OnUnit: func(unit string) {
			panic("consumer broke")
		},
		OnComplete: func(string) {
			mu.Lock()
			completeCount++
			mu.Unlock()
		},
		OnError: func(err error) {
			mu.Lock()
			errCount++
			mu.Unlock()
			close(done)
		},
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for error")
	}

	mu.Lock()
	defer mu.Unlock()
	if errCount != 1 {
		t.Errorf("error events = %d, want 1", errCount)
	}
	if completeCount != 0 {
		t.Errorf("done events = %d, want 0 after an error", completeCount)
	}
}

func TestStreamChat_CustomFilterReplacesDefault(t *testing.T) {
	runner := &fakeRunner{answer: "a\r\nb"}
	// A filter that uppercases instead of suppressing.
	upper := func(unit, emitted string) string {
		return strings.ToUpper(unit)
	}
	d := New(runner, WithUnitDelay(0), WithFilter(upper))
	rec := newRecordingSinks()

	d.StreamChat(context.Background(), "sid", "msg", "", rec.sinks())
	rec.wait(t)

	if rec.complete[0] != "A\r\nB" {
		t.Errorf("done text = %q, want %q", rec.complete[0], "A\r\nB")
	}
}

func TestStreamChat_DoesNotBlockCaller(t *testing.T) {
	runner := &fakeRunner{answer: strings.Repeat("x", 50)}
	d := New(runner, WithUnitDelay(20*time.Millisecond))
	rec := newRecordingSinks()

	start := time.Now()
	d.StreamChat(context.Background(), "sid", "msg", "", rec.sinks())
	returned := time.Since(start)

	// 50 units at 20ms each is a full second of emission; the call must
	// return long before that.
	if returned > 500*time.Millisecond {
		t.Errorf("StreamChat blocked for %v", returned)
	}
	rec.wait(t)
}
