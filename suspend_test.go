package shadow

import (
	"context"
	"testing"
	"time"
)

func TestSuspendManager_ConfirmResumeApproved(t *testing.T) {
	m := NewSuspendManager(time.Minute)
	tc := ToolCall{ID: "call_1", Name: "run_terminal_cmd", Args: []byte(`{"cmd":"rm -rf /"}`)}

	resultCh := make(chan bool, 1)
	errCh := make(chan error, 1)
	go func() {
		approved, err := m.Confirm(context.Background(), "variant-1", tc)
		errCh <- err
		resultCh <- approved
	}()

	var id string
	for i := 0; i < 100; i++ {
		pending := m.List()
		if len(pending) == 1 {
			id = pending[0].SuspensionID
			break
		}
		time.Sleep(time.Millisecond)
	}
	if id == "" {
		t.Fatal("expected a pending suspension to be registered")
	}

	if err := m.Resume(id, true, "looks safe"); err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}

	if err := <-errCh; err != nil {
		t.Fatalf("Confirm returned error: %v", err)
	}
	if approved := <-resultCh; !approved {
		t.Error("expected approval to propagate")
	}

	if got := len(m.List()); got != 0 {
		t.Errorf("expected no pending suspensions after resume, got %d", got)
	}
}

func TestSuspendManager_ConfirmResumeDenied(t *testing.T) {
	m := NewSuspendManager(time.Minute)
	tc := ToolCall{ID: "call_2", Name: "delete_file"}

	resultCh := make(chan bool, 1)
	go func() {
		approved, _ := m.Confirm(context.Background(), "variant-1", tc)
		resultCh <- approved
	}()

	var id string
	for i := 0; i < 100; i++ {
		if pending := m.List(); len(pending) == 1 {
			id = pending[0].SuspensionID
			break
		}
		time.Sleep(time.Millisecond)
	}
	if id == "" {
		t.Fatal("expected a pending suspension to be registered")
	}

	if err := m.Resume(id, false, "too risky"); err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	if approved := <-resultCh; approved {
		t.Error("expected denial to propagate")
	}
}

func TestSuspendManager_ResumeTwiceFails(t *testing.T) {
	m := NewSuspendManager(time.Minute)
	tc := ToolCall{ID: "call_3", Name: "write_file"}

	done := make(chan struct{})
	go func() {
		m.Confirm(context.Background(), "variant-1", tc)
		close(done)
	}()

	var id string
	for i := 0; i < 100; i++ {
		if pending := m.List(); len(pending) == 1 {
			id = pending[0].SuspensionID
			break
		}
		time.Sleep(time.Millisecond)
	}
	if id == "" {
		t.Fatal("expected a pending suspension to be registered")
	}

	if err := m.Resume(id, true, ""); err != nil {
		t.Fatalf("first Resume returned error: %v", err)
	}
	<-done

	if err := m.Resume(id, true, ""); err == nil {
		t.Fatal("expected second Resume to fail")
	} else if _, ok := err.(*ErrSuspendReleased); !ok {
		t.Fatalf("expected *ErrSuspendReleased, got %T", err)
	}
}

func TestSuspendManager_TTLExpiryDenies(t *testing.T) {
	m := NewSuspendManager(10 * time.Millisecond)
	tc := ToolCall{ID: "call_4", Name: "run_terminal_cmd"}

	resultCh := make(chan bool, 1)
	go func() {
		approved, _ := m.Confirm(context.Background(), "variant-1", tc)
		resultCh <- approved
	}()

	select {
	case approved := <-resultCh:
		if approved {
			t.Error("expected TTL expiry to deny the tool call")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for TTL expiry to resolve Confirm")
	}

	if got := len(m.List()); got != 0 {
		t.Errorf("expected the expired suspension to be forgotten, got %d pending", got)
	}
}

func TestSuspendManager_ContextCancelDenies(t *testing.T) {
	m := NewSuspendManager(time.Minute)
	tc := ToolCall{ID: "call_5", Name: "run_terminal_cmd"}

	ctx, cancel := context.WithCancel(context.Background())
	resultCh := make(chan error, 1)
	approvedCh := make(chan bool, 1)
	go func() {
		approved, err := m.Confirm(ctx, "variant-1", tc)
		resultCh <- err
		approvedCh <- approved
	}()

	for i := 0; i < 100; i++ {
		if pending := m.List(); len(pending) == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-resultCh; err == nil {
		t.Error("expected context cancellation error")
	}
	if approved := <-approvedCh; approved {
		t.Error("expected cancellation to deny the tool call")
	}
}

func TestSuspendManager_ReleaseWithoutResume(t *testing.T) {
	m := NewSuspendManager(time.Minute)
	tc := ToolCall{ID: "call_6", Name: "run_terminal_cmd"}

	resultCh := make(chan bool, 1)
	go func() {
		approved, _ := m.Confirm(context.Background(), "variant-1", tc)
		resultCh <- approved
	}()

	var id string
	for i := 0; i < 100; i++ {
		if pending := m.List(); len(pending) == 1 {
			id = pending[0].SuspensionID
			break
		}
		time.Sleep(time.Millisecond)
	}
	if id == "" {
		t.Fatal("expected a pending suspension to be registered")
	}

	if err := m.Release(id); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if approved := <-resultCh; approved {
		t.Error("expected release to deny the tool call")
	}

	if err := m.Release(id); err == nil {
		t.Fatal("expected a second Release on an already-forgotten suspension to fail")
	}
}

func TestSuspendManager_ResumeUnknownID(t *testing.T) {
	m := NewSuspendManager(time.Minute)
	if err := m.Resume("does-not-exist", true, ""); err == nil {
		t.Fatal("expected error for unknown suspension id")
	} else if _, ok := err.(*ErrSuspendNotFound); !ok {
		t.Fatalf("expected *ErrSuspendNotFound, got %T", err)
	}
}

func TestPending_MarshalPayload(t *testing.T) {
	p := Pending{
		SuspensionID: "susp_1",
		VariantID:    "variant-1",
		ToolCall:     ToolCall{ID: "call_7", Name: "run_terminal_cmd", Args: []byte(`{"cmd":"ls"}`)},
	}
	raw, err := p.MarshalPayload()
	if err != nil {
		t.Fatalf("MarshalPayload returned error: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("expected non-empty payload")
	}
}
