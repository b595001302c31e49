package event

import (
	"context"
	"testing"
	"time"

	"github.com/Iron-Ham/horizon/internal/engine/types"
	"go.uber.org/goleak"
)

func TestStream_OrderAndTerminal(t *testing.T) {
	defer goleak.VerifyNone(t)

	stream, emit := NewStream(context.Background(), 0, nil)
	result := &types.Result{RunID: "r1", Success: true}

	go func() {
		emit.Emit(Update{Type: TypePhaseStart, Phase: "scaffold"})
		emit.Emit(Update{Type: TypeGenerating, Phase: "scaffold", Iteration: 1})
		emit.Close(Update{Type: TypeCompleted, Result: result})
	}()

	var got []UpdateType
	var last Update
	for u := range stream.Updates() {
		got = append(got, u.Type)
		last = u
	}

	want := []UpdateType{TypePhaseStart, TypeGenerating, TypeCompleted}
	if len(got) != len(want) {
		t.Fatalf("updates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("update[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if last.Result != result {
		t.Error("terminal update should carry the result")
	}
	<-stream.Done()
	if stream.Result() != result {
		t.Error("Result() should return the terminal result")
	}
}

func TestStream_Drain(t *testing.T) {
	defer goleak.VerifyNone(t)

	stream, emit := NewStream(context.Background(), 4, nil)
	go func() {
		for i := 0; i < 10; i++ {
			emit.Emit(Update{Type: TypeGenerating, Iteration: i + 1})
		}
		emit.Close(Update{Type: TypeFailed, Result: &types.Result{RunID: "r2"}})
	}()

	res := stream.Drain()
	if res == nil || res.RunID != "r2" {
		t.Errorf("Drain() = %+v, want RunID r2", res)
	}
}

func TestStream_AbandonedConsumerDoesNotLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	stream, emit := NewStream(ctx, 0, nil)

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		for i := 0; ; i++ {
			if !emit.Emit(Update{Type: TypeGenerating, Iteration: i}) {
				break
			}
		}
		emit.Close(Update{Type: TypeFailed, Result: &types.Result{}})
	}()

	<-stream.Updates()
	cancel()

	select {
	case <-produced:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop after the consumer's context was canceled")
	}
	<-stream.Done()
}

func TestEmitter_CloseIsIdempotent(t *testing.T) {
	stream, emit := NewStream(context.Background(), 2, nil)
	first := &types.Result{RunID: "first"}

	emit.Close(Update{Type: TypeCompleted, Result: first})
	emit.Close(Update{Type: TypeFailed, Result: &types.Result{RunID: "second"}})

	if stream.Result() != first {
		t.Error("second Close should not replace the result")
	}
	n := 0
	for range stream.Updates() {
		n++
	}
	if n != 1 {
		t.Errorf("updates after double Close = %d, want 1", n)
	}
}

func TestEmitter_PublishesToBus(t *testing.T) {
	bus := NewBus(nil)
	var seen []UpdateType
	bus.Subscribe(func(u Update) { seen = append(seen, u.Type) })

	stream, emit := NewStream(context.Background(), 4, bus)
	emit.Emit(Update{Type: TypeCheckpoint})
	emit.Close(Update{Type: TypeCompleted, Result: &types.Result{}})
	stream.Drain()

	if len(seen) != 2 || seen[0] != TypeCheckpoint || seen[1] != TypeCompleted {
		t.Errorf("bus saw %v, want [checkpoint completed]", seen)
	}
}

func TestUpdate_Helpers(t *testing.T) {
	summary := types.ContextSummary{ProjectName: "p", Issues: []string{"a"}}
	u := Update{Type: TypePhaseComplete}.WithConfidence(0.75).WithFiles(3).WithSummary(summary)

	if u.Confidence == nil || *u.Confidence != 0.75 {
		t.Errorf("Confidence = %v, want 0.75", u.Confidence)
	}
	if u.FilesGenerated == nil || *u.FilesGenerated != 3 {
		t.Errorf("FilesGenerated = %v, want 3", u.FilesGenerated)
	}
	summary.Issues[0] = "mutated"
	if u.ContextSummary.Issues[0] != "a" {
		t.Error("WithSummary should snapshot the summary")
	}
}

func TestUpdateType_IsTerminal(t *testing.T) {
	for _, typ := range AllTypes() {
		want := typ == TypeCompleted || typ == TypeFailed
		if typ.IsTerminal() != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", typ, typ.IsTerminal(), want)
		}
	}
}
