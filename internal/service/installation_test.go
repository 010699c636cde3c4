package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Strob0t/tyresync/internal/domain"
	"github.com/Strob0t/tyresync/internal/domain/installation"
	"github.com/Strob0t/tyresync/internal/domain/realtime"
)

func ptr[T any](v T) *T { return &v }

func validCreate() *installation.CreateRequest {
	return &installation.CreateRequest{
		VehiclePlate: "b-ab 123",
		Position:     installation.PositionFrontLeft,
		Brand:        "Michelin",
		Model:        "Pilot Sport 5",
		Size:         "225/45R17",
		TreadDepthMM: 7.5,
	}
}

func newInstallationEnv() (*InstallationService, *mockStore, *mockNotifier) {
	store := &mockStore{}
	notifier := &mockNotifier{}
	return NewInstallationService(store, notifier, realtime.TopicRefreshData), store, notifier
}

func TestInstallation_CreateNotifiesAfterCommit(t *testing.T) {
	svc, store, notifier := newInstallationEnv()

	in, err := svc.Create(context.Background(), validCreate())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if in.VehiclePlate != "B-AB 123" {
		t.Fatalf("expected normalized plate, got %q", in.VehiclePlate)
	}
	if in.Status != installation.StatusMounted {
		t.Fatalf("expected default status mounted, got %q", in.Status)
	}
	if in.InstalledAt.IsZero() {
		t.Fatal("expected installed_at to default to now")
	}
	if notifier.count() != 1 {
		t.Fatalf("expected 1 notify, got %d", notifier.count())
	}

	// The snapshot read happens after the row exists.
	var items []installation.Installation
	if err := json.Unmarshal(notifier.snapshots[0].Bytes(), &items); err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != in.ID {
		t.Fatalf("snapshot does not reflect committed write: %+v", items)
	}
	if store.listCalls != 1 {
		t.Fatalf("expected one fresh read, got %d", store.listCalls)
	}
}

// A write reported as failed never notifies.
func TestInstallation_FailedWritesDoNotNotify(t *testing.T) {
	ctx := context.Background()

	t.Run("validation", func(t *testing.T) {
		svc, _, notifier := newInstallationEnv()
		req := validCreate()
		req.Size = "wide"
		if _, err := svc.Create(ctx, req); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if notifier.count() != 0 {
			t.Fatal("notify called for invalid create")
		}
	})

	t.Run("store create", func(t *testing.T) {
		svc, store, notifier := newInstallationEnv()
		store.createErr = errors.New("unique violation")
		if _, err := svc.Create(ctx, validCreate()); err == nil {
			t.Fatal("expected error")
		}
		if notifier.count() != 0 {
			t.Fatal("notify called for failed create")
		}
	})

	t.Run("update not found", func(t *testing.T) {
		svc, _, notifier := newInstallationEnv()
		if _, err := svc.Update(ctx, "missing", installation.UpdateRequest{Brand: ptr("Pirelli")}); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if notifier.count() != 0 {
			t.Fatal("notify called for failed update")
		}
	})

	t.Run("update conflict", func(t *testing.T) {
		svc, _, notifier := newInstallationEnv()
		in, _ := svc.Create(ctx, validCreate())
		before := notifier.count()

		_, err := svc.Update(ctx, in.ID, installation.UpdateRequest{Brand: ptr("Pirelli"), Version: ptr(in.Version + 5)})
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if notifier.count() != before {
			t.Fatal("notify called for conflicting update")
		}
	})

	t.Run("store update", func(t *testing.T) {
		svc, store, notifier := newInstallationEnv()
		in, _ := svc.Create(ctx, validCreate())
		before := notifier.count()
		store.updateErr = errors.New("deadlock detected")

		if _, err := svc.Update(ctx, in.ID, installation.UpdateRequest{Brand: ptr("Pirelli")}); err == nil {
			t.Fatal("expected error")
		}
		if notifier.count() != before {
			t.Fatal("notify called for failed update")
		}
	})

	t.Run("delete", func(t *testing.T) {
		svc, _, notifier := newInstallationEnv()
		if err := svc.Delete(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if notifier.count() != 0 {
			t.Fatal("notify called for failed delete")
		}
	})
}

func TestInstallation_UpdateBumpsVersionAndNotifies(t *testing.T) {
	svc, _, notifier := newInstallationEnv()
	ctx := context.Background()
	in, _ := svc.Create(ctx, validCreate())

	updated, err := svc.Update(ctx, in.ID, installation.UpdateRequest{
		TreadDepthMM: ptr(3.2),
		Version:      ptr(in.Version),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != in.Version+1 {
		t.Fatalf("expected version %d, got %d", in.Version+1, updated.Version)
	}
	if updated.TreadDepthMM != 3.2 {
		t.Fatalf("expected tread 3.2, got %v", updated.TreadDepthMM)
	}
	if notifier.count() != 2 {
		t.Fatalf("expected 2 notifies, got %d", notifier.count())
	}
}

func TestInstallation_SetStatusAndDelete(t *testing.T) {
	svc, store, notifier := newInstallationEnv()
	ctx := context.Background()
	in, _ := svc.Create(ctx, validCreate())

	stored, err := svc.SetStatus(ctx, in.ID, installation.StatusStored)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if stored.Status != installation.StatusStored {
		t.Fatalf("expected stored, got %q", stored.Status)
	}

	if err := svc.Delete(ctx, in.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(store.installations) != 0 {
		t.Fatal("expected row removed")
	}
	if notifier.count() != 3 {
		t.Fatalf("expected 3 notifies, got %d", notifier.count())
	}
	if string(notifier.snapshots[2].Bytes()) != "[]" {
		t.Fatalf("expected empty collection after delete, got %s", notifier.snapshots[2].Bytes())
	}
}

// A notification failure never turns a committed write into an error.
func TestInstallation_NotifyFailureKeepsWriteSuccessful(t *testing.T) {
	ctx := context.Background()

	t.Run("notifier error", func(t *testing.T) {
		svc, _, notifier := newInstallationEnv()
		notifier.err = errors.New("publish exploded")
		if _, err := svc.Create(ctx, validCreate()); err != nil {
			t.Fatalf("write must succeed, got %v", err)
		}
	})

	t.Run("snapshot read error", func(t *testing.T) {
		store := &mockStore{}
		r := NewConnectionRegistry(nil)
		a := newMockTransport("a")
		r.Register(a, "")
		svc := NewInstallationService(store, NewMutationNotifier(NewBroadcastChannel(r, nil), nil), "")

		in, err := svc.Create(ctx, validCreate())
		if err != nil {
			t.Fatal(err)
		}
		store.listErr = errors.New("read replica lagging")

		if _, err := svc.Update(ctx, in.ID, installation.UpdateRequest{Status: ptr(installation.StatusStored)}); err != nil {
			t.Fatalf("write must succeed despite snapshot failure, got %v", err)
		}
		if got := len(a.received()); got != 1 {
			t.Fatalf("expected only the create push, got %d", got)
		}
	})
}

func TestInstallation_CancelledRequestStillNotifies(t *testing.T) {
	store := &mockStore{}
	r := NewConnectionRegistry(nil)
	a := newMockTransport("a")
	r.Register(a, "")
	svc := NewInstallationService(store, NewMutationNotifier(NewBroadcastChannel(r, nil), nil), "")

	ctx, cancel := context.WithCancel(context.Background())
	in, err := svc.Create(ctx, validCreate())
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	if _, err := svc.Update(ctx, in.ID, installation.UpdateRequest{Brand: ptr("Continental")}); err != nil {
		t.Fatal(err)
	}
	if got := len(a.received()); got != 2 {
		t.Fatalf("expected 2 pushes, got %d", got)
	}
}

func TestInstallation_DefaultTopic(t *testing.T) {
	svc := NewInstallationService(&mockStore{}, nil, "")
	if svc.Topic() != realtime.TopicRefreshData {
		t.Fatalf("expected default topic, got %q", svc.Topic())
	}
	if _, err := svc.Create(context.Background(), validCreate()); err != nil {
		t.Fatalf("nil notifier must be tolerated: %v", err)
	}
}
