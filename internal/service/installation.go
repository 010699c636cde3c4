// Package service implements business logic on top of ports.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/tyresync/internal/adapter/otel"
	"github.com/Strob0t/tyresync/internal/domain"
	"github.com/Strob0t/tyresync/internal/domain/installation"
	"github.com/Strob0t/tyresync/internal/domain/realtime"
	"github.com/Strob0t/tyresync/internal/port/broadcast"
	"github.com/Strob0t/tyresync/internal/port/database"
)

// InstallationService owns the read and write path for tyre installations.
// Every committed write is followed by a refresh notification on topic.
type InstallationService struct {
	store    database.Store
	notifier broadcast.Notifier
	topic    realtime.Topic
	now      func() time.Time
}

// NewInstallationService creates an InstallationService. notifier may be nil,
// in which case writes are not announced.
func NewInstallationService(store database.Store, notifier broadcast.Notifier, topic realtime.Topic) *InstallationService {
	if topic == "" {
		topic = realtime.TopicRefreshData
	}
	return &InstallationService{store: store, notifier: notifier, topic: topic, now: time.Now}
}

// Topic returns the topic announced after writes.
func (s *InstallationService) Topic() realtime.Topic { return s.topic }

// Snapshot is the SnapshotProvider for the full installation collection.
func (s *InstallationService) Snapshot(ctx context.Context) (realtime.Snapshot, error) {
	return realtime.JSONProvider(s.store.ListInstallations)(ctx)
}

// List returns all installations.
func (s *InstallationService) List(ctx context.Context) ([]installation.Installation, error) {
	return s.store.ListInstallations(ctx)
}

// Get returns an installation by ID.
func (s *InstallationService) Get(ctx context.Context, id string) (*installation.Installation, error) {
	return s.store.GetInstallation(ctx, id)
}

// Create validates and stores a new installation.
func (s *InstallationService) Create(ctx context.Context, req *installation.CreateRequest) (*installation.Installation, error) {
	if err := installation.ValidateCreateRequest(req); err != nil {
		return nil, err
	}
	req.VehiclePlate = installation.NormalizePlate(req.VehiclePlate)
	if req.Status == "" {
		req.Status = installation.StatusMounted
	}
	if req.InstalledAt == nil {
		now := s.now().UTC()
		req.InstalledAt = &now
	}

	ctx, span := otel.StartMutationSpan(ctx, "create", "")
	defer span.End()

	in, err := s.store.CreateInstallation(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create installation: %w", err)
	}
	slog.Info("installation created", "id", in.ID, "plate", in.VehiclePlate, "position", in.Position)
	s.announce(ctx, "create", in.ID)
	return in, nil
}

// Update applies a partial update. When req.Version is set it must match
// the stored version or domain.ErrConflict is returned.
func (s *InstallationService) Update(ctx context.Context, id string, req installation.UpdateRequest) (*installation.Installation, error) {
	if err := installation.ValidateUpdateRequest(req); err != nil {
		return nil, err
	}

	ctx, span := otel.StartMutationSpan(ctx, "update", id)
	defer span.End()

	in, err := s.store.GetInstallation(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Version != nil && *req.Version != in.Version {
		return nil, fmt.Errorf("installation %s at version %d, request expected %d: %w",
			id, in.Version, *req.Version, domain.ErrConflict)
	}

	req.Apply(in)
	if err := s.store.UpdateInstallation(ctx, in); err != nil {
		return nil, fmt.Errorf("update installation %s: %w", id, err)
	}
	slog.Info("installation updated", "id", in.ID, "version", in.Version, "status", in.Status)
	s.announce(ctx, "update", in.ID)
	return in, nil
}

// SetStatus is a convenience for status-only updates.
func (s *InstallationService) SetStatus(ctx context.Context, id string, status installation.Status) (*installation.Installation, error) {
	return s.Update(ctx, id, installation.UpdateRequest{Status: &status})
}

// Delete removes an installation.
func (s *InstallationService) Delete(ctx context.Context, id string) error {
	ctx, span := otel.StartMutationSpan(ctx, "delete", id)
	defer span.End()

	if err := s.store.DeleteInstallation(ctx, id); err != nil {
		return fmt.Errorf("delete installation %s: %w", id, err)
	}
	slog.Info("installation deleted", "id", id)
	s.announce(ctx, "delete", id)
	return nil
}

// announce notifies observers of a committed write. Failures are logged and
// swallowed: the write has already succeeded and must be reported as such.
// The request context is detached so a client hanging up right after the
// commit does not suppress the push to everyone else.
func (s *InstallationService) announce(ctx context.Context, op, id string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), s.topic, s.Snapshot); err != nil {
		slog.Error("post-commit notification failed", "op", op, "id", id, "topic", s.topic, "error", err)
	}
}
