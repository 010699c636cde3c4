package http

import (
	"net/http"

	"github.com/Strob0t/tyresync/internal/domain/installation"
	"github.com/Strob0t/tyresync/internal/domain/realtime"
	"github.com/Strob0t/tyresync/internal/service"
)

// ObserverDirectory exposes the registry to the observers endpoint.
type ObserverDirectory interface {
	ListAll() []realtime.Observer
	Len() int
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Installations *service.InstallationService
	Observers     ObserverDirectory
	BodyLimit     int64
	Version       string
}

const installationNotFound = "installation not found"

// ListInstallations returns the full collection. This is the authoritative
// read a client performs right after connecting to /ws.
func (h *Handlers) ListInstallations(w http.ResponseWriter, r *http.Request) {
	handleList(h.Installations.List)(w, r)
}

// GetInstallation returns one installation.
func (h *Handlers) GetInstallation(w http.ResponseWriter, r *http.Request) {
	handleGet(h.Installations.Get, installationNotFound)(w, r)
}

// CreateInstallation records a new installation and refreshes observers.
func (h *Handlers) CreateInstallation(w http.ResponseWriter, r *http.Request) {
	handleCreate[installation.CreateRequest](h.BodyLimit, h.Installations.Create)(w, r)
}

// UpdateInstallation applies a partial update and refreshes observers.
func (h *Handlers) UpdateInstallation(w http.ResponseWriter, r *http.Request) {
	handlePatch[installation.UpdateRequest](h.BodyLimit, h.Installations.Update, installationNotFound)(w, r)
}

// DeleteInstallation removes an installation and refreshes observers.
func (h *Handlers) DeleteInstallation(w http.ResponseWriter, r *http.Request) {
	handleDelete(h.Installations.Delete, installationNotFound)(w, r)
}

type observersResponse struct {
	Count     int                 `json:"count"`
	Observers []realtime.Observer `json:"observers"`
}

// ListObservers reports the observers currently connected to this process.
func (h *Handlers) ListObservers(w http.ResponseWriter, _ *http.Request) {
	obs := h.Observers.ListAll()
	if obs == nil {
		obs = []realtime.Observer{}
	}
	writeJSON(w, http.StatusOK, observersResponse{Count: len(obs), Observers: obs})
}

// GetVersion reports the build version.
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}
