package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	xerrors "github.com/loudmantrade/RealEstatesAntiFraud/internal/errors"
	"github.com/loudmantrade/RealEstatesAntiFraud/internal/plugin"
	"github.com/loudmantrade/RealEstatesAntiFraud/pkg/manifest"
)

const manifestFileName = "plugin.yaml"

// PluginManager is the subset of *plugin.Manager the admin API drives.
// Plugins are loaded from an on-disk manifest directory rather than
// received as inline metadata, so registration takes a directory path
// instead of a JSON payload describing the plugin.
type PluginManager interface {
	Load(dir string, cfg map[string]any, policy plugin.IsolationPolicy) error
	List() []plugin.Info
	Info(id string) (plugin.Info, error)
	Manifest(id string) (manifest.Manifest, error)
	Enable(ctx context.Context, id string) error
	Disable(ctx context.Context, id string) error
	ReloadOne(ctx context.Context, id string) error
	Unregister(ctx context.Context, id string) error
}

// registerRequest is the admin API's register body. Unlike the
// reference implementation's register endpoint, which accepts plugin
// metadata directly, this runtime resolves plugins through an
// on-disk manifest and native entrypoint, so the request names the
// directory to load rather than carrying the metadata inline.
type registerRequest struct {
	Dir    string         `json:"dir"`
	Config map[string]any `json:"config"`
	Policy struct {
		AllowedCapabilities []plugin.Capability `json:"allowed_capabilities"`
		DeniedCapabilities  []plugin.Capability `json:"denied_capabilities"`
	} `json:"policy"`
}

type pluginDetail struct {
	ID           string              `json:"plugin_id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Author       string              `json:"author"`
	Version      string              `json:"version"`
	Kind         plugin.Kind         `json:"kind"`
	Capabilities []plugin.Capability `json:"capabilities"`
	Priority     int                 `json:"priority"`
	Weight       *float64            `json:"weight,omitempty"`
	Health       *manifest.Health    `json:"health,omitempty"`
}

func toPluginDetail(info plugin.Info, man manifest.Manifest) pluginDetail {
	d := pluginDetail{
		ID:           info.ID,
		Name:         info.Name,
		Description:  info.Description,
		Author:       info.Author,
		Version:      info.Version,
		Kind:         info.Kind,
		Capabilities: info.Capabilities,
		Priority:     info.Priority,
		Weight:       info.Weight,
	}
	if man.Health != (manifest.Health{}) {
		h := man.Health
		d.Health = &h
	}
	return d
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.New(xerrors.CodeInvalidArgument, "register body must be valid JSON"))
		return
	}
	if req.Dir == "" {
		writeError(w, http.StatusBadRequest, xerrors.New(xerrors.CodeInvalidArgument, "dir is required"))
		return
	}
	id, err := manifestID(req.Dir)
	if err != nil {
		writeError(w, http.StatusBadRequest, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "cannot read manifest in dir"))
		return
	}

	policy := plugin.IsolationPolicy{
		AllowedCapabilities: req.Policy.AllowedCapabilities,
		DeniedCapabilities:  req.Policy.DeniedCapabilities,
	}
	if err := s.manager.Load(req.Dir, req.Config, policy); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, detailFor(s.manager, id))
}

// manifestID reads just enough of dir's plugin.yaml to report the id
// the manager will assign once Load succeeds, for the response body.
func manifestID(dir string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return "", err
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	infos := s.manager.List()
	details := make([]pluginDetail, 0, len(infos))
	for _, info := range infos {
		man, _ := s.manager.Manifest(info.ID)
		details = append(details, toPluginDetail(info, man))
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": details})
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.manager.Info(id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	man, err := s.manager.Manifest(id)
	if err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, toPluginDetail(info, man))
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.Enable(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugin_id": id, "enabled": true})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.Disable(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugin_id": id, "enabled": false})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.ReloadOne(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, detailFor(s.manager, id))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.Unregister(r.Context(), id); err != nil {
		writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugin_id": id, "deleted": true})
}

func detailFor(manager PluginManager, id string) pluginDetail {
	info, err := manager.Info(id)
	if err != nil {
		return pluginDetail{ID: id}
	}
	man, _ := manager.Manifest(id)
	return toPluginDetail(info, man)
}

// statusForError maps a unified error code to an HTTP status. Codes
// outside this table fall back to 500.
func statusForError(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case xerrors.CodeConflict, xerrors.CodeAlreadyCompleted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
