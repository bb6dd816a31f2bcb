package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"AuraFM/core/directory"
	"AuraFM/core/player"
	"AuraFM/logger"
	"AuraFM/model"
)

// APIHandler serves the engine's read-side views and playback intents to
// the UI layer.
type APIHandler struct {
	directory *directory.Directory
	playback  *player.Session
}

// NewAPIHandler creates the facade handler.
func NewAPIHandler(dir *directory.Directory, playback *player.Session) *APIHandler {
	return &APIHandler{directory: dir, playback: playback}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("response encode failed", logger.ErrorField(err))
	}
}

var readinessNames = map[directory.ReadinessKind]string{
	directory.ReadinessInitial:              "initial",
	directory.ReadinessWaitingForConnection: "waiting_for_connection",
	directory.ReadinessLoading:              "loading",
	directory.ReadinessPreparingContent:     "preparing_content",
	directory.ReadinessReady:                "ready_to_serve",
}

// StatusHandler reports the overall readiness signal.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	readiness := h.directory.ReadinessCell().Get()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      readinessNames[readiness.Kind],
		"phase":      readiness.Phase,
		"typesDone":  readiness.TypesDone,
		"typesTotal": readiness.TypesTotal,
	})
}

// FeaturedHandler returns the featured collection.
func (h *APIHandler) FeaturedHandler(w http.ResponseWriter, r *http.Request) {
	items := h.directory.FeaturedCell().Get()
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"type":   item.Entry.Type,
			"id":     item.Entry.ID,
			"entity": item.Entity,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// LatestHandler returns the latest-broadcasts window.
func (h *APIHandler) LatestHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.directory.LatestCell().Get())
}

// LiveChannelHandler returns the live channel, 404 until it is synced.
func (h *APIHandler) LiveChannelHandler(w http.ResponseWriter, r *http.Request) {
	live := h.directory.LiveChannel()
	if live == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "live channel not available"})
		return
	}
	writeJSON(w, http.StatusOK, live.Get())
}

// ProgramsHandler returns the ordered program list.
func (h *APIHandler) ProgramsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.directory.ProgramsCell().Get())
}

var playerStateNames = map[player.StateKind]string{
	player.KindIdle:    "idle",
	player.KindLoading: "loading",
	player.KindPaused:  "paused",
	player.KindPlaying: "playing",
	player.KindError:   "error",
}

// PlayerStateHandler reports the observable playback state and position.
func (h *APIHandler) PlayerStateHandler(w http.ResponseWriter, r *http.Request) {
	st := h.playback.StateCell().Get()
	body := map[string]any{
		"state":          playerStateNames[st.Kind],
		"positionMillis": h.playback.PositionCell().Get(),
		"durationMillis": h.playback.DurationCell().Get(),
	}
	if st.Reason != "" {
		body["reason"] = string(st.Reason)
	}
	if st.Err != nil {
		body["error"] = st.Err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

type playRequest struct {
	Type model.EntityType `json:"type"` // BROADCAST or CHANNEL; empty resumes in place
	ID   int64            `json:"id"`
}

// PlayHandler starts or resumes playback.
func (h *APIHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		// No body: resume in place.
		h.playback.Play()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	playable, ok := h.resolvePlayable(req)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "entity not found"})
		return
	}
	h.playback.PlayItem(playable)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *APIHandler) resolvePlayable(req playRequest) (model.Playable, bool) {
	switch req.Type {
	case model.EntityBroadcast:
		entity, ok, err := h.directory.Catalog().EntityByID(model.EntityBroadcast, req.ID)
		if err != nil || !ok {
			return model.Playable{}, false
		}
		return model.FromBroadcast(entity.(*model.Broadcast)), true
	case model.EntityChannel:
		entity, ok, err := h.directory.Catalog().EntityByID(model.EntityChannel, req.ID)
		if err != nil || !ok {
			return model.Playable{}, false
		}
		return model.FromChannel(entity.(*model.Channel)), true
	default:
		return model.Playable{}, false
	}
}

// PauseHandler pauses playback.
func (h *APIHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	h.playback.Pause()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// SeekHandler seeks to a target position in milliseconds.
func (h *APIHandler) SeekHandler(w http.ResponseWriter, r *http.Request) {
	target, err := strconv.ParseInt(r.URL.Query().Get("position"), 10, 64)
	if err != nil || target < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid position"})
		return
	}
	h.playback.SeekTo(target)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
