package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
)

// API serves the JSON endpoints behind the display layer. The WebSocket hub
// carries live pushes; these handlers cover one-shot reads and commands from
// scripts and the UI's initial page load.
type API struct {
	controller *Controller
	agg        *Aggregator
	logBuf     *LogBuffer
	presets    *PresetStore
}

func NewAPI(controller *Controller, agg *Aggregator, logBuf *LogBuffer, presets *PresetStore) *API {
	return &API{
		controller: controller,
		agg:        agg,
		logBuf:     logBuf,
		presets:    presets,
	}
}

// Register attaches all endpoints to the mux
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/history", a.handleHistory)
	mux.HandleFunc("/api/ber", a.handleBER)
	mux.HandleFunc("/api/log", a.handleLog)
	mux.HandleFunc("/api/presets", a.handlePresets)
	mux.HandleFunc("/api/presets/", a.handlePresetByIndex)
	mux.HandleFunc("/api/radio/start", a.handleRadioStart)
	mux.HandleFunc("/api/radio/stop", a.handleRadioStop)
	mux.HandleFunc("/api/recording/start", a.handleRecordingStart)
	mux.HandleFunc("/api/recording/stop", a.handleRecordingStop)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, a.agg.Snapshot())
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, a.agg.Snapshot().History)
}

func (a *API) handleBER(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	snap := a.agg.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"window":         snap.BERWindow,
		"stats":          snap.BERStats,
		"expanded_scale": snap.ExpandedScale,
	})
}

func (a *API) handleLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lines": a.logBuf.Lines()})
}

func (a *API) handlePresets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.presets.List())
	case http.MethodPost:
		var p Preset
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := a.presets.Add(p); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, a.presets.List())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handlePresetByIndex serves /api/presets/<index> for update, delete and
// tune, plus /api/presets/<index>/move for reordering
func (a *API) handlePresetByIndex(w http.ResponseWriter, r *http.Request) {
	indexStr, action, _ := strings.Cut(r.URL.Path[len("/api/presets/"):], "/")
	index, err := strconv.Atoi(indexStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid preset index")
		return
	}

	if action == "move" {
		a.handlePresetMove(w, r, index)
		return
	}
	if action != "" {
		writeError(w, http.StatusNotFound, "unknown preset action")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var p Preset
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := a.presets.Update(index, p); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a.presets.List())
	case http.MethodDelete:
		if err := a.presets.Remove(index); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a.presets.List())
	case http.MethodPost:
		// POST tunes to the preset
		preset, err := a.presets.Get(index)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err := a.controller.TuneToPreset(preset); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a.agg.Snapshot())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (a *API) handlePresetMove(w http.ResponseWriter, r *http.Request, index int) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		To int `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.presets.Move(index, req.To); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.presets.List())
}

type radioStartRequest struct {
	Frequency float64 `json:"frequency"`
	Program   int     `json:"program"`
	Host      string  `json:"host,omitempty"`
	Port      int     `json:"port,omitempty"`
}

func (a *API) handleRadioStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req radioStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	host := req.Host
	port := req.Port
	if host == "" && a.controller.cfg.Tuner.Host != "" {
		host = a.controller.cfg.Tuner.Host
		port = a.controller.cfg.Tuner.Port
	}
	if err := a.controller.StartRadio(req.Frequency, req.Program, host, port); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.agg.Snapshot())
}

func (a *API) handleRadioStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := a.controller.StopRadio(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.agg.Snapshot())
}

func (a *API) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	path, err := a.controller.StartRecording()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": path})
}

func (a *API) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := a.controller.StopRecording(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a.agg.Snapshot())
}
