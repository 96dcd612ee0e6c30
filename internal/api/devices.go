package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-miot/internal/bridge"
	"github.com/nerrad567/gray-logic-miot/internal/device"
	"github.com/nerrad567/gray-logic-miot/internal/entity"
	"github.com/nerrad567/gray-logic-miot/internal/host"
)

// maxStateBodySize caps device update bodies.
const maxStateBodySize = 64 << 10

// handleListDevices returns all devices.
//
// Query parameters:
//   - model: filter by device model
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")

	summaries := make([]device.Summary, 0, s.devices.GetDeviceCount())
	for _, d := range s.devices.ListDevices() {
		if model != "" && d.Model != model {
			continue
		}
		summaries = append(summaries, d.Summary())
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": summaries, "count": len(summaries)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.lookupDevice(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, dev.Summary())
}

// handleRemoveDevice detaches a device and its entities. Registry entries
// are kept so the entity IDs survive a later re-add.
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.runtime.RemoveDevice(r.Context(), id); err != nil {
		if errors.Is(err, host.ErrDeviceNotFound) || errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("removing device", "device_id", id, "error", err)
		writeInternalError(w, "failed to remove device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceEntities returns snapshots of the entities built for a device.
func (s *Server) handleDeviceEntities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ents, err := s.runtime.DeviceEntities(id)
	if err != nil {
		if errors.Is(err, host.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeInternalError(w, "failed to list entities")
		return
	}

	snaps := make([]entity.Snapshot, 0, len(ents))
	for _, e := range ents {
		snaps = append(snaps, e.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "entities": snaps, "count": len(snaps)})
}

// handlePushDeviceState feeds a device update through the same path as an
// MQTT state message. The body is either the bare data object or an
// envelope with a "data" field.
func (s *Server) handlePushDeviceState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.lookupDevice(w, r); !ok {
		return
	}

	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStateBodySize)).Decode(&raw); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	msg, err := bridge.ParseStateMessage(id, raw)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := s.devices.Dispatch(id, msg.Data); err != nil {
		s.collector.DeviceUpdate("error")
		writeInternalError(w, "failed to dispatch update")
		return
	}
	s.collector.DeviceUpdate("dispatched")

	writeJSON(w, http.StatusAccepted, map[string]any{"device_id": id, "keys": len(msg.Data)})
}

func (s *Server) lookupDevice(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return nil, false
	}

	dev, err := s.devices.GetDevice(id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return nil, false
		}
		writeInternalError(w, "failed to get device")
		return nil, false
	}
	return dev, true
}
