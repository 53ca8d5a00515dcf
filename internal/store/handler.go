package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gps-svr/internal/pipeline"
)

type snapshotResponse struct {
	DeviceID   uint16                   `json:"device_id"`
	Snapshot   *pipeline.TrackingObject `json:"snapshot"`
	TodayCount int                      `json:"today_count"`
}

// SnapshotHandler expone GET /snapshot?device=<id>: el último registro
// guardado en Redis y los mensajes DATA aceptados hoy (UTC).
func (r *Redis) SnapshotHandler(logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		id, err := strconv.ParseUint(req.URL.Query().Get("device"), 10, 16)
		if err != nil {
			http.Error(w, "device must be a number in range 0..65535", http.StatusBadRequest)
			return
		}
		deviceID := uint16(id)

		snap, err := r.LoadSnapshot(req.Context(), deviceID)
		if errors.Is(err, ErrNoSnapshot) {
			http.Error(w, "no snapshot for device", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("load snapshot failed", "device", deviceID, "err", err)
			http.Error(w, "redis unavailable", http.StatusBadGateway)
			return
		}
		count, err := r.DailyCount(req.Context(), deviceID, time.Now())
		if err != nil {
			logger.Error("daily count failed", "device", deviceID, "err", err)
			http.Error(w, "redis unavailable", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshotResponse{DeviceID: deviceID, Snapshot: snap, TodayCount: count}); err != nil {
			logger.Debug("write snapshot response failed", "device", deviceID, "err", err)
		}
	})
}
