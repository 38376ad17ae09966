package api

import (
	"io"
	"net/http"
)

// ingestResponse is the acknowledgement returned to a sensor.
type ingestResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	DeviceID string `json:"deviceId"`
	Created  bool   `json:"created"`
}

// handleIngest accepts one sensor reading. The payload shape is not
// validated: the normalizer maps anything it cannot read to zero values
// and the fallback device id.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	ack, err := s.engine.Ingest(r.Context(), body, "")
	if err != nil {
		writeIngestError(w, ack.DeviceID, err)
		return
	}

	message := "Data received"
	if ack.Created {
		message = "Data received, device registered"
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		Status:   ack.Status,
		Message:  message,
		DeviceID: ack.DeviceID,
		Created:  ack.Created,
	})
}
