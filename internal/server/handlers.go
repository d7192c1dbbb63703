package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bogenrs/silverline-hood/internal/hood"
)

// HealthHandler returns a simple OK for liveness checks.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusResponse struct {
	State               hood.State `json:"state"`
	Profile             string     `json:"profile"`
	FanPercent          int        `json:"fan_percent"`
	LightOn             bool       `json:"light_on"`
	LastSuccess         string     `json:"last_success,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

// StatusHandler serves the last known snapshot plus the health signal the
// entity layer needs for availability decisions.
func StatusHandler(client *hood.Client) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		state := client.Snapshot()
		profile := client.Profile()
		health := client.Health()

		resp := statusResponse{
			State:               state,
			Profile:             profile.Name,
			ConsecutiveFailures: health.ConsecutiveFailures,
		}
		if motor, ok := state.Int(hood.FieldMotor); ok {
			resp.FanPercent = profile.PercentForMotorValue(motor)
		}
		if light, ok := state.Int(hood.FieldLight); ok {
			resp.LightOn = light == profile.LightOn
		}
		if !health.LastSuccess.IsZero() {
			resp.LastSuccess = health.LastSuccess.UTC().Format(time.RFC3339)
		}

		writeJSON(w, http.StatusOK, resp)
	})
}

type commandRequest struct {
	Name  string     `json:"name,omitempty"`
	Delta hood.State `json:"delta,omitempty"`
}

type commandResponse struct {
	Applied bool       `json:"applied"`
	Error   string     `json:"error,omitempty"`
	State   hood.State `json:"state,omitempty"`
}

// CommandHandler dispatches a symbolic command or a raw delta. Device
// failures surface as applied=false, never as a 5xx: one flaky appliance
// exchange is a normal outcome, not a server error.
func CommandHandler(client *hood.Client) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if (req.Name == "") == (len(req.Delta) == 0) {
			http.Error(w, "exactly one of name or delta is required", http.StatusBadRequest)
			return
		}

		var (
			state hood.State
			err   error
		)
		if req.Name != "" {
			var cmd hood.Command
			cmd, err = hood.ParseCommand(req.Name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			state, err = client.SendSymbolic(r.Context(), cmd)
		} else {
			state, err = client.SendDelta(r.Context(), req.Delta)
		}

		if err != nil {
			writeJSON(w, http.StatusOK, commandResponse{Applied: false, Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, commandResponse{Applied: true, State: state})
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
