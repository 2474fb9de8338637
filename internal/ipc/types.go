package ipc

// StopRequest stops the daemon's workers.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// WorkerStatus reports liveness of one supervised worker.
type WorkerStatus struct {
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
	PID   int    `json:"pid"`
}

// StatusResponse represents combined daemon and vault status information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	Role        string         `json:"role"`
	PID         int            `json:"pid"`
	VaultPath   string         `json:"vault_path"`
	LockPath    string         `json:"lock_path"`
	StageCounts map[string]int `json:"stage_counts"`
	Workers     []WorkerStatus `json:"workers"`
}

// SweepRequest runs one synchronous pipeline pass.
type SweepRequest struct{}

// SweepResponse reports sweep completion.
type SweepResponse struct {
	Completed bool   `json:"completed"`
	Message   string `json:"message"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether the notification was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
