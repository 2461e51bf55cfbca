package model

// HealthyStatus is the status string a ready classifier reports.
const HealthyStatus = "healthy"

// ServerHealth is a snapshot of the classifier's readiness.
type ServerHealth struct {
	Status         string `json:"status"`
	TotalFeatures  int    `json:"total_features"`
	EncoderLoaded  bool   `json:"encoder_loaded"`
	FeaturesLoaded bool   `json:"features_loaded"`
	ModelLoaded    bool   `json:"model_loaded"`
	ScalerLoaded   bool   `json:"scaler_loaded"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// HealthError builds the snapshot returned when the health check itself failed.
func HealthError(msg string) ServerHealth {
	return ServerHealth{Status: "error", ErrorMessage: msg}
}

// IsHealthy holds when the check succeeded and the server said "healthy".
// The model-loaded flags are reported but do not take part.
func (h ServerHealth) IsHealthy() bool {
	return h.ErrorMessage == "" && h.Status == HealthyStatus
}

// AllModelsLoaded reports whether all four classifier components are loaded.
func (h ServerHealth) AllModelsLoaded() bool {
	return h.EncoderLoaded && h.FeaturesLoaded && h.ModelLoaded && h.ScalerLoaded
}
