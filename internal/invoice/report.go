package invoice

// FieldError is one validation finding: a dotted path into the document plus
// a human-readable message. Findings are data quality signals, not failures.
type FieldError struct {
	FieldPath string `json:"field_path"`
	Message   string `json:"message"`
}

// ValidationReport is the validator's verdict on a reconciled document.
// Created once at the end of the pipeline, never mutated afterwards.
type ValidationReport struct {
	IsValid    bool         `json:"is_valid"`
	Errors     []FieldError `json:"errors"`
	Confidence float32      `json:"confidence"`
}
