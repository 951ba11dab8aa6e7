package domain

// Setting is one global key/value row
// Maps to CockroachDB app_settings table
type Setting struct {
	Field       string `json:"field" db:"field"`
	Value       string `json:"value" db:"value"`
	Type        string `json:"type" db:"type"` // string, boolean, int
	Description string `json:"description,omitempty" db:"description"`
}
