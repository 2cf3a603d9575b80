package model

// Preset is a named template of default field values.
type Preset struct {
	Name   string            `json:"name"`
	Fields map[string]string `json:"fields"`
}
