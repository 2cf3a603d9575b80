package model

// BuildInfo is the structured result of parsing a ROM filename.
type BuildInfo struct {
	RomName   string
	Device    string
	Version   string
	BuildDate string
	Status    string
	Variant   string
}
