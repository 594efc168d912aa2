package migrate

import "fmt"

// State is a position in the update state machine
type State int

const (
	Init State = iota
	DetectState
	SelectSource
	CompareVersions
	AheadOfRemote
	UpToDate
	NeedsUpdate
	BackupLegacy
	RemoveLegacy
	PreparePackagedDir
	FetchContent
	RestoreLauncherScript
	RetrieveVersionMarker
	RemoveOldVersionMarker
	RestorePreservedFiles
	Cleanup
	Done
	// Halted marks a run stopped by an error
	Halted
)

var stateNames = map[State]string{
	Init:                   "Init",
	DetectState:            "DetectState",
	SelectSource:           "SelectSource",
	CompareVersions:        "CompareVersions",
	AheadOfRemote:          "AheadOfRemote",
	UpToDate:               "UpToDate",
	NeedsUpdate:            "NeedsUpdate",
	BackupLegacy:           "BackupLegacy",
	RemoveLegacy:           "RemoveLegacy",
	PreparePackagedDir:     "PreparePackagedDir",
	FetchContent:           "FetchContent",
	RestoreLauncherScript:  "RestoreLauncherScript",
	RetrieveVersionMarker:  "RetrieveVersionMarker",
	RemoveOldVersionMarker: "RemoveOldVersionMarker",
	RestorePreservedFiles:  "RestorePreservedFiles",
	Cleanup:                "Cleanup",
	Done:                   "Done",
	Halted:                 "Halted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transition follows s
func (s State) Terminal() bool {
	switch s {
	case AheadOfRemote, UpToDate, Done, Halted:
		return true
	}
	return false
}
