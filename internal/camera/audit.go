package camera

import "fmt"

// MatchInputSignature is the portion of ClipSignature persisted into
// the clip's sidecar audit, replayed unchanged by the rematch engine
// so a rematch sees exactly what the original ingest saw.
type MatchInputSignature struct {
	Make         string  `json:"make"`
	Model        string  `json:"model"`
	Serial       string  `json:"serial"`
	Codec        string  `json:"codec"`
	Container    string  `json:"container"`
	Width        int     `json:"width"`
	Height       int     `json:"height"`
	FPS          float64 `json:"fps"`
	FieldOrder   string  `json:"fieldOrder"`
	CompressorID string  `json:"compressorId"`
	FolderPath   string  `json:"folderPath"`
}

// MatchAudit is the full sidecar record of one match run: the input
// that was matched against, every candidate considered, and the winner.
type MatchAudit struct {
	InputSignature  MatchInputSignature `json:"inputSignature"`
	Candidates      []Candidate         `json:"candidates"`
	Winner          MatchAuditWinner    `json:"winner"`
}

type MatchAuditWinner struct {
	ProfileType      ProfileType `json:"profileType"`
	Slug             string      `json:"slug"`
	Confidence       float64     `json:"confidence"`
	MatchSource      string      `json:"matchSource"`
	AssignmentReason string      `json:"assignmentReason"`
}

// BuildAudit assembles the sidecar-persisted audit record for one
// match run.
func BuildAudit(sig ClipSignature, fieldOrder, compressorID string, result MatchResult) MatchAudit {
	reason := assignmentReason(result)
	return MatchAudit{
		InputSignature: MatchInputSignature{
			Make:         sig.CameraMake,
			Model:        sig.CameraModel,
			Serial:       sig.SerialNumber,
			Codec:        sig.Codec,
			Container:    sig.Container,
			Width:        sig.Width,
			Height:       sig.Height,
			FPS:          sig.FPS,
			FieldOrder:   fieldOrder,
			CompressorID: compressorID,
			FolderPath:   sig.SourceFolder,
		},
		Candidates: result.Candidates,
		Winner: MatchAuditWinner{
			ProfileType:      result.ProfileType,
			Slug:             result.ProfileRef,
			Confidence:       result.Confidence,
			MatchSource:      result.MatchSource,
			AssignmentReason: reason,
		},
	}
}

func assignmentReason(result MatchResult) string {
	if result.MatchSource == SourceGenericFallback {
		return "No profile scored above threshold, using generic fallback"
	}
	return fmt.Sprintf("%s match (confidence %.2f)", result.MatchSource, result.Confidence)
}
