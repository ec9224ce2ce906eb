package libstore

import (
	"context"
	"database/sql"

	"dadcam.systems/core/internal/dadcamerr"
)

// Score override kinds (spec §3).
const (
	OverridePin     = "pin"
	OverridePromote = "promote"
	OverrideDemote  = "demote"
)

// ClipScore is one clip's computed quality score (spec §4's analyzer
// boundary feeds this row; overwritten in full on rescoring).
type ClipScore struct {
	ClipID          int64
	Overall         float64
	SceneScore      float64
	AudioScore      float64
	SharpnessScore  float64
	MotionScore     float64
	Reasons         string // JSON array of reason codes
	PipelineVersion int
	ScoringVersion  int
}

// UpsertClipScore writes (or rewrites) a clip's score row.
func (s *Store) UpsertClipScore(ctx context.Context, sc ClipScore) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clip_scores (clip_id, overall, scene_score, audio_score, sharpness_score, motion_score,
		                          reasons, pipeline_version, scoring_version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(clip_id) DO UPDATE SET overall = excluded.overall, scene_score = excluded.scene_score,
		     audio_score = excluded.audio_score, sharpness_score = excluded.sharpness_score,
		     motion_score = excluded.motion_score, reasons = excluded.reasons,
		     pipeline_version = excluded.pipeline_version, scoring_version = excluded.scoring_version`,
		sc.ClipID, sc.Overall, sc.SceneScore, sc.AudioScore, sc.SharpnessScore, sc.MotionScore,
		sc.Reasons, sc.PipelineVersion, sc.ScoringVersion)
	return err
}

// GetClipScore fetches a clip's score row.
func (s *Store) GetClipScore(ctx context.Context, clipID int64) (ClipScore, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT clip_id, overall, scene_score, audio_score, sharpness_score, motion_score, reasons,
		        pipeline_version, scoring_version
		 FROM clip_scores WHERE clip_id = ?`, clipID)
	var sc ClipScore
	if err := row.Scan(&sc.ClipID, &sc.Overall, &sc.SceneScore, &sc.AudioScore, &sc.SharpnessScore, &sc.MotionScore,
		&sc.Reasons, &sc.PipelineVersion, &sc.ScoringVersion); err != nil {
		if err == sql.ErrNoRows {
			return ClipScore{}, dadcamerr.NewNotFoundError("clip_score", idString(clipID))
		}
		return ClipScore{}, err
	}
	return sc, nil
}

// SetScoreOverride upserts a manual override for a clip.
func (s *Store) SetScoreOverride(ctx context.Context, clipID int64, kind string, value float64, note string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO score_overrides (clip_id, kind, value, note) VALUES (?, ?, ?, ?)
		 ON CONFLICT(clip_id) DO UPDATE SET kind = excluded.kind, value = excluded.value, note = excluded.note`,
		clipID, kind, value, note)
	return err
}

// EffectiveScore is a clip's score combined with any manual override,
// applied at read time (spec §3: overrides are "applied at read time
// to produce effective score").
type EffectiveScore struct {
	Base     ClipScore
	Override *ScoreOverride
	Value    float64
}

// ScoreOverride is a manual sort-affecting adjustment for a clip.
type ScoreOverride struct {
	ClipID int64
	Kind   string
	Value  float64
	Note   string
}

// GetEffectiveScore resolves a clip's sort-affecting score: pin forces
// a fixed value, promote/demote additively adjust the base overall
// score, and an absent override passes the base score through.
func (s *Store) GetEffectiveScore(ctx context.Context, clipID int64) (EffectiveScore, error) {
	base, err := s.GetClipScore(ctx, clipID)
	if err != nil {
		return EffectiveScore{}, err
	}

	var ov ScoreOverride
	row := s.db.QueryRowContext(ctx, `SELECT clip_id, kind, value, note FROM score_overrides WHERE clip_id = ?`, clipID)
	err = row.Scan(&ov.ClipID, &ov.Kind, &ov.Value, &ov.Note)
	if err == sql.ErrNoRows {
		return EffectiveScore{Base: base, Value: base.Overall}, nil
	}
	if err != nil {
		return EffectiveScore{}, err
	}

	value := base.Overall
	switch ov.Kind {
	case OverridePin:
		value = ov.Value
	case OverridePromote:
		value = base.Overall + ov.Value
	case OverrideDemote:
		value = base.Overall - ov.Value
	}
	return EffectiveScore{Base: base, Override: &ov, Value: value}, nil
}
