package libstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"dadcam.systems/core/internal/dadcamerr"
)

// Recipe is an immutable, content-addressed export definition (spec
// §4.9). Inserting with identical canonical inputs always succeeds and
// produces an equal recipe_hash under a fresh edit_uuid — recipes are
// never edited in place.
type Recipe struct {
	EditUUID           string
	Name               string
	PipelineVersion    int
	RecipeHash         string
	InputClipIDsJSON   string
	TitleText          string
	TitleOffsetSeconds float64
	AudioBlendParams   string
	TransformOverrides string
	OutputRelativePath string
	OutputHash         string
	CreatedAt          time.Time
}

// InsertRecipe inserts a new recipe row under a fresh edit_uuid.
func (s *Store) InsertRecipe(ctx context.Context, r Recipe) (string, error) {
	if r.EditUUID == "" {
		r.EditUUID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recipes (edit_uuid, name, pipeline_version, recipe_hash, input_clip_ids, title_text,
		                      title_offset_seconds, audio_blend_params, transform_overrides, output_relative_path,
		                      output_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.EditUUID, r.Name, r.PipelineVersion, r.RecipeHash, r.InputClipIDsJSON, r.TitleText,
		r.TitleOffsetSeconds, r.AudioBlendParams, r.TransformOverrides, r.OutputRelativePath, r.OutputHash, r.CreatedAt)
	if err != nil {
		return "", err
	}
	return r.EditUUID, nil
}

// GetRecipe fetches a recipe by edit_uuid.
func (s *Store) GetRecipe(ctx context.Context, editUUID string) (Recipe, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT edit_uuid, name, pipeline_version, recipe_hash, input_clip_ids, title_text, title_offset_seconds,
		        audio_blend_params, transform_overrides, output_relative_path, output_hash, created_at
		 FROM recipes WHERE edit_uuid = ?`, editUUID)
	var r Recipe
	if err := row.Scan(&r.EditUUID, &r.Name, &r.PipelineVersion, &r.RecipeHash, &r.InputClipIDsJSON, &r.TitleText,
		&r.TitleOffsetSeconds, &r.AudioBlendParams, &r.TransformOverrides, &r.OutputRelativePath, &r.OutputHash,
		&r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return Recipe{}, dadcamerr.NewNotFoundError("recipe", editUUID)
		}
		return Recipe{}, err
	}
	return r, nil
}

// SetRecipeOutput records the rendered output's relative path and
// content hash after a successful build (spec §4.9: "stored back on
// the recipe row by a later build step").
func (s *Store) SetRecipeOutput(ctx context.Context, editUUID, outputRelativePath, outputHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recipes SET output_relative_path = ?, output_hash = ? WHERE edit_uuid = ?`,
		outputRelativePath, outputHash, editUUID)
	if err != nil {
		return err
	}
	return checkAffected(res, "recipe", editUUID)
}

// FindRecipesByHash returns every recipe sharing a recipe_hash — used
// to demonstrate content-addressing (spec invariant (e)), not for
// dedup: distinct inserts with identical inputs are intentionally kept
// as independent rows.
func (s *Store) FindRecipesByHash(ctx context.Context, recipeHash string) ([]Recipe, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT edit_uuid, name, pipeline_version, recipe_hash, input_clip_ids, title_text, title_offset_seconds,
		        audio_blend_params, transform_overrides, output_relative_path, output_hash, created_at
		 FROM recipes WHERE recipe_hash = ?`, recipeHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recipe
	for rows.Next() {
		var r Recipe
		if err := rows.Scan(&r.EditUUID, &r.Name, &r.PipelineVersion, &r.RecipeHash, &r.InputClipIDsJSON, &r.TitleText,
			&r.TitleOffsetSeconds, &r.AudioBlendParams, &r.TransformOverrides, &r.OutputRelativePath, &r.OutputHash,
			&r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
