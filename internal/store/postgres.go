package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists models, tasks, defaults and status rows in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ai_models (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	local JSONB,
	remote JSONB
);

CREATE TABLE IF NOT EXISTS ai_tasks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	model_id TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	examples JSONB NOT NULL DEFAULT '[]',
	meta_data TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ai_model_status (
	model_id TEXT PRIMARY KEY,
	progress DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT '',
	downloaded BOOLEAN NOT NULL DEFAULT false,
	loaded BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS ai_default_models (
	kind TEXT PRIMARY KEY,
	model_id TEXT NOT NULL
);
`)
	return err
}

func scanModel(row pgx.Row) (ModelConfig, error) {
	var m ModelConfig
	var local, remote []byte
	if err := row.Scan(&m.ID, &m.Name, &m.Kind, &local, &remote); err != nil {
		return ModelConfig{}, err
	}
	if len(local) > 0 {
		_ = json.Unmarshal(local, &m.Local)
	}
	if len(remote) > 0 {
		_ = json.Unmarshal(remote, &m.Remote)
	}
	return m, nil
}

func (s *PostgresStore) GetModels(ctx context.Context) ([]ModelConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT id,name,kind,local,remote FROM ai_models ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ModelConfig
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetModel(ctx context.Context, id string) (ModelConfig, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT id,name,kind,local,remote FROM ai_models WHERE id=$1`, id)
	m, err := scanModel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ModelConfig{}, false, nil
	}
	if err != nil {
		return ModelConfig{}, false, err
	}
	return m, true, nil
}

func (s *PostgresStore) AddModel(ctx context.Context, in ModelInput) (string, error) {
	if err := validateModelInput(in); err != nil {
		return "", err
	}
	id := uuid.NewString()
	local, _ := json.Marshal(in.Local)
	remote, _ := json.Marshal(in.Remote)
	if in.Local == nil {
		local = nil
	}
	if in.Remote == nil {
		remote = nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_models(id,name,kind,local,remote) VALUES($1,$2,$3,$4,$5)`,
		id, in.Name, in.Kind, local, remote)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) UpdateModel(ctx context.Context, id string, in ModelInput) error {
	if err := validateModelInput(in); err != nil {
		return err
	}
	local, _ := json.Marshal(in.Local)
	remote, _ := json.Marshal(in.Remote)
	if in.Local == nil {
		local = nil
	}
	if in.Remote == nil {
		remote = nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ai_models SET name=$2,kind=$3,local=$4,remote=$5 WHERE id=$1`,
		id, in.Name, in.Kind, local, remote)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrModelNotFound
	}
	return nil
}

func (s *PostgresStore) RemoveModel(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ai_models WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrModelNotFound
	}
	_, _ = s.pool.Exec(ctx, `DELETE FROM ai_model_status WHERE model_id=$1`, id)
	return nil
}

func (s *PostgresStore) GetDefaultModel(ctx context.Context, kind ModelKind) (string, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT model_id FROM ai_default_models WHERE kind=$1`, kind)
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return id, true, nil
}

func (s *PostgresStore) SetDefaultModel(ctx context.Context, kind ModelKind, id string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO ai_default_models(kind, model_id) VALUES($1,$2)
ON CONFLICT (kind) DO UPDATE SET model_id=EXCLUDED.model_id`, kind, id)
	return err
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	var examples []byte
	if err := row.Scan(&t.ID, &t.Name, &t.ModelID, &t.SystemPrompt, &examples, &t.MetaData); err != nil {
		return Task{}, err
	}
	_ = json.Unmarshal(examples, &t.Examples)
	return t, nil
}

func (s *PostgresStore) GetTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.pool.Query(ctx, `SELECT id,name,model_id,system_prompt,examples,meta_data FROM ai_tasks ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (Task, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT id,name,model_id,system_prompt,examples,meta_data FROM ai_tasks WHERE id=$1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, err
	}
	return t, true, nil
}

func (s *PostgresStore) AddTask(ctx context.Context, name, modelID, systemPrompt string, examples []PromptExample, metaData string) (string, error) {
	id := uuid.NewString()
	if examples == nil {
		examples = []PromptExample{}
	}
	ex, _ := json.Marshal(examples)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ai_tasks(id,name,model_id,system_prompt,examples,meta_data) VALUES($1,$2,$3,$4,$5,$6)`,
		id, name, modelID, systemPrompt, ex, metaData)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, t Task) error {
	if t.Examples == nil {
		t.Examples = []PromptExample{}
	}
	ex, _ := json.Marshal(t.Examples)
	tag, err := s.pool.Exec(ctx,
		`UPDATE ai_tasks SET name=$2,model_id=$3,system_prompt=$4,examples=$5,meta_data=$6 WHERE id=$1`,
		t.ID, t.Name, t.ModelID, t.SystemPrompt, ex, t.MetaData)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *PostgresStore) RemoveTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ai_tasks WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertModelStatus(ctx context.Context, st ModelStatus) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO ai_model_status(model_id,progress,status,downloaded,loaded) VALUES($1,$2,$3,$4,$5)
ON CONFLICT (model_id) DO UPDATE SET progress=EXCLUDED.progress, status=EXCLUDED.status,
	downloaded=EXCLUDED.downloaded, loaded=EXCLUDED.loaded`,
		st.Model, st.Progress, st.Status, st.Downloaded, st.Loaded)
	return err
}

func (s *PostgresStore) GetModelStatus(ctx context.Context, id string) (ModelStatus, bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT model_id,progress,status,downloaded,loaded FROM ai_model_status WHERE model_id=$1`, id)
	var st ModelStatus
	if err := row.Scan(&st.Model, &st.Progress, &st.Status, &st.Downloaded, &st.Loaded); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ModelStatus{}, false, nil
		}
		return ModelStatus{}, false, err
	}
	return st, true, nil
}
