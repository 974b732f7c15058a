package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/study-pilot/internal/mastery"
	"github.com/p-n-ai/study-pilot/internal/platform/database"
	"github.com/p-n-ai/study-pilot/internal/roadmap"
)

const dbTimeout = 5 * time.Second

// migrationLockID is the advisory lock key held while the schema is applied.
const migrationLockID int64 = 0x5354504c

const schema = `
CREATE TABLE IF NOT EXISTS mastery_states (
	learner_id    TEXT NOT NULL,
	topic_id      TEXT NOT NULL,
	mastery       DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (mastery >= 0 AND mastery <= 1),
	p_learn       DOUBLE PRECISION NOT NULL,
	p_guess       DOUBLE PRECISION NOT NULL,
	p_slip        DOUBLE PRECISION NOT NULL,
	attempts      INTEGER NOT NULL DEFAULT 0,
	correct_count INTEGER NOT NULL DEFAULT 0 CHECK (correct_count >= 0 AND correct_count <= attempts),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (learner_id, topic_id)
);

CREATE TABLE IF NOT EXISTS quiz_instances (
	id           TEXT PRIMARY KEY,
	learner_id   TEXT NOT NULL,
	course_id    TEXT NOT NULL,
	topic_id     TEXT,
	question_ids TEXT[] NOT NULL,
	responses    TEXT[] CHECK (responses IS NULL OR cardinality(responses) = cardinality(question_ids)),
	score        INTEGER NOT NULL DEFAULT 0,
	percentage   DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS roadmaps (
	id           BIGSERIAL PRIMARY KEY,
	learner_id   TEXT NOT NULL,
	course_id    TEXT NOT NULL,
	plan         JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS roadmaps_latest_idx ON roadmaps (learner_id, course_id, generated_at DESC);

CREATE TABLE IF NOT EXISTS events (
	id         BIGSERIAL PRIMARY KEY,
	learner_id TEXT NOT NULL,
	course_id  TEXT,
	event_type TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresRepository is a PostgreSQL-backed Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository on pool.
func NewPostgresRepository(pool *pgxpool.Pool) (*PostgresRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresRepository{pool: pool}, nil
}

// Migrate creates the tables the repository and event logger use.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return database.Migrate(ctx, r.pool, migrationLockID, schema)
}

const masteryColumns = `learner_id, topic_id, mastery, p_learn, p_guess, p_slip, attempts, correct_count, updated_at`

func scanState(row pgx.Row) (mastery.State, error) {
	var s mastery.State
	err := row.Scan(&s.LearnerID, &s.TopicID, &s.Mastery, &s.PLearn, &s.PGuess, &s.PSlip,
		&s.Attempts, &s.CorrectCount, &s.UpdatedAt)
	return s, err
}

func (r *PostgresRepository) MasteryMap(ctx context.Context, learnerID string, topicIDs []string) (map[string]mastery.State, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx,
		`SELECT `+masteryColumns+`
		 FROM mastery_states
		 WHERE learner_id = $1 AND topic_id = ANY($2)`,
		learnerID,
		topicIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query mastery: %w", err)
	}
	defer rows.Close()

	out := make(map[string]mastery.State)
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mastery: %w", err)
		}
		out[s.TopicID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mastery: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) GetOrCreateMasteryState(ctx context.Context, learnerID, topicID string, params mastery.Params) (mastery.State, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := r.pool.Exec(ctx,
		`INSERT INTO mastery_states (learner_id, topic_id, p_learn, p_guess, p_slip)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (learner_id, topic_id) DO NOTHING`,
		learnerID, topicID, params.PLearn, params.PGuess, params.PSlip,
	); err != nil {
		return mastery.State{}, fmt.Errorf("create mastery state: %w", err)
	}

	s, err := scanState(r.pool.QueryRow(ctx,
		`SELECT `+masteryColumns+`
		 FROM mastery_states
		 WHERE learner_id = $1 AND topic_id = $2`,
		learnerID, topicID,
	))
	if err != nil {
		return mastery.State{}, fmt.Errorf("get mastery state: %w", err)
	}
	return s, nil
}

func persistMasteryState(ctx context.Context, tx pgx.Tx, w MasteryWrite) error {
	s := w.State
	updatedAt := s.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	cmd, err := tx.Exec(ctx,
		`UPDATE mastery_states
		 SET mastery = $3, p_learn = $4, p_guess = $5, p_slip = $6,
		     attempts = $7, correct_count = $8, updated_at = $9
		 WHERE learner_id = $1 AND topic_id = $2 AND attempts = $10`,
		s.LearnerID, s.TopicID, s.Mastery, s.PLearn, s.PGuess, s.PSlip,
		s.Attempts, s.CorrectCount, updatedAt, w.PrevAttempts,
	)
	if err != nil {
		return fmt.Errorf("update mastery state: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s/%s", ErrStaleMastery, s.LearnerID, s.TopicID)
	}
	return nil
}

func (r *PostgresRepository) PersistQuizInstance(ctx context.Context, q QuizInstance) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	createdAt := q.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO quiz_instances (id, learner_id, course_id, topic_id, question_ids, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		q.ID, q.LearnerID, q.CourseID, nullIfEmpty(q.TopicID), q.QuestionIDs, createdAt,
	)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetQuizInstance(ctx context.Context, id string) (QuizInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var (
		q       QuizInstance
		topicID *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, learner_id, course_id, topic_id, question_ids, responses, score, percentage, created_at, completed_at
		 FROM quiz_instances
		 WHERE id = $1`,
		id,
	).Scan(&q.ID, &q.LearnerID, &q.CourseID, &topicID, &q.QuestionIDs, &q.Responses,
		&q.Score, &q.Percentage, &q.CreatedAt, &q.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return QuizInstance{}, fmt.Errorf("%w: quiz %s", ErrNotFound, id)
		}
		return QuizInstance{}, fmt.Errorf("get quiz: %w", err)
	}
	if topicID != nil {
		q.TopicID = *topicID
	}
	return q, nil
}

// CompleteQuizInstance locks the quiz row and applies writes in the same
// transaction. The mastery rows must exist, so callers read them through
// GetOrCreateMasteryState first.
func (r *PostgresRepository) CompleteQuizInstance(ctx context.Context, q QuizInstance, writes []MasteryWrite) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var completedAt *time.Time
		err := tx.QueryRow(ctx,
			`SELECT completed_at FROM quiz_instances WHERE id = $1 FOR UPDATE`,
			q.ID,
		).Scan(&completedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: quiz %s", ErrNotFound, q.ID)
			}
			return fmt.Errorf("lock quiz: %w", err)
		}
		if completedAt != nil {
			return fmt.Errorf("%w: %s", ErrAlreadySubmitted, q.ID)
		}

		for _, w := range writes {
			if err := persistMasteryState(ctx, tx, w); err != nil {
				return err
			}
		}

		done := time.Now()
		if q.CompletedAt != nil {
			done = *q.CompletedAt
		}
		if _, err := tx.Exec(ctx,
			`UPDATE quiz_instances
			 SET responses = $2, score = $3, percentage = $4, completed_at = $5
			 WHERE id = $1`,
			q.ID, q.Responses, q.Score, q.Percentage, done,
		); err != nil {
			return fmt.Errorf("complete quiz: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) PersistRoadmap(ctx context.Context, plan roadmap.Roadmap) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal roadmap: %w", err)
	}

	generatedAt := plan.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	if _, err := r.pool.Exec(ctx,
		`INSERT INTO roadmaps (learner_id, course_id, plan, generated_at)
		 VALUES ($1, $2, $3::jsonb, $4)`,
		plan.LearnerID, plan.CourseID, string(data), generatedAt,
	); err != nil {
		return fmt.Errorf("insert roadmap: %w", err)
	}
	return nil
}

func (r *PostgresRepository) LatestRoadmap(ctx context.Context, learnerID, courseID string) (roadmap.Roadmap, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var data []byte
	err := r.pool.QueryRow(ctx,
		`SELECT plan
		 FROM roadmaps
		 WHERE learner_id = $1 AND course_id = $2
		 ORDER BY generated_at DESC, id DESC
		 LIMIT 1`,
		learnerID, courseID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return roadmap.Roadmap{}, fmt.Errorf("%w: roadmap for %s/%s", ErrNotFound, learnerID, courseID)
		}
		return roadmap.Roadmap{}, fmt.Errorf("get roadmap: %w", err)
	}

	var plan roadmap.Roadmap
	if err := json.Unmarshal(data, &plan); err != nil {
		return roadmap.Roadmap{}, fmt.Errorf("decode roadmap: %w", err)
	}
	return plan, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
