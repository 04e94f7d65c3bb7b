package quiz

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaDDL bootstraps the service tables. Statements are idempotent so the
// server can run it on every start. attempt_answers.question_id has no
// foreign key on purpose: history must survive question deletion and render
// a placeholder instead.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
	id            uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	name          text NOT NULL,
	email         text NOT NULL UNIQUE,
	password_hash text NOT NULL,
	points        integer NOT NULL DEFAULT 0,
	created_at    timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS groups (
	id          uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	name        text NOT NULL,
	description text NOT NULL DEFAULT '',
	access_code text NOT NULL UNIQUE,
	icon        text NOT NULL DEFAULT '',
	color       text NOT NULL DEFAULT '',
	creator_id  uuid NOT NULL REFERENCES users(id),
	created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS group_members (
	group_id  uuid NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	user_id   uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	joined_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS quizzes (
	id             uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	title          text NOT NULL,
	school_level   text NOT NULL DEFAULT '',
	objective      text NOT NULL DEFAULT '',
	question_count integer NOT NULL,
	topics         text[] NOT NULL DEFAULT '{}',
	difficulties   text[] NOT NULL DEFAULT '{}',
	reference      text NOT NULL DEFAULT '',
	creator_id     uuid NOT NULL REFERENCES users(id),
	group_id       uuid REFERENCES groups(id),
	start_at       timestamptz,
	end_at         timestamptz,
	finalized      boolean NOT NULL DEFAULT false,
	created_at     timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_quizzes_group ON quizzes (group_id);

CREATE TABLE IF NOT EXISTS questions (
	id                  uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	quiz_id             uuid NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
	position            integer NOT NULL,
	topic               text NOT NULL,
	difficulty          text NOT NULL,
	school_level        text NOT NULL DEFAULT '',
	text                text NOT NULL,
	alternative_a       text NOT NULL,
	alternative_b       text NOT NULL,
	alternative_c       text NOT NULL,
	alternative_d       text NOT NULL,
	correct_alternative text NOT NULL,
	justification       text NOT NULL,
	reference           text NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_questions_quiz ON questions (quiz_id);

CREATE TABLE IF NOT EXISTS attempts (
	id              uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	attempt_key     text NOT NULL UNIQUE,
	quiz_id         uuid NOT NULL REFERENCES quizzes(id) ON DELETE CASCADE,
	user_id         uuid NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	correct_count   integer NOT NULL,
	total_questions integer NOT NULL,
	points_obtained integer NOT NULL,
	points_possible integer NOT NULL,
	percentage      double precision NOT NULL,
	answered_at     timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attempts_quiz ON attempts (quiz_id);
CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts (user_id);

CREATE TABLE IF NOT EXISTS attempt_answers (
	attempt_id  uuid NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
	question_id uuid NOT NULL,
	position    integer NOT NULL,
	chosen      text NOT NULL,
	correct     boolean NOT NULL,
	PRIMARY KEY (attempt_id, position)
);

CREATE TABLE IF NOT EXISTS events (
	id         uuid PRIMARY KEY DEFAULT gen_random_uuid(),
	quiz_id    uuid,
	user_id    uuid,
	event_type text NOT NULL,
	data       jsonb NOT NULL DEFAULT '{}'::jsonb,
	created_at timestamptz NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the service tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
