package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func withDBTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, dbTimeout)
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) (User, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING id::text, points, created_at`,
		u.Name,
		u.Email,
		u.PasswordHash,
	).Scan(&u.ID, &u.Points, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrEmailTaken
	}
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	return s.getUserByQuery(ctx,
		`SELECT id::text, name, email, password_hash, points, created_at
		 FROM users WHERE id = $1::uuid`,
		id,
	)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	return s.getUserByQuery(ctx,
		`SELECT id::text, name, email, password_hash, points, created_at
		 FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)),
	)
}

func (s *PostgresStore) getUserByQuery(ctx context.Context, query string, args ...any) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Points, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) UserNames(ctx context.Context, ids []string) (map[string]string, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, name FROM users WHERE id = ANY($1::uuid[])`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("query user names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan user name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

func (s *PostgresStore) CountQuizzesCreated(ctx context.Context, userID string) (int, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quizzes WHERE creator_id = $1::uuid`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count quizzes: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CreateGroup(ctx context.Context, g Group) (Group, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Group{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO groups (name, description, access_code, icon, color, creator_id)
		 VALUES ($1, $2, $3, $4, $5, $6::uuid)
		 RETURNING id::text, created_at`,
		g.Name, g.Description, g.AccessCode, g.Icon, g.Color, g.CreatorID,
	).Scan(&g.ID, &g.CreatedAt)
	if err != nil {
		return Group{}, fmt.Errorf("create group: %w", err)
	}

	// The creator is a member from the start.
	if _, err := tx.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id) VALUES ($1::uuid, $2::uuid)`,
		g.ID, g.CreatorID,
	); err != nil {
		return Group{}, fmt.Errorf("add creator membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Group{}, fmt.Errorf("commit: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, id string) (Group, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	return s.getGroupByQuery(ctx,
		`SELECT id::text, name, description, access_code, icon, color, creator_id::text, created_at
		 FROM groups WHERE id = $1::uuid`,
		id,
	)
}

func (s *PostgresStore) GetGroupByAccessCode(ctx context.Context, code string) (Group, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	return s.getGroupByQuery(ctx,
		`SELECT id::text, name, description, access_code, icon, color, creator_id::text, created_at
		 FROM groups WHERE access_code = $1`,
		code,
	)
}

func (s *PostgresStore) getGroupByQuery(ctx context.Context, query string, args ...any) (Group, error) {
	var g Group
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&g.ID, &g.Name, &g.Description, &g.AccessCode, &g.Icon, &g.Color, &g.CreatorID, &g.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Group{}, ErrGroupNotFound
	}
	if err != nil {
		return Group{}, fmt.Errorf("get group: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) AddMember(ctx context.Context, groupID, userID string) error {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	if err := s.groupExists(ctx, groupID); err != nil {
		return err
	}

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id)
		 VALUES ($1::uuid, $2::uuid)
		 ON CONFLICT DO NOTHING`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyMember
	}
	return nil
}

func (s *PostgresStore) RemoveMember(ctx context.Context, groupID, userID string) error {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	if err := s.groupExists(ctx, groupID); err != nil {
		return err
	}

	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1::uuid AND user_id = $2::uuid`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotMember
	}
	return nil
}

func (s *PostgresStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	if err := s.groupExists(ctx, groupID); err != nil {
		return false, err
	}

	var member bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM group_members WHERE group_id = $1::uuid AND user_id = $2::uuid
		 )`,
		groupID, userID,
	).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, groupID string) ([]User, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	if err := s.groupExists(ctx, groupID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT u.id::text, u.name, u.email, u.password_hash, u.points, u.created_at
		 FROM group_members m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.group_id = $1::uuid
		 ORDER BY m.joined_at ASC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Points, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) GroupsOf(ctx context.Context, userID string) ([]Group, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT g.id::text, g.name, g.description, g.access_code, g.icon, g.color, g.creator_id::text, g.created_at
		 FROM group_members m
		 JOIN groups g ON g.id = m.group_id
		 WHERE m.user_id = $1::uuid
		 ORDER BY m.joined_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.AccessCode, &g.Icon, &g.Color, &g.CreatorID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *PostgresStore) groupExists(ctx context.Context, groupID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1::uuid)`,
		groupID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check group: %w", err)
	}
	if !exists {
		return ErrGroupNotFound
	}
	return nil
}

func (s *PostgresStore) CreateQuiz(ctx context.Context, q Quiz, questions []Question) (Quiz, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Quiz{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	q.QuestionCount = len(questions)
	err = tx.QueryRow(ctx,
		`INSERT INTO quizzes (title, school_level, objective, question_count, topics, difficulties,
		                      reference, creator_id, group_id, start_at, end_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::uuid, $9, $10, $11)
		 RETURNING id::text, created_at`,
		q.Title, q.SchoolLevel, q.Objective, q.QuestionCount, q.Topics, q.Difficulties,
		q.Reference, q.CreatorID, nullIfEmpty(q.GroupID), q.StartAt, q.EndAt,
	).Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		return Quiz{}, fmt.Errorf("create quiz: %w", err)
	}

	for i := range questions {
		questions[i].QuizID = q.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO questions (quiz_id, position, topic, difficulty, school_level, text,
			                        alternative_a, alternative_b, alternative_c, alternative_d,
			                        correct_alternative, justification, reference)
			 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 RETURNING id::text`,
			q.ID, i, questions[i].Topic, questions[i].Difficulty, questions[i].SchoolLevel,
			questions[i].Text, questions[i].AlternativeA, questions[i].AlternativeB,
			questions[i].AlternativeC, questions[i].AlternativeD,
			questions[i].CorrectAlternative, questions[i].Justification, questions[i].Reference,
		).Scan(&questions[i].ID)
		if err != nil {
			return Quiz{}, fmt.Errorf("create question %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Quiz{}, fmt.Errorf("commit: %w", err)
	}
	return q, nil
}

func (s *PostgresStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	q, err := scanQuiz(s.pool.QueryRow(ctx,
		quizSelect+` WHERE id = $1::uuid`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Quiz{}, ErrQuizNotFound
	}
	if err != nil {
		return Quiz{}, fmt.Errorf("get quiz: %w", err)
	}
	return q, nil
}

const quizSelect = `SELECT id::text, title, school_level, objective, question_count, topics, difficulties,
       reference, creator_id::text, COALESCE(group_id::text, ''), start_at, end_at, finalized, created_at
  FROM quizzes`

func scanQuiz(row pgx.Row) (Quiz, error) {
	var q Quiz
	err := row.Scan(
		&q.ID, &q.Title, &q.SchoolLevel, &q.Objective, &q.QuestionCount,
		&q.Topics, &q.Difficulties, &q.Reference, &q.CreatorID, &q.GroupID,
		&q.StartAt, &q.EndAt, &q.Finalized, &q.CreatedAt,
	)
	return q, err
}

func (s *PostgresStore) Questions(ctx context.Context, quizID string) ([]Question, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	if _, err := s.GetQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, quiz_id::text, topic, difficulty, school_level, text,
		        alternative_a, alternative_b, alternative_c, alternative_d,
		        correct_alternative, justification, reference
		 FROM questions
		 WHERE quiz_id = $1::uuid
		 ORDER BY position ASC`,
		quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(
			&q.ID, &q.QuizID, &q.Topic, &q.Difficulty, &q.SchoolLevel, &q.Text,
			&q.AlternativeA, &q.AlternativeB, &q.AlternativeC, &q.AlternativeD,
			&q.CorrectAlternative, &q.Justification, &q.Reference,
		); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *PostgresStore) QuizzesByGroup(ctx context.Context, groupID string) ([]Quiz, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	if err := s.groupExists(ctx, groupID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		quizSelect+` WHERE group_id = $1::uuid ORDER BY created_at DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

func (s *PostgresStore) FinalizeQuiz(ctx context.Context, id string) error {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE quizzes SET finalized = true WHERE id = $1::uuid`,
		id,
	)
	if err != nil {
		return fmt.Errorf("finalize quiz: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrQuizNotFound
	}
	return nil
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, a Attempt) (Attempt, bool, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Attempt{}, false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	answeredAt := a.AnsweredAt
	if answeredAt.IsZero() {
		answeredAt = time.Now()
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO attempts (attempt_key, quiz_id, user_id, correct_count, total_questions,
		                       points_obtained, points_possible, percentage, answered_at)
		 VALUES ($1, $2::uuid, $3::uuid, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (attempt_key) DO NOTHING
		 RETURNING id::text, answered_at`,
		a.Key, a.QuizID, a.UserID, a.CorrectCount, a.TotalQuestions,
		a.PointsObtained, a.PointsPossible, a.Percentage, answeredAt,
	).Scan(&a.ID, &a.AnsweredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Replay: the key was already recorded, points stay untouched.
		stored, err := s.attemptByKey(ctx, a.Key)
		if err != nil {
			return Attempt{}, false, err
		}
		return stored, false, nil
	}
	if err != nil {
		return Attempt{}, false, fmt.Errorf("insert attempt: %w", err)
	}

	for i, ans := range a.Answers {
		if _, err := tx.Exec(ctx,
			`INSERT INTO attempt_answers (attempt_id, question_id, position, chosen, correct)
			 VALUES ($1::uuid, $2::uuid, $3, $4, $5)`,
			a.ID, ans.QuestionID, i, ans.Chosen, ans.Correct,
		); err != nil {
			return Attempt{}, false, fmt.Errorf("insert answer %d: %w", i, err)
		}
	}

	cmd, err := tx.Exec(ctx,
		`UPDATE users SET points = points + $2 WHERE id = $1::uuid`,
		a.UserID, a.PointsObtained,
	)
	if err != nil {
		return Attempt{}, false, fmt.Errorf("update points: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return Attempt{}, false, ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return Attempt{}, false, fmt.Errorf("commit: %w", err)
	}
	return a, true, nil
}

func (s *PostgresStore) attemptByKey(ctx context.Context, key string) (Attempt, error) {
	var a Attempt
	a.Key = key
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, quiz_id::text, user_id::text, correct_count, total_questions,
		        points_obtained, points_possible, percentage, answered_at
		 FROM attempts WHERE attempt_key = $1`,
		key,
	).Scan(
		&a.ID, &a.QuizID, &a.UserID, &a.CorrectCount, &a.TotalQuestions,
		&a.PointsObtained, &a.PointsPossible, &a.Percentage, &a.AnsweredAt,
	)
	if err != nil {
		return Attempt{}, fmt.Errorf("get attempt by key: %w", err)
	}

	answers, err := s.attemptAnswers(ctx, []string{a.ID})
	if err != nil {
		return Attempt{}, err
	}
	a.Answers = answers[a.ID]
	return a, nil
}

func (s *PostgresStore) AttemptsByQuiz(ctx context.Context, quizID string) ([]Attempt, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	return s.attemptsByQuery(ctx,
		attemptSelect+` WHERE quiz_id = $1::uuid ORDER BY answered_at ASC`,
		quizID,
	)
}

func (s *PostgresStore) AttemptsByGroup(ctx context.Context, groupID string) ([]Attempt, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	return s.attemptsByQuery(ctx,
		`SELECT a.id::text, a.quiz_id::text, a.user_id::text, a.correct_count, a.total_questions,
		        a.points_obtained, a.points_possible, a.percentage, a.answered_at
		 FROM attempts a
		 JOIN quizzes q ON q.id = a.quiz_id
		 WHERE q.group_id = $1::uuid
		 ORDER BY a.answered_at ASC`,
		groupID,
	)
}

const attemptSelect = `SELECT id::text, quiz_id::text, user_id::text, correct_count, total_questions,
       points_obtained, points_possible, percentage, answered_at
  FROM attempts`

func (s *PostgresStore) AttemptsByUser(ctx context.Context, userID string) ([]Attempt, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	attempts, err := s.attemptsByQuery(ctx,
		attemptSelect+` WHERE user_id = $1::uuid ORDER BY answered_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return attempts, nil
	}

	ids := make([]string, len(attempts))
	for i, a := range attempts {
		ids[i] = a.ID
	}
	answers, err := s.attemptAnswers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		attempts[i].Answers = answers[attempts[i].ID]
	}
	return attempts, nil
}

func (s *PostgresStore) attemptsByQuery(ctx context.Context, query string, args ...any) ([]Attempt, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(
			&a.ID, &a.QuizID, &a.UserID, &a.CorrectCount, &a.TotalQuestions,
			&a.PointsObtained, &a.PointsPossible, &a.Percentage, &a.AnsweredAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *PostgresStore) attemptAnswers(ctx context.Context, attemptIDs []string) (map[string][]AnswerDetail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT attempt_id::text, question_id::text, chosen, correct
		 FROM attempt_answers
		 WHERE attempt_id = ANY($1::uuid[])
		 ORDER BY attempt_id, position ASC`,
		attemptIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	answers := make(map[string][]AnswerDetail)
	for rows.Next() {
		var attemptID string
		var d AnswerDetail
		if err := rows.Scan(&attemptID, &d.QuestionID, &d.Chosen, &d.Correct); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers[attemptID] = append(answers[attemptID], d)
	}
	return answers, rows.Err()
}

func (s *PostgresStore) HasAttempted(ctx context.Context, userID, quizID string) (bool, error) {
	ctx, cancel := withDBTimeout(ctx)
	defer cancel()

	var attempted bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM attempts WHERE user_id = $1::uuid AND quiz_id = $2::uuid
		 )`,
		userID, quizID,
	).Scan(&attempted)
	if err != nil {
		return false, fmt.Errorf("check attempt: %w", err)
	}
	return attempted, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
