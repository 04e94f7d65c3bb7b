package quiz

import (
	"context"
	"strings"
	"sync"
	"time"
)

// UserStore persists accounts and running point totals.
type UserStore interface {
	CreateUser(ctx context.Context, u User) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	// UserNames resolves display names for the given ids; ids without a
	// user are simply absent from the result.
	UserNames(ctx context.Context, ids []string) (map[string]string, error)
	CountQuizzesCreated(ctx context.Context, userID string) (int, error)
}

// GroupStore persists study groups and memberships.
type GroupStore interface {
	CreateGroup(ctx context.Context, g Group) (Group, error)
	GetGroup(ctx context.Context, id string) (Group, error)
	GetGroupByAccessCode(ctx context.Context, code string) (Group, error)
	AddMember(ctx context.Context, groupID, userID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	ListMembers(ctx context.Context, groupID string) ([]User, error)
	GroupsOf(ctx context.Context, userID string) ([]Group, error)
}

// QuizStore persists quizzes and their questions.
type QuizStore interface {
	// CreateQuiz stores the quiz and its questions atomically.
	CreateQuiz(ctx context.Context, q Quiz, questions []Question) (Quiz, error)
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	Questions(ctx context.Context, quizID string) ([]Question, error)
	QuizzesByGroup(ctx context.Context, groupID string) ([]Quiz, error)
	FinalizeQuiz(ctx context.Context, id string) error
}

// AttemptStore persists scored attempts.
type AttemptStore interface {
	// RecordAttempt stores the attempt and adds its points to the user's
	// running total, both exactly once per attempt key. Replaying a key
	// returns the stored attempt with applied=false and no second
	// increment.
	RecordAttempt(ctx context.Context, a Attempt) (stored Attempt, applied bool, err error)
	AttemptsByQuiz(ctx context.Context, quizID string) ([]Attempt, error)
	AttemptsByGroup(ctx context.Context, groupID string) ([]Attempt, error)
	AttemptsByUser(ctx context.Context, userID string) ([]Attempt, error)
	HasAttempted(ctx context.Context, userID, quizID string) (bool, error)
}

// Store is the full persistence surface of the service.
type Store interface {
	UserStore
	GroupStore
	QuizStore
	AttemptStore
}

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*User
	emails      map[string]string // lowercased email -> user id
	groups      map[string]*Group
	members     map[string]map[string]bool // group id -> user ids
	quizzes     map[string]*Quiz
	questions   map[string][]Question // quiz id -> questions
	attempts    map[string]*Attempt   // attempt id -> attempt
	attemptKeys map[string]string     // attempt key -> attempt id
	order       []string              // attempt ids in insertion order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		emails:      make(map[string]string),
		groups:      make(map[string]*Group),
		members:     make(map[string]map[string]bool),
		quizzes:     make(map[string]*Quiz),
		questions:   make(map[string][]Question),
		attempts:    make(map[string]*Attempt),
		attemptKeys: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, u User) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(u.Email))
	if _, taken := s.emails[email]; taken {
		return User{}, ErrEmailTaken
	}

	u.ID = generateID()
	u.Email = email
	u.CreatedAt = time.Now()
	s.users[u.ID] = &u
	s.emails[email] = u.ID
	return u, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *u, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return *s.users[id], nil
}

func (s *MemoryStore) UserNames(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			names[id] = u.Name
		}
	}
	return names, nil
}

func (s *MemoryStore) CountQuizzesCreated(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, q := range s.quizzes {
		if q.CreatorID == userID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateGroup(_ context.Context, g Group) (Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g.ID = generateID()
	g.CreatedAt = time.Now()
	s.groups[g.ID] = &g
	s.members[g.ID] = map[string]bool{g.CreatorID: true}
	return g, nil
}

func (s *MemoryStore) GetGroup(_ context.Context, id string) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return Group{}, ErrGroupNotFound
	}
	return *g, nil
}

func (s *MemoryStore) GetGroupByAccessCode(_ context.Context, code string) (Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.groups {
		if g.AccessCode == code {
			return *g, nil
		}
	}
	return Group{}, ErrGroupNotFound
}

func (s *MemoryStore) AddMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.members[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if members[userID] {
		return ErrAlreadyMember
	}
	members[userID] = true
	return nil
}

func (s *MemoryStore) RemoveMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.members[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if !members[userID] {
		return ErrNotMember
	}
	delete(members, userID)
	return nil
}

func (s *MemoryStore) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.members[groupID]
	if !ok {
		return false, ErrGroupNotFound
	}
	return members[userID], nil
}

func (s *MemoryStore) ListMembers(_ context.Context, groupID string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.members[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	users := make([]User, 0, len(members))
	for id := range members {
		if u, ok := s.users[id]; ok {
			users = append(users, *u)
		}
	}
	return users, nil
}

func (s *MemoryStore) GroupsOf(_ context.Context, userID string) ([]Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var groups []Group
	for groupID, members := range s.members {
		if members[userID] {
			groups = append(groups, *s.groups[groupID])
		}
	}
	return groups, nil
}

func (s *MemoryStore) CreateQuiz(_ context.Context, q Quiz, questions []Question) (Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q.ID = generateID()
	q.CreatedAt = time.Now()
	q.QuestionCount = len(questions)

	stored := make([]Question, len(questions))
	for i, question := range questions {
		question.ID = generateID()
		question.QuizID = q.ID
		stored[i] = question
	}

	s.quizzes[q.ID] = &q
	s.questions[q.ID] = stored
	return q, nil
}

func (s *MemoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quizzes[id]
	if !ok {
		return Quiz{}, ErrQuizNotFound
	}
	return *q, nil
}

func (s *MemoryStore) Questions(_ context.Context, quizID string) ([]Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.quizzes[quizID]; !ok {
		return nil, ErrQuizNotFound
	}
	return append([]Question(nil), s.questions[quizID]...), nil
}

func (s *MemoryStore) QuizzesByGroup(_ context.Context, groupID string) ([]Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.groups[groupID]; !ok {
		return nil, ErrGroupNotFound
	}
	var quizzes []Quiz
	for _, q := range s.quizzes {
		if q.GroupID == groupID {
			quizzes = append(quizzes, *q)
		}
	}
	return quizzes, nil
}

func (s *MemoryStore) FinalizeQuiz(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quizzes[id]
	if !ok {
		return ErrQuizNotFound
	}
	q.Finalized = true
	return nil
}

func (s *MemoryStore) RecordAttempt(_ context.Context, a Attempt) (Attempt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, seen := s.attemptKeys[a.Key]; seen {
		return *s.attempts[id], false, nil
	}

	user, ok := s.users[a.UserID]
	if !ok {
		return Attempt{}, false, ErrUserNotFound
	}

	a.ID = generateID()
	if a.AnsweredAt.IsZero() {
		a.AnsweredAt = time.Now()
	}
	s.attempts[a.ID] = &a
	s.attemptKeys[a.Key] = a.ID
	s.order = append(s.order, a.ID)
	user.Points += a.PointsObtained
	return a, true, nil
}

func (s *MemoryStore) AttemptsByQuiz(_ context.Context, quizID string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var attempts []Attempt
	for _, id := range s.order {
		if a := s.attempts[id]; a.QuizID == quizID {
			attempts = append(attempts, *a)
		}
	}
	return attempts, nil
}

func (s *MemoryStore) AttemptsByGroup(_ context.Context, groupID string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var attempts []Attempt
	for _, id := range s.order {
		a := s.attempts[id]
		if q, ok := s.quizzes[a.QuizID]; ok && q.GroupID == groupID {
			attempts = append(attempts, *a)
		}
	}
	return attempts, nil
}

func (s *MemoryStore) AttemptsByUser(_ context.Context, userID string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first, matching the SQL store.
	var attempts []Attempt
	for i := len(s.order) - 1; i >= 0; i-- {
		if a := s.attempts[s.order[i]]; a.UserID == userID {
			attempts = append(attempts, *a)
		}
	}
	return attempts, nil
}

func (s *MemoryStore) HasAttempted(_ context.Context, userID, quizID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.attempts {
		if a.UserID == userID && a.QuizID == quizID {
			return true, nil
		}
	}
	return false, nil
}
