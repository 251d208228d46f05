package session

import (
	"errors"
	"strconv"
	"time"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/pkg/redis"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired session identifiers.
// Expiry is enforced by the redis key TTL, so an expired session is
// indistinguishable from one that never existed.
var ErrNotFound = errors.New("session not found")

const keyPrefix = "session:"

// Store keeps session state in redis, keyed by an opaque identifier
// that travels in the session cookie. Nothing about the identifier is
// derivable from the subject.
type Store struct {
	redis redis.RedisAdapter
	ttl   time.Duration
}

func NewStore(redisAdapter redis.RedisAdapter, ttl time.Duration) *Store {
	return &Store{
		redis: redisAdapter,
		ttl:   ttl,
	}
}

// Create opens a new session with a fresh identifier.
func (s *Store) Create(subjectID int64, role model.Role, username string) (*model.Session, error) {
	sess := &model.Session{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Role:      role,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Regenerate replaces a session's identifier while keeping its state,
// closing the fixation window around login.
func (s *Store) Regenerate(sessionID string) (*model.Session, error) {
	sess, err := s.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.Destroy(sessionID); err != nil {
		return nil, err
	}
	sess.ID = uuid.NewString()
	if err := s.save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) Get(sessionID string) (*model.Session, error) {
	values, err := s.redis.HGetAll(keyPrefix + sessionID)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ErrNotFound
	}

	subjectID, err := strconv.ParseInt(values["subject_id"], 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}
	createdAt, _ := time.Parse(time.RFC3339, values["created_at"])

	return &model.Session{
		ID:        sessionID,
		SubjectID: subjectID,
		Role:      model.Role(values["role"]),
		Username:  values["username"],
		CreatedAt: createdAt,
	}, nil
}

func (s *Store) Destroy(sessionID string) error {
	return s.redis.Del(keyPrefix + sessionID)
}

func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) save(sess *model.Session) error {
	key := keyPrefix + sess.ID
	err := s.redis.HSet(key, map[string]interface{}{
		"subject_id": strconv.FormatInt(sess.SubjectID, 10),
		"role":       string(sess.Role),
		"username":   sess.Username,
		"created_at": sess.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return s.redis.Expire(key, s.ttl)
}
