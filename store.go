package session

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/chacha20poly1305"
)

// credentialScope seeds the deterministic primary key of the single
// credentials row, so every store instance addresses the same record.
const credentialScope = "portal:session:credentials"

// Credential is the persisted credentials row: one bearer token plus
// the serialized user record.
type Credential struct {
	bun.BaseModel `bun:"table:credentials,alias:cred"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email" json:"email,omitempty"`
	Token         []byte     `bun:"token,notnull" json:"-"`
	Nonce         []byte     `bun:"nonce" json:"-"`
	Profile       []byte     `bun:"profile" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// BunTokenStore persists credentials in SQLite through Bun so the
// session survives process restarts. The token can optionally be
// sealed at rest with an XChaCha20-Poly1305 key.
type BunTokenStore struct {
	db     *bun.DB
	repo   repository.Repository[*Credential]
	aead   cipher.AEAD
	logger Logger
	id     uuid.UUID
}

var _ TokenStore = (*BunTokenStore)(nil)

// BunTokenStoreOption customizes store construction.
type BunTokenStoreOption func(*BunTokenStore) error

// WithStoreCipherKey enables token-at-rest encryption. The key must be
// a valid XChaCha20-Poly1305 key (32 bytes).
func WithStoreCipherKey(key []byte) BunTokenStoreOption {
	return func(s *BunTokenStore) error {
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid credential cipher key").
				WithCode(goerrors.CodeBadRequest)
		}
		s.aead = aead
		return nil
	}
}

// WithStoreLogger overrides the default logger.
func WithStoreLogger(logger Logger) BunTokenStoreOption {
	return func(s *BunTokenStore) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// NewBunTokenStore creates a store over the given database. Run
// EnsureCredentialSchema (or the embedded migrations) first.
func NewBunTokenStore(db *bun.DB, opts ...BunTokenStoreOption) (*BunTokenStore, error) {
	if db == nil {
		return nil, goerrors.New("bun token store requires a database", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	id, err := hashid.NewUUID(credentialScope)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive credential record id")
	}

	handlers := repository.ModelHandlers[*Credential]{
		NewRecord: func() *Credential {
			return &Credential{}
		},
		GetID: func(record *Credential) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Credential, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}

	s := &BunTokenStore{
		db:     db,
		repo:   repository.NewRepository(db, handlers),
		logger: defLogger{},
		id:     id,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Save writes the credentials row, replacing any previous one.
func (s *BunTokenStore) Save(ctx context.Context, creds *StoredCredentials) error {
	if creds == nil || creds.Token == "" {
		return goerrors.New("cannot persist empty credentials", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	profile := []byte("{}")
	email := ""
	if creds.User != nil {
		var err error
		if profile, err = json.Marshal(creds.User); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to serialize user record")
		}
		email = creds.User.Email
	}

	token, nonce, err := s.seal([]byte(creds.Token))
	if err != nil {
		return err
	}

	now := time.Now()
	record := &Credential{
		ID:        s.id,
		Email:     email,
		Token:     token,
		Nonce:     nonce,
		Profile:   profile,
		UpdatedAt: &now,
	}

	_, err = s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("token = EXCLUDED.token").
		Set("nonce = EXCLUDED.nonce").
		Set("profile = EXCLUDED.profile").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist credentials")
	}

	return nil
}

// Load reads the credentials row; (nil, nil) when nothing is stored.
func (s *BunTokenStore) Load(ctx context.Context) (*StoredCredentials, error) {
	record, err := s.repo.GetByID(ctx, s.id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load credentials")
	}

	token, err := s.open(record.Token, record.Nonce)
	if err != nil {
		return nil, err
	}

	var user *User
	if len(record.Profile) > 0 && string(record.Profile) != "{}" {
		user = &User{}
		if err := json.Unmarshal(record.Profile, user); err != nil {
			s.logger.Warn("discarding unreadable stored user record", "error", err)
			user = nil
		}
	}

	return &StoredCredentials{
		Token: string(token),
		User:  user,
	}, nil
}

// Clear removes the credentials row. Idempotent.
func (s *BunTokenStore) Clear(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*Credential)(nil)).
		Where("id = ?", s.id).
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear credentials")
	}

	return nil
}

func (s *BunTokenStore) seal(plain []byte) ([]byte, []byte, error) {
	if s.aead == nil {
		return plain, nil, nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate credential nonce")
	}

	return s.aead.Seal(nil, nonce, plain, nil), nonce, nil
}

func (s *BunTokenStore) open(sealed, nonce []byte) ([]byte, error) {
	if s.aead == nil {
		return sealed, nil
	}

	if len(nonce) != s.aead.NonceSize() {
		return nil, goerrors.New("stored credential nonce is corrupted", goerrors.CategoryInternal)
	}

	plain, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decrypt stored credential")
	}

	return plain, nil
}

// MemoryTokenStore keeps credentials in process memory. It backs tests
// and ephemeral runs where persistence across restarts is not needed.
type MemoryTokenStore struct {
	mu    sync.Mutex
	creds *StoredCredentials
}

var _ TokenStore = (*MemoryTokenStore)(nil)

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load(ctx context.Context) (*StoredCredentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.creds == nil {
		return nil, nil
	}

	return &StoredCredentials{
		Token: s.creds.Token,
		User:  s.creds.User.Clone(),
	}, nil
}

func (s *MemoryTokenStore) Save(ctx context.Context, creds *StoredCredentials) error {
	if creds == nil || creds.Token == "" {
		return goerrors.New("cannot persist empty credentials", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = &StoredCredentials{
		Token: creds.Token,
		User:  creds.User.Clone(),
	}
	return nil
}

func (s *MemoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creds = nil
	return nil
}
