package secrets

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql driver
	_ "github.com/lib/pq"              // postgres driver
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
	_ "modernc.org/sqlite" // sqlite driver
)

const (
	nonceSize = 24
	saltSize  = 16
)

// Store keeps endpoint passwords encrypted in sqlite, postgres or mysql.
// Values are sealed with nacl secretbox, the box key is derived from the store key with argon2id.
type Store struct {
	db      *sql.DB
	key     []byte
	dialect dialect
}

// dialect holds driver name and statements for a database type
type dialect struct {
	driver string
	upsert string
	get    string
	del    string
	list   string
}

var dialects = map[string]dialect{
	"sqlite": {
		driver: "sqlite",
		upsert: "INSERT OR REPLACE INTO graphly_secrets (skey, sval) VALUES (?, ?)",
		get:    "SELECT sval FROM graphly_secrets WHERE skey = ?",
		del:    "DELETE FROM graphly_secrets WHERE skey = ?",
		list:   "SELECT skey FROM graphly_secrets ORDER BY skey",
	},
	"postgres": {
		driver: "postgres",
		upsert: "INSERT INTO graphly_secrets (skey, sval) VALUES ($1, $2) ON CONFLICT (skey) DO UPDATE SET sval = $2",
		get:    "SELECT sval FROM graphly_secrets WHERE skey = $1",
		del:    "DELETE FROM graphly_secrets WHERE skey = $1",
		list:   "SELECT skey FROM graphly_secrets ORDER BY skey",
	},
	"mysql": {
		driver: "mysql",
		upsert: "REPLACE INTO graphly_secrets (skey, sval) VALUES (?, ?)",
		get:    "SELECT sval FROM graphly_secrets WHERE skey = ?",
		del:    "DELETE FROM graphly_secrets WHERE skey = ?",
		list:   "SELECT skey FROM graphly_secrets ORDER BY skey",
	},
}

// DBType detects database type from the connection string
func DBType(conn string) (string, error) {
	switch {
	case strings.HasPrefix(conn, "postgres://"):
		return "postgres", nil
	case strings.Contains(conn, "@tcp("):
		return "mysql", nil
	case strings.HasPrefix(conn, "file:") || strings.HasSuffix(conn, ".sqlite") || strings.HasSuffix(conn, ".db"):
		return "sqlite", nil
	}
	return "", fmt.Errorf("unsupported database type in %q", conn)
}

// NewStore opens the store and creates the table if missing
func NewStore(conn string, key []byte) (*Store, error) {
	if len(key) == 0 {
		return nil, errors.New("empty store key")
	}
	dbType, err := DBType(conn)
	if err != nil {
		return nil, err
	}
	d := dialects[dbType]
	db, err := sql.Open(d.driver, conn)
	if err != nil {
		return nil, fmt.Errorf("can't open secrets database: %w", err)
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS graphly_secrets (skey VARCHAR(255) PRIMARY KEY, sval TEXT)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't create secrets table: %w", err)
	}
	log.Printf("[INFO] secrets store %s opened", dbType)
	return &Store{db: db, key: key, dialect: d}, nil
}

// Get returns decrypted secret
func (s *Store) Get(key string) (string, error) {
	var sealed string
	if err := s.db.QueryRow(s.dialect.get, key).Scan(&sealed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("can't load secret %q: %w", key, err)
	}
	res, err := s.decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("can't decrypt secret %q: %w", key, err)
	}
	return res, nil
}

// Set encrypts and stores the secret, existing value replaced
func (s *Store) Set(key, value string) error {
	sealed, err := s.encrypt(value)
	if err != nil {
		return fmt.Errorf("can't encrypt secret %q: %w", key, err)
	}
	if _, err = s.db.Exec(s.dialect.upsert, key, sealed); err != nil {
		return fmt.Errorf("can't store secret %q: %w", key, err)
	}
	return nil
}

// Delete removes the secret, ErrNotFound if nothing removed
func (s *Store) Delete(key string) error {
	res, err := s.db.Exec(s.dialect.del, key)
	if err != nil {
		return fmt.Errorf("can't delete secret %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("can't check deleted rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns sorted keys starting with prefix, empty prefix or "*" for all keys
func (s *Store) List(prefix string) ([]string, error) {
	if prefix == "*" {
		prefix = ""
	}
	rows, err := s.db.Query(s.dialect.list)
	if err != nil {
		return nil, fmt.Errorf("can't list secrets: %w", err)
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("can't scan secret key: %w", err)
		}
		// filtered here, LIKE treats _ and % in keys as wildcards
		if strings.HasPrefix(k, prefix) {
			res = append(res, k)
		}
	}
	return res, rows.Err()
}

// Close closes the database
func (s *Store) Close() error { return s.db.Close() }

// encrypt seals data and returns base64 of nonce|salt|box
func (s *Store) encrypt(data string) (string, error) {
	buf := make([]byte, nonceSize+saltSize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	nonce := new([nonceSize]byte)
	copy(nonce[:], buf[:nonceSize])
	boxKey := s.boxKey(buf[nonceSize:])
	sealed := secretbox.Seal(buf, []byte(data), nonce, boxKey)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *Store) decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(sealed) < nonceSize+saltSize+secretbox.Overhead {
		return "", errors.New("sealed value too short")
	}
	nonce := new([nonceSize]byte)
	copy(nonce[:], sealed[:nonceSize])
	boxKey := s.boxKey(sealed[nonceSize : nonceSize+saltSize])
	res, ok := secretbox.Open(nil, sealed[nonceSize+saltSize:], nonce, boxKey)
	if !ok {
		return "", errors.New("failed to decrypt")
	}
	return string(res), nil
}

// boxKey derives 32 bytes key with argon2id, 1 pass, 64MiB, 4 threads
func (s *Store) boxKey(salt []byte) *[32]byte {
	res := new([32]byte)
	copy(res[:], argon2.IDKey(s.key, salt, 1, 64*1024, 4, 32))
	return res
}
